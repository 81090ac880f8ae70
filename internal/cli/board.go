package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kanban/api/internal/client"
)

func BoardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show every list and its cards in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			board, err := newClient(cmd).Refresh(ctx)
			if err != nil {
				return fmt.Errorf("failed to load board: %w", err)
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			renderBoard(cmd.OutOrStdout(), board, verbose)
			return nil
		},
	}
	cmd.Flags().BoolP("verbose", "v", false, "Show card descriptions and raw positions")
	return cmd
}

func renderBoard(out io.Writer, board client.Board, verbose bool) {
	if len(board.Lists) == 0 {
		fmt.Fprintln(out, "No lists yet. Create one with: kanban list add <title>")
		return
	}
	heading := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)

	for i, list := range board.Lists {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s %s\n", heading.Sprint(list.Title), dim.Sprintf("#%d (%d)", list.ID, len(list.Cards)))
		if len(list.Cards) == 0 {
			fmt.Fprintln(out, dim.Sprint("  (empty)"))
			continue
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for index, card := range list.Cards {
			if verbose {
				fmt.Fprintf(w, "  %d.\t#%d\t%s\tpos=%d\n", index, card.ID, card.Title, card.Position)
			} else {
				fmt.Fprintf(w, "  %d.\t#%d\t%s\n", index, card.ID, card.Title)
			}
		}
		w.Flush()
		if verbose {
			for _, card := range list.Cards {
				if card.Description != "" {
					fmt.Fprintf(out, "    %s %s\n", dim.Sprintf("#%d:", card.ID), card.Description)
				}
			}
		}
	}
}
