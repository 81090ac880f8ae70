package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func CardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Manage cards",
	}
	cmd.AddCommand(cardAddCmd(), cardEditCmd(), cardRemoveCmd(), cardMoveCmd())
	return cmd
}

func cardAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Append a new card to the bottom of a list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("list")
			listID, err := parseID("list", raw)
			if err != nil {
				return err
			}
			description, _ := cmd.Flags().GetString("description")

			ctx, cancel := commandContext(cmd)
			defer cancel()

			card, err := newClient(cmd).CreateCard(ctx, listID, joinArgs(args), description)
			if err != nil {
				return fmt.Errorf("failed to create card: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Created card #%d in list #%d: %s\n", color.New(color.FgGreen).Sprint("✓"), card.ID, card.ListID, card.Title)
			return nil
		},
	}
	cmd.Flags().StringP("list", "l", "", "List ID to add the card to")
	cmd.Flags().StringP("description", "d", "", "Card description")
	_ = cmd.MarkFlagRequired("list")
	return cmd
}

func cardEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit [card-id]",
		Short: "Change a card's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("card", args[0])
			if err != nil {
				return err
			}
			var title, description *string
			if cmd.Flags().Changed("title") {
				value, _ := cmd.Flags().GetString("title")
				title = &value
			}
			if cmd.Flags().Changed("description") {
				value, _ := cmd.Flags().GetString("description")
				description = &value
			}
			if title == nil && description == nil {
				return fmt.Errorf("nothing to change\nHint: pass --title and/or --description")
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			card, err := newClient(cmd).EditCard(ctx, id, title, description)
			if err != nil {
				return fmt.Errorf("failed to edit card: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Updated card #%d: %s\n", color.New(color.FgGreen).Sprint("✓"), card.ID, card.Title)
			return nil
		},
	}
	cmd.Flags().StringP("title", "t", "", "New title")
	cmd.Flags().StringP("description", "d", "", "New description (empty clears it)")
	return cmd
}

func cardRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm [card-id]",
		Aliases: []string{"delete"},
		Short:   "Delete a card",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("card", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if err := newClient(cmd).DeleteCard(ctx, id); err != nil {
				return fmt.Errorf("failed to delete card: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted card #%d\n", color.New(color.FgGreen).Sprint("✓"), id)
			return nil
		},
	}
}

func cardMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move [card-id]",
		Short: "Move a card within its list or into another list",
		Long: `Move a card to a list. --index is the 0-based slot the card should end up
in; --position sends a raw position. With neither, the card goes to the end.
Without --list the card stays in its current list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("card", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			c := newClient(cmd)

			var listID int64
			if raw, _ := cmd.Flags().GetString("list"); raw != "" {
				if listID, err = parseID("list", raw); err != nil {
					return err
				}
			} else {
				board, err := c.Refresh(ctx)
				if err != nil {
					return fmt.Errorf("failed to load board: %w", err)
				}
				_, list, ok := board.FindCard(id)
				if !ok {
					return fmt.Errorf("card #%d not found\nHint: pass --list to name the target list", id)
				}
				listID = list.ID
			}

			switch {
			case cmd.Flags().Changed("position"):
				position, _ := cmd.Flags().GetInt64("position")
				err = c.MoveCard(ctx, id, listID, position)
			case cmd.Flags().Changed("index"):
				index, _ := cmd.Flags().GetInt("index")
				if index < 0 {
					return fmt.Errorf("index must be non-negative")
				}
				err = c.MoveCardToIndex(ctx, id, listID, index)
			default:
				err = c.MoveCardToEnd(ctx, id, listID)
			}
			if err != nil {
				return fmt.Errorf("failed to move card: %w", err)
			}

			msg := fmt.Sprintf("Moved card #%d to list #%d", id, listID)
			if list, ok := c.Board().FindList(listID); ok {
				for index, card := range list.Cards {
					if card.ID == id {
						msg = fmt.Sprintf("Moved card #%d to %s at index %d", id, list.Title, index)
						break
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.New(color.FgGreen).Sprint("✓"), msg)
			return nil
		},
	}
	cmd.Flags().StringP("list", "l", "", "Target list ID (defaults to the card's current list)")
	cmd.Flags().IntP("index", "i", 0, "0-based index in the target list")
	cmd.Flags().Int64P("position", "p", 0, "Raw target position")
	cmd.MarkFlagsMutuallyExclusive("index", "position")
	return cmd
}
