package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find cards by title or description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			ctx, cancel := commandContext(cmd)
			defer cancel()

			out, err := newClient(cmd).Search(ctx, joinArgs(args), limit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if len(out.Results) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No cards match %q\n", out.Query)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CARD\tLIST\tTITLE")
			fmt.Fprintln(w, "----\t----\t-----")
			for _, result := range out.Results {
				fmt.Fprintf(w, "#%d\t#%d\t%s\n", result.ID, result.ListID, result.Title)
			}
			w.Flush()
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 0, "Maximum results (server default when 0)")
	return cmd
}
