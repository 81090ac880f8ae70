package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func ListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Manage board lists",
	}
	cmd.AddCommand(listAddCmd(), listRenameCmd(), listRemoveCmd())
	return cmd
}

func listAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [title]",
		Short: "Append a new list to the right end of the board",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			list, err := newClient(cmd).CreateList(ctx, joinArgs(args))
			if err != nil {
				return fmt.Errorf("failed to create list: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Created list #%d: %s\n", color.New(color.FgGreen).Sprint("✓"), list.ID, list.Title)
			return nil
		},
	}
}

func listRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename [list-id] [title]",
		Short: "Rename a list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("list", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			list, err := newClient(cmd).RenameList(ctx, id, joinArgs(args[1:]))
			if err != nil {
				return fmt.Errorf("failed to rename list: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Renamed list #%d: %s\n", color.New(color.FgGreen).Sprint("✓"), list.ID, list.Title)
			return nil
		},
	}
}

func listRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm [list-id]",
		Aliases: []string{"delete"},
		Short:   "Delete a list and every card in it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("list", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if err := newClient(cmd).DeleteList(ctx, id); err != nil {
				return fmt.Errorf("failed to delete list: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted list #%d\n", color.New(color.FgGreen).Sprint("✓"), id)
			return nil
		},
	}
}
