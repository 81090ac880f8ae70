package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kanban/api/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kanban",
		Short: "Drive the kanban board from the command line",
		Long: `kanban talks to a running board API. Every command that changes the board
reloads it afterwards, so what you see is always what the server stored.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cli.AddServerFlag(rootCmd)

	rootCmd.AddCommand(cli.BoardCmd())
	rootCmd.AddCommand(cli.ListCmd())
	rootCmd.AddCommand(cli.CardCmd())
	rootCmd.AddCommand(cli.SearchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
