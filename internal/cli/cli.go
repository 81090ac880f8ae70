package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kanban/api/internal/client"
)

const defaultServer = "http://localhost:3001"

// AddServerFlag registers the persistent --server flag on the root command.
func AddServerFlag(root *cobra.Command) {
	server := os.Getenv("KANBAN_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().String("server", server, "Board API base URL (env KANBAN_SERVER)")
}

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		server = defaultServer
	}
	return client.New(server, nil)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 30*time.Second)
}

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id: %s", kind, raw)
	}
	return id, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
