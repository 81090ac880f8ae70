package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"

	"kanban/api/internal/app"
	"kanban/api/internal/client"
	"kanban/api/internal/store/storetest"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	color.NoColor = true
	logger, _ := test.NewNullLogger()
	service := app.New(storetest.NewSQLite(t), nil, nil, logger)
	server := httptest.NewServer(app.NewHTTPServer(service, app.Options{Logger: logger}).Handler())
	t.Cleanup(server.Close)
	return server.URL
}

func execute(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "kanban", SilenceUsage: true, SilenceErrors: true}
	AddServerFlag(root)
	root.AddCommand(BoardCmd(), ListCmd(), CardCmd(), SearchCmd())

	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append([]string{"--server", server}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, server string, args ...string) string {
	t.Helper()
	out, err := execute(t, server, args...)
	if err != nil {
		t.Fatalf("kanban %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func cardOrder(t *testing.T, server string, listID int64) string {
	t.Helper()
	board, err := client.New(server, nil).Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	list, ok := board.FindList(listID)
	if !ok {
		t.Fatalf("list %d not on board", listID)
	}
	titles := make([]string, 0, len(list.Cards))
	for _, card := range list.Cards {
		titles = append(titles, card.Title)
	}
	return strings.Join(titles, ",")
}

func TestCommandStructure(t *testing.T) {
	want := map[string][]string{
		"list": {"add", "rename", "rm"},
		"card": {"add", "edit", "rm", "move"},
	}
	for _, cmd := range []*cobra.Command{ListCmd(), CardCmd()} {
		registered := map[string]bool{}
		for _, sub := range cmd.Commands() {
			registered[sub.Name()] = true
			if sub.Short == "" {
				t.Errorf("%s %s should have a Short description", cmd.Name(), sub.Name())
			}
		}
		for _, name := range want[cmd.Name()] {
			if !registered[name] {
				t.Errorf("%s %s not registered", cmd.Name(), name)
			}
		}
	}
}

func TestServerFlagDefaultsFromEnv(t *testing.T) {
	t.Setenv("KANBAN_SERVER", "http://board.internal:9000")
	root := &cobra.Command{Use: "kanban"}
	AddServerFlag(root)
	if got := root.PersistentFlags().Lookup("server").DefValue; got != "http://board.internal:9000" {
		t.Fatalf("expected env default, got %q", got)
	}

	t.Setenv("KANBAN_SERVER", "")
	root = &cobra.Command{Use: "kanban"}
	AddServerFlag(root)
	if got := root.PersistentFlags().Lookup("server").DefValue; got != defaultServer {
		t.Fatalf("expected %q, got %q", defaultServer, got)
	}
}

func TestBoardOnEmptyServer(t *testing.T) {
	server := newTestServer(t)
	out := mustExecute(t, server, "board")
	if !strings.Contains(out, "No lists yet") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestListAndCardLifecycle(t *testing.T) {
	server := newTestServer(t)

	out := mustExecute(t, server, "list", "add", "Sprint", "backlog")
	if !strings.Contains(out, "Created list #1: Sprint backlog") {
		t.Fatalf("unexpected output: %q", out)
	}
	mustExecute(t, server, "list", "rename", "1", "Todo")
	out = mustExecute(t, server, "card", "add", "--list", "1", "-d", "first pass", "Write", "docs")
	if !strings.Contains(out, "Created card #1 in list #1: Write docs") {
		t.Fatalf("unexpected output: %q", out)
	}
	mustExecute(t, server, "card", "edit", "1", "--title", "Write better docs")

	out = mustExecute(t, server, "board", "-v")
	for _, want := range []string{"Todo", "#1 (1)", "Write better docs", "pos=0", "first pass"} {
		if !strings.Contains(out, want) {
			t.Fatalf("board output missing %q:\n%s", want, out)
		}
	}

	mustExecute(t, server, "card", "rm", "1")
	out = mustExecute(t, server, "board")
	if !strings.Contains(out, "(empty)") {
		t.Fatalf("expected empty list after card delete:\n%s", out)
	}
	mustExecute(t, server, "list", "rm", "1")
	out = mustExecute(t, server, "board")
	if !strings.Contains(out, "No lists yet") {
		t.Fatalf("expected empty board:\n%s", out)
	}
}

func TestCardMove(t *testing.T) {
	server := newTestServer(t)
	mustExecute(t, server, "list", "add", "Todo")
	mustExecute(t, server, "list", "add", "Done")
	for _, title := range []string{"A", "B", "C"} {
		mustExecute(t, server, "card", "add", "--list", "1", title)
	}
	mustExecute(t, server, "card", "add", "--list", "2", "X")

	out := mustExecute(t, server, "card", "move", "1", "--index", "1")
	if !strings.Contains(out, "Moved card #1 to Todo at index 1") {
		t.Fatalf("unexpected output: %q", out)
	}
	if got := cardOrder(t, server, 1); got != "B,A,C" {
		t.Fatalf("expected B,A,C, got %s", got)
	}

	mustExecute(t, server, "card", "move", "3", "--list", "2", "--index", "0")
	if got := cardOrder(t, server, 2); got != "C,X" {
		t.Fatalf("expected C,X, got %s", got)
	}

	mustExecute(t, server, "card", "move", "2", "--list", "2")
	if got := cardOrder(t, server, 2); got != "C,X,B" {
		t.Fatalf("expected C,X,B, got %s", got)
	}

	mustExecute(t, server, "card", "move", "1", "--list", "2", "--position", "0")
	if got := cardOrder(t, server, 2); got != "A,C,X,B" {
		t.Fatalf("expected A,C,X,B, got %s", got)
	}
	if got := cardOrder(t, server, 1); got != "" {
		t.Fatalf("expected Todo empty, got %s", got)
	}
}

func TestCommandErrors(t *testing.T) {
	server := newTestServer(t)
	mustExecute(t, server, "list", "add", "Todo")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad list id", args: []string{"list", "rm", "abc"}, want: "invalid list id: abc"},
		{name: "missing list", args: []string{"list", "rm", "42"}, want: "List not found"},
		{name: "card without list flag", args: []string{"card", "add", "x"}, want: "required flag"},
		{name: "blank card title", args: []string{"card", "add", "--list", "1", " "}, want: "Title is required"},
		{name: "edit without fields", args: []string{"card", "edit", "1"}, want: "nothing to change"},
		{name: "move unknown card", args: []string{"card", "move", "9"}, want: "card #9 not found"},
		{name: "index and position", args: []string{"card", "move", "9", "--index", "0", "--position", "0"}, want: "none of the others can be"},
		{name: "negative position", args: []string{"card", "move", "9", "--list", "1", "--position", "-1"}, want: "position must be non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, server, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSearchCommand(t *testing.T) {
	server := newTestServer(t)
	mustExecute(t, server, "list", "add", "Todo")
	mustExecute(t, server, "card", "add", "--list", "1", "Fix login bug")
	mustExecute(t, server, "card", "add", "--list", "1", "Write docs")

	out := mustExecute(t, server, "search", "login")
	if !strings.Contains(out, "Fix login bug") || strings.Contains(out, "Write docs") {
		t.Fatalf("unexpected search output:\n%s", out)
	}
	out = mustExecute(t, server, "search", "nothing-here")
	if !strings.Contains(out, `No cards match "nothing-here"`) {
		t.Fatalf("unexpected output: %q", out)
	}
}
