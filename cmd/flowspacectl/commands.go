package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/templehubsakshi/FlowSpace/internal/client/board"
	"github.com/templehubsakshi/FlowSpace/internal/client/realtime"
	"github.com/templehubsakshi/FlowSpace/internal/client/session"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
)

func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loginCmd(g *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print an access token",
		Long: `Sign in and print an access token.

Examples:
  export FLOWSPACE_TOKEN=$(flowspacectl login --email ada@example.com)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if password == "" {
				fmt.Fprint(os.Stderr, "Password: ")
				b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = string(b)
			}
			resp, err := g.client().Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Signed in as %s\n", resp.User.Name)
			fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted if not provided)")
	return cmd
}

func workspacesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "workspaces",
		Short: "List the workspaces you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.requireToken(); err != nil {
				return err
			}
			list, err := g.client().Workspaces(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tCREATED")
			for i := range list {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", list[i].ID, list[i].Name, list[i].CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func boardCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "board <workspace-id>",
		Short: "Print a workspace board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireToken(); err != nil {
				return err
			}
			snap, err := g.client().Board(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printBoard(cmd.OutOrStdout(), board.New(args[0], snap))
		},
	}
}

func addCmd(g *globalFlags) *cobra.Command {
	var status, priority string
	cmd := &cobra.Command{
		Use:   "add <workspace-id> <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireToken(); err != nil {
				return err
			}
			t, err := g.client().CreateTask(cmd.Context(), task.CreateRequest{
				WorkspaceID: args[0],
				Title:       args[1],
				Status:      task.Status(status),
				Priority:    task.Priority(priority),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Status, t.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "todo, in_progress or done")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, high or urgent")
	return cmd
}

func moveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "move <workspace-id> <task-id> <status> [index]",
		Short: "Drag a task to a column position",
		Long: `Drag a task to a column position and announce the move to everyone
watching the workspace. Without an index the task goes to the end of the column.

Examples:
  flowspacectl move 6f1c... 9a2e... in_progress 0`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireToken(); err != nil {
				return err
			}
			status := task.Status(args[2])
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", args[2])
			}
			index := -1
			if len(args) == 4 {
				n, err := strconv.Atoi(args[3])
				if err != nil || n < 0 {
					return fmt.Errorf("invalid index %q", args[3])
				}
				index = n
			}

			ctx := cmd.Context()
			sess, closeConn, err := g.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer closeConn()

			if index < 0 {
				index = len(sess.Board().Column(status))
			}
			t, err := sess.Move(ctx, args[1], status, index)
			if err != nil {
				return err
			}
			if t == nil {
				fmt.Fprintln(os.Stderr, "Task is already there")
			}
			return printBoard(cmd.OutOrStdout(), sess.Board())
		},
	}
}

func watchCmd(g *globalFlags) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "watch <workspace-id>",
		Short: "Follow a workspace room live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireToken(); err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			conn, err := realtime.Dial(ctx, g.server, realtime.Options{
				Token: g.token,
				OnState: func(s realtime.State) {
					fmt.Fprintf(os.Stderr, "[%s]\n", s)
				},
			})
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			sess, err := session.Open(ctx, g.client(), conn, args[0])
			if err != nil {
				return err
			}
			sess.OnEvent = func(ev realtime.Event) {
				printEvent(out, ev)
			}
			if !quiet {
				sess.OnChange = func(b *board.Board) {
					_ = printBoard(out, b)
				}
				if err := printBoard(out, sess.Board()); err != nil {
					return err
				}
			}

			runErr := make(chan error, 1)
			sessErr := make(chan error, 1)
			go func() { runErr <- conn.Run(ctx) }()
			go func() {
				// The session stops when the connection gives up.
				sessErr <- sess.Run(ctx)
			}()

			select {
			case <-ctx.Done():
				return nil
			case err := <-runErr:
				return err
			case err := <-sessErr:
				if errors.Is(err, session.ErrRemoved) {
					return fmt.Errorf("you were removed from workspace %s", args[0])
				}
				return <-runErr
			}
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print events only, not the board after each change")
	return cmd
}

// open dials the realtime server and opens a session on workspaceID.
func (g *globalFlags) open(ctx context.Context, workspaceID string) (*session.Session, func(), error) {
	conn, err := realtime.Dial(ctx, g.server, realtime.Options{Token: g.token})
	if err != nil {
		return nil, nil, err
	}
	sess, err := session.Open(ctx, g.client(), conn, workspaceID)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return sess, func() { _ = conn.Close() }, nil
}

func printBoard(w io.Writer, b *board.Board) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range task.Statuses {
		col := b.Column(s)
		_, _ = fmt.Fprintf(tw, "%s (%d)\n", strings.ToUpper(string(s)), len(col))
		for i := range col {
			t := &col[i]
			assignee := "-"
			if t.Assignee != nil {
				assignee = t.Assignee.Name
			}
			_, _ = fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", t.Order, t.ID, t.Title, t.Priority, assignee)
		}
	}
	return tw.Flush()
}

func printEvent(w io.Writer, ev realtime.Event) {
	switch {
	case ev.Reconnected:
		fmt.Fprintln(w, "-- reconnected, board reloaded")
		return
	case ev.Gap:
		fmt.Fprintf(w, "-- missed events before seq %d, board reloaded\n", ev.Envelope.Seq)
	}
	if ev.Envelope.Seq > 0 {
		fmt.Fprintf(w, "#%d %s\n", ev.Envelope.Seq, ev.Envelope.Type)
		return
	}
	fmt.Fprintf(w, "%s\n", ev.Envelope.Type)
}
