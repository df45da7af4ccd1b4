// Command flowspacectl drives a FlowSpace server from the terminal: sign
// in, print a board, drag tasks between columns and follow a workspace
// room live.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/templehubsakshi/FlowSpace/internal/client/api"
)

var version = "dev"

type globalFlags struct {
	server string
	token  string
	debug  bool
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "flowspacectl",
		Short:         "Command-line client for FlowSpace boards",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(g.debug)
		},
	}
	rootCmd.PersistentFlags().StringVar(&g.server, "server", envOr("FLOWSPACE_URL", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&g.token, "token", os.Getenv("FLOWSPACE_TOKEN"), "access token (defaults to $FLOWSPACE_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "log retries and reconnects")

	rootCmd.AddCommand(loginCmd(&g))
	rootCmd.AddCommand(workspacesCmd(&g))
	rootCmd.AddCommand(boardCmd(&g))
	rootCmd.AddCommand(addCmd(&g))
	rootCmd.AddCommand(moveCmd(&g))
	rootCmd.AddCommand(watchCmd(&g))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (g *globalFlags) client() *api.Client {
	return api.New(strings.TrimRight(g.server, "/"), api.WithToken(g.token))
}

func (g *globalFlags) requireToken() error {
	if g.token == "" {
		return fmt.Errorf("not signed in: run `flowspacectl login` and export FLOWSPACE_TOKEN")
	}
	return nil
}

// describe adds a hint for the error kinds a user can act on.
func describe(err error) string {
	switch api.KindOf(err) {
	case api.KindAuthorization:
		return err.Error() + " (check the token and workspace membership)"
	case api.KindTransport:
		return err.Error() + " (is the server running?)"
	default:
		return err.Error()
	}
}
