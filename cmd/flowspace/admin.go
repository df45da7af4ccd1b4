package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/templehubsakshi/FlowSpace/internal/adapter/postgres"
	"github.com/templehubsakshi/FlowSpace/internal/config"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
	"github.com/templehubsakshi/FlowSpace/internal/service"
)

// runAdmin dispatches admin subcommands (create-user, list-users, add-member, migrate).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "list-users":
		return runAdminListUsers(args[1:])
	case "add-member":
		return runAdminAddMember(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: flowspace admin <command> [options]

Commands:
  create-user      Create a new user
  list-users       List all users
  add-member       Add a user to a workspace
  migrate          Apply, roll back or inspect schema migrations
  help             Show this help message

Examples:
  flowspace admin create-user --email ada@example.com --name "Ada"
  flowspace admin list-users
  flowspace admin add-member --workspace 6f1c... --email bob@example.com --role admin
  flowspace admin migrate up
  flowspace admin migrate down 1
  flowspace admin migrate version
`)
}

type adminDeps struct {
	cfg        *config.Config
	auth       *service.AuthService
	workspaces *service.WorkspaceService
}

// loadAdminDeps connects to the configured postgres database. Admin
// commands have no meaning against the in-memory store.
func loadAdminDeps() (*adminDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Driver != "postgres" {
		return nil, nil, fmt.Errorf("admin commands need storage.driver=postgres, got %q", cfg.Storage.Driver)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	store := postgres.NewStore(pool)
	authSvc, err := service.NewAuthService(store, &cfg.Auth)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("auth: %w", err)
	}
	members := service.NewMembershipService(store, nil, 0)
	notify := service.NewNotificationService(store, cfg.Notifications.Retention)

	cleanup := func() {
		authSvc.Close()
		pool.Close()
	}
	return &adminDeps{
		cfg:        cfg,
		auth:       authSvc,
		workspaces: service.NewWorkspaceService(store, members, notify),
	}, cleanup, nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "user email address (required)")
	name := fs.String("name", "", "user display name (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return errors.New("--email is required")
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return errors.New("passwords do not match")
		}
	}

	deps, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	u, err := deps.auth.CreateUser(context.Background(), user.RegisterRequest{
		Email:    *email,
		Name:     *name,
		Password: pass,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(os.Stderr, "User created: %s (id=%s)\n", u.Email, u.ID)
	return nil
}

func runAdminListUsers(args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	users, err := deps.auth.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEMAIL\tNAME\tCREATED")
	for i := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			users[i].ID, users[i].Email, users[i].Name, users[i].CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAdminAddMember(args []string) error {
	fs := flag.NewFlagSet("add-member", flag.ContinueOnError)
	wsID := fs.String("workspace", "", "workspace id (required)")
	email := fs.String("email", "", "email of the user to add (required)")
	role := fs.String("role", string(workspace.RoleMember), "member or admin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *wsID == "" {
		return errors.New("--workspace is required")
	}
	if *email == "" {
		return errors.New("--email is required")
	}

	deps, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	m, err := deps.workspaces.AddMemberAsAdmin(context.Background(), *wsID, workspace.AddMemberRequest{
		Email: *email,
		Role:  workspace.Role(*role),
	})
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Added %s to %s as %s\n", *email, m.WorkspaceID, m.Role)
	return nil
}

func runAdminMigrate(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: flowspace admin migrate up|down [steps]|version")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	dsn := cfg.Postgres.DSN

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, dsn); err != nil {
			return err
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			steps, err = strconv.Atoi(args[1])
			if err != nil || steps < 1 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
		}
		if err := postgres.RollbackMigrations(ctx, dsn, steps); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	v, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Schema version: %d\n", v)
	return nil
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after password input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
