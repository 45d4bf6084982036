// Command authctl is the admin CLI for the userauth database.
//
// It talks to the same SQLite file as the server, through the same service
// layer, so deactivating a user here takes effect on their next login:
//
//	authctl users list --limit 50
//	authctl users show <id>
//	authctl users deactivate <id>
//	authctl users activate <id>
//	authctl users delete <id> --yes
//
// DB_PATH (or --db) selects the database. JWT_SECRET is not needed. When
// REDIS_ADDR is set, writes also evict the server's cached profiles.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/userauth/internal/cache"
	"github.com/sakif/userauth/internal/config"
	"github.com/sakif/userauth/internal/repository"
	"github.com/sakif/userauth/internal/repository/cached"
	"github.com/sakif/userauth/internal/repository/sqlite"
	"github.com/sakif/userauth/internal/service"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand shares. The database is opened in the
// root PersistentPreRunE and closed in PersistentPostRunE.
type app struct {
	out, errOut io.Writer
	cfg         config.AdminConfig
	cfgErr      error
	dbPath      string

	// store overrides the Redis client built from cfg.
	store cache.Store

	db    *sqlite.DB
	redis *cache.Client
	users *service.UserService
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	return newApp(out, errOut).rootCmd()
}

func newApp(out, errOut io.Writer) *app {
	cfg, err := config.LoadAdmin()
	return &app{out: out, errOut: errOut, cfg: cfg, cfgErr: err}
}

func (a *app) rootCmd() *cobra.Command {
	dbDefault := a.cfg.DBPath
	if dbDefault == "" {
		dbDefault = "data/userauth.db"
	}

	root := &cobra.Command{
		Use:                "authctl",
		Short:              "Administer userauth accounts",
		SilenceUsage:       true,
		PersistentPreRunE:  a.open,
		PersistentPostRunE: a.close,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.PersistentFlags().StringVar(&a.dbPath, "db", dbDefault, "SQLite database path (env DB_PATH)")

	root.AddCommand(a.usersCmd())
	return root
}

// open builds the same repository stack as the server: SQLite, wrapped in
// the profile cache when Redis is configured, so writes made here evict the
// entries the server reads.
func (a *app) open(cmd *cobra.Command, args []string) error {
	if a.cfgErr != nil {
		return a.cfgErr
	}

	db, err := sqlite.New(a.dbPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", a.dbPath, err)
	}
	a.db = db

	logger := config.NewLogger(a.errOut, a.cfg.SlogLevel(), a.cfg.LogFormat)

	var users repository.UserRepository = db
	store := a.store
	if store == nil && a.cfg.CacheEnabled() {
		a.redis = cache.New(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.redis.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, cached profiles may stay stale until they expire",
				slog.String("addr", a.cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		cancel()
		store = a.redis
	}
	if store != nil {
		users = cached.NewUserRepository(db, store, a.cfg.ProfileCacheTTL)
	}

	a.users = service.NewUserService(users, logger)
	return nil
}

func (a *app) close(cmd *cobra.Command, args []string) error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// ── users ────────────────────────────────────────────────────────────────────

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List, inspect, activate, deactivate and delete users",
	}
	cmd.AddCommand(a.listCmd(), a.showCmd(), a.setActiveCmd(true), a.setActiveCmd(false), a.deleteCmd())
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var (
		limit, offset int
		format        string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := a.users.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(a.out, users)
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tPROVIDER\tACTIVE\tLAST LOGIN\tCREATED")
			for _, u := range users {
				lastLogin := "-"
				if u.LastLogin != nil {
					lastLogin = u.LastLogin.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
					u.ID, u.Email, u.Name, u.AuthProvider, u.IsActive, lastLogin, u.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", service.DefaultListLimit, "Page size (max 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of users to skip")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.users.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(a.out, u)
		},
	}
}

func (a *app) setActiveCmd(active bool) *cobra.Command {
	use, short := "deactivate <id>", "Block a user from logging in"
	if active {
		use, short = "activate <id>", "Allow a deactivated user to log in again"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.users.SetActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			state := "deactivated"
			if active {
				state = "activated"
			}
			fmt.Fprintf(a.out, "user %s %s\n", args[0], state)
			return nil
		},
	}
}

var errNeedConfirm = errors.New("refusing to delete without --yes")

func (a *app) deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errNeedConfirm
			}
			if err := a.users.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "user %s deleted\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm permanent deletion")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
