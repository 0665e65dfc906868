// Command pettag-migrate manages the service schema and issues local test
// tokens.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"ms-pettag/internal/auth"
	"ms-pettag/internal/database/migrations"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var (
	databaseURL string
	table       string
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "pettag-migrate",
		Short:        "Schema migrations for the pet tag service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	rootCmd.PersistentFlags().StringVar(&table, "table", migrations.DefaultOptions().MigrationsTable, "migrations bookkeeping table")

	rootCmd.AddCommand(upCmd())
	rootCmd.AddCommand(downCmd())
	rootCmd.AddCommand(gotoCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(forceCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withRunner opens the database, hands a runner to fn and closes both.
func withRunner(fn func(*migrations.Runner) error) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL or --database-url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	opts := migrations.DefaultOptions()
	opts.MigrationsTable = table
	runner := migrations.NewRunner(db, opts, logger.NewNop())
	defer runner.Close()
	return fn(runner)
}

func printVersion(r *migrations.Runner) error {
	v, dirty, err := r.Version()
	if err != nil {
		return err
	}
	fmt.Printf("version %d (dirty: %t)\n", v, dirty)
	return nil
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(r *migrations.Runner) error {
				if err := r.MigrateUp(); err != nil {
					return err
				}
				return printVersion(r)
			})
		},
	}
}

func downCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "down [n]",
		Short: "Roll back n migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				steps = n
			}
			if all {
				steps = 0
			}
			return withRunner(func(r *migrations.Runner) error {
				if err := r.MigrateDown(steps); err != nil {
					return err
				}
				return printVersion(r)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func gotoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate up or down to a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withRunner(func(r *migrations.Runner) error {
				if err := r.MigrateTo(uint(v)); err != nil {
					return err
				}
				return printVersion(r)
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(printVersion)
		},
	}
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version and clear the dirty flag",
		Long: `Force records <version> as applied without running any SQL.
Use it after fixing a migration that failed half way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withRunner(func(r *migrations.Runner) error {
				if err := r.Force(v); err != nil {
					return err
				}
				return printVersion(r)
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token with JWT_SECRET for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			if role != models.RoleUser && role != models.RoleAdmin {
				return fmt.Errorf("role must be %q or %q", models.RoleUser, models.RoleAdmin)
			}
			tok, err := auth.SignHMAC(secret, models.Identity{UserID: userID, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token")
	cmd.Flags().StringVar(&role, "role", models.RoleUser, "user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
