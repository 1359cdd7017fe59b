package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"vpsbot/internal/config"
	"vpsbot/internal/db"
	"vpsbot/internal/logger"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vpsctl",
		Short:         "Operator tooling for the vpsbot wallet and payment engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init()
		},
	}

	root.AddCommand(tokenCmd())
	root.AddCommand(ledgerCmd())
	root.AddCommand(intentsCmd())
	root.AddCommand(migrateCmd())
	return root
}

// connect opens the database named by DATABASE_URL.
func connect() (*sqlx.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return conn, cfg, nil
}

func migrateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.RunMigrations(conn, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "migrations", "Migrations directory")
	return cmd
}
