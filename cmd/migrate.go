package cmd

import (
	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/internal/db"
	"github.com/spf13/cobra"
)

var (
	migrationsURL  string
	migrateDownNum int
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		return db.MigrateUp(migrationsURL, db.DSN(cfg.Database))
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		return db.MigrateDown(migrationsURL, db.DSN(cfg.Database), migrateDownNum)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	migrateCmd.PersistentFlags().StringVar(&migrationsURL, "source", db.DefaultMigrationsURL, "migrations source URL")
	migrateDownCmd.Flags().IntVar(&migrateDownNum, "steps", 1, "number of migrations to roll back")
}
