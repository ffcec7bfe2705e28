package cmd

import (
	"fmt"
	"os"

	"github.com/phumblot-gs/gs-stream-digest-sub000/config"
	"github.com/phumblot-gs/gs-stream-digest-sub000/database"

	"github.com/spf13/cobra"
)

// NewMigrateCommand groups the schema migration subcommands. They only need
// DATABASE_URL and DATABASE_NAME, so the full configuration is not loaded.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return configureLogging(&config.Config{
				LogLevel:  os.Getenv("LOG_LEVEL"),
				LogFormat: os.Getenv("LOG_FORMAT"),
			}, opts)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return database.MigrateUp()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := "1"
			if len(args) == 1 {
				steps = args[0]
			}
			return database.MigrateDown(steps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := database.MigrateStatus()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !status.Applied {
				fmt.Fprintln(out, "No migrations applied")
				return nil
			}
			fmt.Fprintf(out, "Version: %d\n", status.Version)
			fmt.Fprintf(out, "Dirty: %t\n", status.Dirty)
			return nil
		},
	})

	return cmd
}
