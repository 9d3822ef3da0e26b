// Command postctl is the admin CLI for a postboard database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"postboard/internal/config"
	transport "postboard/internal/transport/http"
)

var (
	// dbPath overrides DB_PATH when set by the --db flag.
	dbPath string

	// app is wired in PersistentPreRunE and closed afterwards.
	app *transport.App
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "postctl",
	Short: "Administer a postboard database",
	Long: `postctl operates directly on the postboard SQLite file. It goes through
the same services as the server, so writes are serialized the same way.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default: $DB_PATH or postboard.db)")

	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(purgeUserCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(statsCmd)
}

func initApp(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err = transport.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	return nil
}

func closeApp() error {
	if app == nil {
		return nil
	}
	err := app.Close()
	app = nil
	return err
}
