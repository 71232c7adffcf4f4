// Command jobctl operates the catalog job controller from a shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/joshu-sajeev/catalogjobs/internal/app"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/logger"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	envFile  string
)

var rootCmd = &cobra.Command{
	Use:           "jobctl",
	Short:         "Manage catalog processing jobs",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load")

	rootCmd.AddCommand(migrateCmd, jobsCmd, workerCmd, settingsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openApp loads the configuration and connects to the database.
func openApp(ctx context.Context, migrate bool) (*app.App, *config.AppConfig, *slog.Logger, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	log := logger.New(logger.Config{Level: logLevel, Format: cfg.Log.Format})
	slog.SetDefault(log)

	a, err := app.Open(ctx, cfg, migrate, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, cfg, log, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
