package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sankforever/gkcx/lib/configutil"
	"github.com/sankforever/gkcx/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	otel       telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "gkcx",
	Short: "gkcx polls the Jiangxi admissions portal and mails the result once it is published.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		err := configutil.LoadDotenv(".")
		if err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		otel, err = telemetry.SetupFromEnv(cmd.Context(), "gkcx")
		if err != nil {
			slog.Warn("failed to setup telemetry, continuing without it", "err", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := otel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "The configuration file, <name>.local.json5 is merged on top of it.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
