package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/C2SE29-Capstone2/kinderchat/internal/app"
	"github.com/C2SE29-Capstone2/kinderchat/internal/config"
)

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address")
	serveCmd.Flags().String("db", "", "path to the sqlite database")
	serveCmd.Flags().Int("send-rate", 0, "messages per minute allowed per user")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development chat backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var overrides config.Config
		overrides.Addr, _ = cmd.Flags().GetString("addr")
		overrides.DatabasePath, _ = cmd.Flags().GetString("db")
		overrides.SendRatePerMinute, _ = cmd.Flags().GetInt("send-rate")

		cfg, err := loadConfig(cmd, overrides)
		if err != nil {
			return err
		}
		logger := newLogger(cfg, os.Stdout)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(&cfg, logger)
		if err != nil {
			return err
		}

		logger.Info().Str("addr", cfg.Addr).Str("version", version).Msg("starting kinderchat backend")
		if err := application.Run(ctx); err != nil {
			return err
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}
