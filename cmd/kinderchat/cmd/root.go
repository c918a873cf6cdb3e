package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/C2SE29-Capstone2/kinderchat/internal/config"
	"github.com/C2SE29-Capstone2/kinderchat/internal/log"
)

var (
	version = "dev"
	commit  = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kinderchat",
	Short: "Classroom chat between teachers and families",
	Long: `kinderchat keeps a teacher and a parent or student in sync on one
classroom conversation. It also ships a small development backend.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("api", "", "base URL of the chat API")
}

// loadConfig resolves configuration for cmd. Flags win over env and file.
func loadConfig(cmd *cobra.Command, overrides config.Config) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, _, err := config.Load(nil, path)
	if err != nil {
		return cfg, err
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		overrides.LogLevel = lvl
	}
	if api, _ := cmd.Flags().GetString("api"); api != "" {
		overrides.APIBaseURL = api
	}
	cfg.UpdateFrom(overrides)
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *zerolog.Logger {
	return log.NewWithWriter(cfg.LogLevel, w)
}
