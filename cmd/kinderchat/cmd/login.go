package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/C2SE29-Capstone2/kinderchat/internal/config"
	"github.com/C2SE29-Capstone2/kinderchat/internal/transport/rest"
)

const passwordEnv = "KINDERCHAT_PASSWORD"

func init() {
	loginCmd.Flags().StringP("username", "u", "", "account name")
	loginCmd.Flags().StringP("password", "p", "", "account password (or $"+passwordEnv+")")
	loginCmd.Flags().String("register", "", "create the account first with this role: teacher, parent or student")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print a bearer token",
	Long: `login exchanges credentials for a bearer token and prints it, so it
can be passed to "kinderchat chat --token" or stored in KINDERCHAT_TOKEN.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var overrides config.Config
		overrides.Username, _ = cmd.Flags().GetString("username")
		cfg, err := loadConfig(cmd, overrides)
		if err != nil {
			return err
		}
		if err := cfg.ValidateClient(); err != nil {
			return err
		}

		password := passwordFrom(cmd)
		if cfg.Username == "" || password == "" {
			return errors.New("username and password are required")
		}

		client, err := rest.New(cfg.APIBaseURL, cfg.RequestTimeout, rest.WithLogger(newLogger(cfg, os.Stderr)))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		var token string
		if role, _ := cmd.Flags().GetString("register"); role != "" {
			token, err = client.Register(ctx, cfg.Username, password, role)
		} else {
			token, err = client.Login(ctx, cfg.Username, password)
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func passwordFrom(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("password"); p != "" {
		return p
	}
	return os.Getenv(passwordEnv)
}
