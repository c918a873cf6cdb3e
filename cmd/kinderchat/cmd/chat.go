package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/C2SE29-Capstone2/kinderchat/internal/chat"
	"github.com/C2SE29-Capstone2/kinderchat/internal/config"
	"github.com/C2SE29-Capstone2/kinderchat/internal/observability"
	"github.com/C2SE29-Capstone2/kinderchat/internal/session"
	"github.com/C2SE29-Capstone2/kinderchat/internal/term"
	"github.com/C2SE29-Capstone2/kinderchat/internal/transport/rest"
)

const tokenEnv = "KINDERCHAT_TOKEN"

func init() {
	chatCmd.Flags().String("classroom", "", "classroom id")
	chatCmd.Flags().String("with", "", "user id of the other participant")
	chatCmd.Flags().String("token", "", "bearer token (or $"+tokenEnv+")")
	chatCmd.Flags().StringP("username", "u", "", "account name, used when no token is given")
	chatCmd.Flags().StringP("password", "p", "", "account password (or $"+passwordEnv+")")
	chatCmd.Flags().Duration("interval", 0, "poll interval")
	chatCmd.Flags().String("metrics-addr", "", "serve client sync metrics on this address, e.g. 127.0.0.1:9464")
	_ = chatCmd.MarkFlagRequired("classroom")
	_ = chatCmd.MarkFlagRequired("with")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a classroom conversation in the terminal",
	Long: `chat opens the conversation with one participant of a classroom,
prints new messages as they arrive and sends each line typed.
An empty line resends a message that failed. Type /quit to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	var overrides config.Config
	overrides.Username, _ = cmd.Flags().GetString("username")
	overrides.PollInterval, _ = cmd.Flags().GetDuration("interval")
	cfg, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}
	if err := cfg.ValidateClient(); err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		if _, err := observability.Serve(ctx, addr, logger); err != nil {
			return err
		}
	}

	client, err := rest.New(cfg.APIBaseURL, cfg.RequestTimeout,
		rest.WithHistoryLimit(cfg.HistoryLimit),
		rest.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	sess := session.NewProvider()
	if err := signIn(ctx, cmd, cfg, client, sess); err != nil {
		return err
	}
	role, err := sess.Role()
	if err != nil {
		return err
	}

	classroom, _ := cmd.Flags().GetString("classroom")
	counterpart, _ := cmd.Flags().GetString("with")
	ch, err := chat.ParseChannel(classroom, counterpart, role)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	view := term.NewView(out)
	engine := chat.NewEngine(client, sess,
		chat.WithInterval(cfg.PollInterval),
		chat.WithLogger(logger),
		chat.WithAlert(view.Alert),
	)

	fmt.Fprintf(out, "%s in classroom %d with user %d. Type /quit to leave.\n",
		sess.Username(), ch.ClassroomID, ch.CounterpartID)
	return view.Run(ctx, engine, ch, cmd.InOrStdin())
}

func signIn(ctx context.Context, cmd *cobra.Command, cfg config.Config, client *rest.Client, sess *session.Provider) error {
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token != "" {
		return sess.SetToken(token)
	}

	password := passwordFrom(cmd)
	if cfg.Username == "" || password == "" {
		return errors.New("a token or a username and password are required")
	}
	return sess.Login(ctx, client, cfg.Username, password)
}
