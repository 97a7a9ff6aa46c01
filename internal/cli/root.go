// Package cli is the docchat terminal client. It keeps the gateway session
// cookie in a local state file and drives the same auth state store a
// browser session would.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docchat/gateway/internal/cookiestore"
	"docchat/gateway/internal/log"
	"docchat/gateway/internal/session"
)

const (
	defaultGateway = "http://localhost:3000"
	defaultTimeout = 30 * time.Second
)

// app is the per-invocation state shared by all subcommands.
type app struct {
	v      *viper.Viper
	log    zerolog.Logger
	jar    *cookiestore.Jar
	client *session.Client
	store  *session.Store
	input  *bufio.Reader
}

func newRootCmd(a *app) *cobra.Command {
	a.v = viper.New()
	a.v.SetEnvPrefix("DOCCHAT")
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "docchat",
		Short: "Terminal client for the docchat gateway",
		Long: `docchat signs in to a docchat gateway and keeps the session cookie in a
local state file, so later commands run as the same user.

Examples:
  docchat login --email alice@example.com
  docchat whoami
  docchat documents --limit 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("gateway", defaultGateway, "gateway base URL (env DOCCHAT_GATEWAY)")
	flags.String("state", "", "state file holding the session cookie (default ~/.docchat/state.db)")
	flags.Duration("timeout", defaultTimeout, "per-request timeout")
	flags.Bool("verbose", false, "log debug output to stderr")
	for _, name := range []string{"gateway", "state", "timeout", "verbose"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newLoginCmd(a),
		newSignupCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRefreshCmd(a),
		newPasswdCmd(a),
		newForgotPasswordCmd(a),
		newResetPasswordCmd(a),
		newDocumentsCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	level := "warn"
	if a.v.GetBool("verbose") {
		level = "debug"
	}
	a.log = log.NewWithWriter(cmd.ErrOrStderr(), "cli", level)
	a.input = bufio.NewReader(cmd.InOrStdin())

	statePath := a.v.GetString("state")
	if statePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("locate home directory: %w", err)
		}
		statePath = filepath.Join(home, ".docchat", "state.db")
	}
	if err := os.MkdirAll(filepath.Dir(statePath), 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	jar, err := cookiestore.Open(statePath, a.log)
	if err != nil {
		return err
	}
	a.jar = jar
	a.client = session.NewClient(a.v.GetString("gateway"), jar, a.v.GetDuration("timeout"))
	a.store = session.NewStore(a.client, a.log)

	a.log.Debug().
		Str("gateway", a.v.GetString("gateway")).
		Str("state", statePath).
		Msg("client ready")
	return nil
}

func (a *app) close() error {
	if a.jar == nil {
		return nil
	}
	return a.jar.Close()
}

// ExecuteContext runs the command line in os.Args.
func ExecuteContext(ctx context.Context) error {
	return execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if closeErr := a.close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close state file: %w", closeErr)
	}
	return err
}
