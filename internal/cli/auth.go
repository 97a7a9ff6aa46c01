package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"docchat/gateway/internal/session"
	"docchat/gateway/pkg/api"
)

func printUser(w io.Writer, user *api.User) {
	fmt.Fprintf(w, "User ID:  %s\n", user.ID)
	fmt.Fprintf(w, "Username: %s\n", user.Username)
	fmt.Fprintf(w, "Email:    %s\n", user.Email)
	first, _ := user.Profile["firstName"].(string)
	last, _ := user.Profile["lastName"].(string)
	if first != "" || last != "" {
		fmt.Fprintf(w, "Name:     %s %s\n", first, last)
	}
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with email and password. The password is prompted for when
--password is not given.

Examples:
  docchat login --email alice@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, err := a.text(cmd, email, "Email")
			if err != nil {
				return err
			}
			password, err := a.secret(cmd, password, "Password")
			if err != nil {
				return err
			}

			user, err := a.store.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Username, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newSignupCmd(a *app) *cobra.Command {
	var in session.SignupInput

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Long: `Create an account. First and last name are saved to the profile after
the account exists; a failure there does not undo the signup.

Examples:
  docchat signup --username alice --email alice@example.com --first-name Alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if in.Username, err = a.text(cmd, in.Username, "Username"); err != nil {
				return err
			}
			if in.Email, err = a.text(cmd, in.Email, "Email"); err != nil {
				return err
			}
			if in.Password, err = a.secret(cmd, in.Password, "Password"); err != nil {
				return err
			}

			user, err := a.store.Onboard(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created. Logged in as %s (%s)\n", user.Username, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "username")
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.Password, "password", "", "account password")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name for the profile")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name for the profile")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.store.Logout(cmd.Context())
			if err := a.jar.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.store.Init(cmd.Context())

			state := a.store.State()
			if state.User == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}
			printUser(cmd.OutOrStdout(), state.User)
			return nil
		},
	}
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the session cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.store.RefreshSession(cmd.Context())
			if err != nil {
				if errors.Is(err, session.ErrSessionExpired) {
					if clearErr := a.jar.Clear(); clearErr != nil {
						a.log.Warn().Err(clearErr).Msg("clear stored cookie failed")
					}
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session renewed for %s.\n", user.Username)
			return nil
		},
	}
}
