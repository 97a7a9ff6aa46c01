package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docchat/gateway/pkg/api"
)

func newPasswdCmd(a *app) *cobra.Command {
	var current, next string

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the password of the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			current, err := a.secret(cmd, current, "Current password")
			if err != nil {
				return err
			}
			next, err := a.secret(cmd, next, "New password")
			if err != nil {
				return err
			}

			resp, err := a.client.ChangePassword(cmd.Context(), api.ChangePasswordRequest{
				CurrentPassword: current,
				NewPassword:     next,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), messageOr(resp.Message, "Password changed."))
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	return cmd
}

func newForgotPasswordCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, err := a.text(cmd, email, "Email")
			if err != nil {
				return err
			}

			resp, err := a.client.ForgotPassword(cmd.Context(), api.ForgotPasswordRequest{Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), messageOr(resp.Message, "If the account exists, a reset link is on its way."))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func newResetPasswordCmd(a *app) *cobra.Command {
	var token, password string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		Long: `Check the reset token from the email and, when it is still valid, set a
new password.

Examples:
  docchat reset-password --token 3f9a...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.text(cmd, token, "Token")
			if err != nil {
				return err
			}

			verdict, err := a.client.ValidateResetToken(cmd.Context(), token)
			if err != nil {
				return err
			}
			switch verdict.State() {
			case api.ResetTokenExpired:
				return errors.New("this reset link has expired, request a new one with 'docchat forgot-password'")
			case api.ResetTokenInvalid:
				return errors.New("this reset link is invalid or was already used")
			}

			password, err := a.secret(cmd, password, "New password")
			if err != nil {
				return err
			}
			resp, err := a.client.ResetPassword(cmd.Context(), api.ResetPasswordRequest{
				Token:       token,
				NewPassword: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), messageOr(resp.Message, "Password reset. You can log in now."))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "reset token from the email")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return cmd
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
