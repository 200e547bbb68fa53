package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newLoginCommand(rt *runtime) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				token, err := a.client.Auth.Login(ctx, username, password)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"signed_in": true, "token_type": token.TokenType})
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newRegisterCommand(rt *runtime) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				token, err := a.client.Auth.Register(ctx, email, password)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"registered": true, "signed_in": token.AccessToken != ""})
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.client.Auth.Logout(ctx); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"signed_in": false})
			})
		},
	}
}
