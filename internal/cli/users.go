package cli

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/facesaas-client/internal/apierr"
	"github.com/example/facesaas-client/internal/model"
)

func newProfileCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				profile, err := a.client.Users.Profile(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), profile)
			})
		},
	}
}

func newUpdateProfileCommand(rt *runtime) *cobra.Command {
	var email, fullName string
	cmd := &cobra.Command{
		Use:   "update-profile",
		Short: "Change the account email or name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd model.ProfileUpdate
			if cmd.Flags().Changed("email") {
				upd.Email = &email
			}
			if cmd.Flags().Changed("full-name") {
				upd.FullName = &fullName
			}
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				profile, err := a.client.Users.UpdateProfile(ctx, upd)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), profile)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "new email")
	cmd.Flags().StringVar(&fullName, "full-name", "", "new display name")
	return cmd
}

func newThresholdCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "threshold <value>",
		Short: "Set the default match threshold (0-100)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return apierr.Validation("threshold must be a number", err)
			}
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				update, err := a.client.Users.UpdateThreshold(ctx, value)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), update)
			})
		},
	}
}

func newChangePasswordCommand(rt *runtime) *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the account password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.client.Users.ChangePassword(ctx, current, next); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), model.StatusMessage{Message: "password changed"})
			})
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func newDeleteAccountCommand(rt *runtime) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the account and every stored image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to delete the account without --yes")
			}
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.client.Users.DeleteAccount(ctx); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), model.StatusMessage{Message: "account deleted"})
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the deletion")
	return cmd
}

func newUsageCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show account usage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				stats, err := a.client.Users.UsageStats(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newAPIKeyCommand(rt *runtime) *cobra.Command {
	var regenerate bool
	cmd := &cobra.Command{
		Use:   "api-key",
		Short: "Show or regenerate the account API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				fetch := a.client.Users.APIKey
				if regenerate {
					fetch = a.client.Users.RegenerateAPIKey
				}
				key, err := fetch(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), key)
			})
		},
	}
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "invalidate the current key and issue a new one")
	return cmd
}
