package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/example/facesaas-client/internal/model"
	"github.com/example/facesaas-client/internal/upload"
)

func newDetectCommand(rt *runtime) *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Detect faces in an image without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				f, err := upload.FromPath(args[0])
				if err != nil {
					return err
				}
				opts, wait := progressOptions(progress, cmd.ErrOrStderr())
				result, err := a.client.Faces.DetectFile(ctx, f, opts...)
				wait()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().BoolVar(&progress, "progress", false, "report progress on stderr")
	return cmd
}

func newCompareCommand(rt *runtime) *cobra.Command {
	var (
		threshold float64
		progress  bool
	)
	cmd := &cobra.Command{
		Use:   "compare <probe-image> <candidate-image>",
		Short: "Compare the faces in two images",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				probe, err := upload.FromPath(args[0])
				if err != nil {
					return err
				}
				candidate, err := upload.FromPath(args[1])
				if err != nil {
					return err
				}
				opts, wait := progressOptions(progress, cmd.ErrOrStderr())
				result, err := a.client.Faces.CompareFiles(ctx, probe, candidate, threshold, opts...)
				wait()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", model.DefaultThreshold, "similarity score required for a match (0-100)")
	cmd.Flags().BoolVar(&progress, "progress", false, "report progress on stderr")
	return cmd
}

func newVerifyCommand(rt *runtime) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "verify <image-id> <image-id>",
		Short: "Compare two uploaded images by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				req := model.VerifyRequest{Image1ID: args[0], Image2ID: args[1]}
				if cmd.Flags().Changed("threshold") {
					req.Threshold = &threshold
				}
				result, err := a.client.Faces.Verify(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", model.DefaultThreshold, "similarity score required for a match; the account default when omitted")
	return cmd
}
