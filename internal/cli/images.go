package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/facesaas-client/internal/client"
	"github.com/example/facesaas-client/internal/transport"
	"github.com/example/facesaas-client/internal/upload"
)

func newUploadCommand(rt *runtime) *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload an image and detect its faces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				f, err := upload.FromPath(args[0])
				if err != nil {
					return err
				}
				opts, wait := progressOptions(progress, cmd.ErrOrStderr())
				result, err := a.client.Images.UploadFile(ctx, f, opts...)
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

func newImagesCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "List uploaded images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				images, err := a.client.Images.List(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), images)
			})
		},
	}
}

func newDeleteImageCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-image <image-id>",
		Short: "Delete an uploaded image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.client.Images.Delete(ctx, args[0]); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[0]})
			})
		},
	}
}

// progressOptions returns the call options that stream progress to w when
// enabled, and a function that waits for the stream to drain.
func progressOptions(enabled bool, w io.Writer) ([]client.CallOption, func()) {
	if !enabled {
		return nil, func() {}
	}
	ch := make(chan transport.Progress, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range ch {
			if p.Total > 0 {
				fmt.Fprintf(w, "%s %d/%d\n", p.Stage, p.Sent, p.Total)
				continue
			}
			fmt.Fprintln(w, p.Stage)
		}
	}()
	return []client.CallOption{client.WithProgress(ch)}, func() {
		close(ch)
		<-done
	}
}
