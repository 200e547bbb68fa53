// Package cli is the facesaas command line front end.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/facesaas-client/internal/apierr"
	"github.com/example/facesaas-client/internal/config"
	"github.com/example/facesaas-client/internal/connectivity"
	"github.com/example/facesaas-client/internal/logging"
)

// Options adjusts how the command tree reads its environment.
type Options struct {
	// Env replaces the process environment when set. No .env file is read.
	Env func(string) string
	// EnvFile names an env file to load instead of ./.env.
	EnvFile string
}

type runtime struct {
	opts      Options
	app       *app
	probeOpts []connectivity.Option
}

// Execute runs the command tree with os.Args and returns the exit code.
func Execute() int {
	cmd := NewRootCommand(Options{})
	if err := cmd.Execute(); err != nil {
		printError(cmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

// NewRootCommand builds the facesaas command tree.
func NewRootCommand(opts Options) *cobra.Command {
	rt := &runtime{opts: opts}

	root := &cobra.Command{
		Use:           "facesaas",
		Short:         "Command line client for the FaceSaaS face detection service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rt.opts.EnvFile, "env-file", opts.EnvFile, "env file to load instead of ./.env")
	root.PersistentFlags().Bool("stats", false, "print call statistics to stderr when done")

	root.AddCommand(
		newLoginCommand(rt),
		newRegisterCommand(rt),
		newLogoutCommand(rt),
		newHealthCommand(rt),
		newUploadCommand(rt),
		newImagesCommand(rt),
		newDeleteImageCommand(rt),
		newDetectCommand(rt),
		newCompareCommand(rt),
		newVerifyCommand(rt),
		newProfileCommand(rt),
		newUpdateProfileCommand(rt),
		newThresholdCommand(rt),
		newChangePasswordCommand(rt),
		newDeleteAccountCommand(rt),
		newUsageCommand(rt),
		newAPIKeyCommand(rt),
		newStubServerCommand(rt),
	)
	return root
}

func (rt *runtime) config() (*config.Config, error) {
	if rt.opts.Env != nil {
		return config.FromEnv(rt.opts.Env)
	}
	if rt.opts.EnvFile != "" {
		return config.Load(rt.opts.EnvFile)
	}
	return config.Load()
}

// run builds the data-access layer, hands it to fn and releases it.
func (rt *runtime) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := rt.load(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.close(); err == nil {
			err = closeErr
		}
	}()
	return fn(commandContext(cmd), a)
}

func (rt *runtime) load(cmd *cobra.Command) (*app, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	cfg, err := rt.config()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a, err := newApp(commandContext(cmd), cfg, logger, rt.probeOpts...)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	rt.app = a

	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		a.closers = append(a.closers, func() error {
			return writeJSON(cmd.ErrOrStderr(), a.summary.Snapshot())
		})
	}
	return a, nil
}

func (rt *runtime) close() error {
	if rt.app == nil {
		return nil
	}
	err := rt.app.close()
	_ = rt.app.logger.Sync()
	rt.app = nil
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(w io.Writer, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		_ = writeJSON(w, map[string]any{
			"error":     apiErr.Message,
			"kind":      apiErr.Kind,
			"status":    apiErr.Status,
			"retryable": apiErr.Retryable,
		})
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
