package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/connectivity"
)

type healthReport struct {
	State     string     `json:"state"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
	Error     string     `json:"error,omitempty"`
	SignedIn  bool       `json:"signed_in"`
	ExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

func newHealthCommand(rt *runtime) *cobra.Command {
	var (
		watch       time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether the face service is reachable",
		Long: `Runs one liveness check and prints the connectivity state.

With --watch the check repeats on the given interval and every state change
is printed until the command is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if watch > 0 {
				rt.probeOpts = append(rt.probeOpts, connectivity.WithListener(func(prev, next connectivity.State) {
					if next == connectivity.Checking {
						return
					}
					_ = writeJSON(out, map[string]string{"from": prev.String(), "to": next.String()})
				}))
			}
			return rt.run(cmd, func(ctx context.Context, a *app) error {
				if watch <= 0 {
					if _, err := a.probe.Check(ctx); err != nil {
						return err
					}
					return writeJSON(out, report(a))
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				if metricsAddr != "" {
					shutdown, err := serveMetrics(a, metricsAddr)
					if err != nil {
						return err
					}
					defer shutdown()
				}
				a.probe.Run(ctx, watch)
				return nil
			})
		},
	}
	cmd.Flags().DurationVarP(&watch, "watch", "w", 0, "repeat the check on this interval")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")
	return cmd
}

func report(a *app) healthReport {
	snap := a.probe.Snapshot()
	r := healthReport{State: snap.State.String()}
	if !snap.CheckedAt.IsZero() {
		checked := snap.CheckedAt.UTC()
		r.CheckedAt = &checked
	}
	if snap.LastErr != nil {
		r.Error = snap.LastErr.Error()
	}
	_, r.SignedIn = a.session.Token()
	if exp, ok := a.session.ExpiresAt(); ok && r.SignedIn {
		exp = exp.UTC()
		r.ExpiresAt = &exp
	}
	return r
}

func serveMetrics(a *app, addr string) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", listener.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
