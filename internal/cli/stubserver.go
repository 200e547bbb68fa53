package cli

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/logging"
	"github.com/example/facesaas-client/internal/stubserver"
)

func newStubServerCommand(rt *runtime) *cobra.Command {
	var (
		addr       string
		secret     string
		similarity float64
		tokenTTL   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stub-server",
		Short: "Run an in-memory face service for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.config()
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			gin.SetMode(gin.ReleaseMode)
			stub := stubserver.New(stubserver.Options{
				Secret:     secret,
				TokenTTL:   tokenTTL,
				Similarity: similarity,
				Logger:     logger,
			})
			server := &http.Server{
				Addr:              addr,
				Handler:           stub.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info("stub service listening", zap.String("addr", addr))
			return stubserver.Serve(server, 15*time.Second, logger, nil, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	cmd.Flags().StringVar(&secret, "secret", "dev-secret", "JWT signing secret")
	cmd.Flags().Float64Var(&similarity, "similarity", 85.2, "similarity score reported by comparisons")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 30*time.Minute, "access token lifetime")
	return cmd
}
