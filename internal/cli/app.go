package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/facesaas-client/internal/client"
	"github.com/example/facesaas-client/internal/config"
	"github.com/example/facesaas-client/internal/connectivity"
	"github.com/example/facesaas-client/internal/session"
	"github.com/example/facesaas-client/internal/simulator"
	"github.com/example/facesaas-client/internal/transport"
	"github.com/example/facesaas-client/internal/upload"
)

const userAgent = "facesaas-cli/1.0"

// app is the wired data-access layer shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	session   *session.Session
	transport *transport.Transport
	probe     *connectivity.Probe
	validator *upload.Validator
	client    *client.Client
	summary   *transport.Summary
	registry  *prometheus.Registry
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, probeOpts ...connectivity.Option) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		summary:  transport.NewSummary(),
		registry: prometheus.NewRegistry(),
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.session = session.New(store, logger)
	if err := a.session.Restore(ctx); err != nil {
		logger.Warn("could not restore session", zap.Error(err))
	}

	observers := transport.Observers{
		transport.NewLogObserver(logger),
		a.summary,
		transport.NewMetricsObserver(a.registry),
	}
	a.transport = transport.New(transport.Config{
		BaseURL:      cfg.BaseURL,
		Timeout:      cfg.Timeout,
		MediaTimeout: cfg.MediaTimeout,
		UserAgent:    userAgent,
	}, a.session, observers, logger)

	pinger, err := a.pinger(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	opts := append([]connectivity.Option{
		connectivity.WithTimeout(cfg.ProbeTimeout),
		connectivity.WithLogger(logger),
	}, probeOpts...)
	a.probe = connectivity.NewProbe(pinger, opts...)

	a.validator = upload.NewValidator(upload.WithMaxSize(cfg.MaxUploadBytes))

	var sim *simulator.Simulator
	if cfg.Simulation {
		sim = simulator.New(simulator.Config{
			UploadLatency:  cfg.UploadLatency,
			CompareLatency: cfg.CompareLatency,
		})
	}

	a.client = client.New(client.Deps{
		Transport: a.transport,
		Session:   a.session,
		Probe:     a.probe,
		Simulator: sim,
		Validator: a.validator,
		Logger:    logger,
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) (session.Store, error) {
	switch a.cfg.SessionStore {
	case config.StoreMemory:
		return session.NewMemoryStore(), nil
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		a.closers = append(a.closers, rdb.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		return session.NewRedisStore(rdb, "facesaas", 0, a.logger), nil
	case config.StorePostgres:
		db, err := gorm.Open(postgres.Open(a.cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err != nil {
			return nil, fmt.Errorf("postgres session store: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres session store: %w", err)
		}
		a.closers = append(a.closers, sqlDB.Close)
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetConnMaxLifetime(time.Hour)
		store := session.NewGormStore(db)
		if err := store.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres session store: %w", err)
		}
		return store, nil
	default:
		if a.cfg.SessionDir != "" {
			if err := os.MkdirAll(a.cfg.SessionDir, 0o700); err != nil {
				return nil, fmt.Errorf("local session store: %w", err)
			}
		}
		store, err := session.OpenBadgerStore(a.cfg.SessionDir)
		if err != nil {
			return nil, fmt.Errorf("local session store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
}

func (a *app) pinger(ctx context.Context) (connectivity.Pinger, error) {
	if a.cfg.GRPCHealthAddr == "" {
		return connectivity.NewHTTPPinger(a.transport, ""), nil
	}
	p, err := connectivity.DialGRPCPinger(ctx, a.cfg.GRPCHealthAddr, "")
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.Close)
	return p, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
