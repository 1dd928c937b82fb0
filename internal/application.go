package application

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/config"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/metrics"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/tracing"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-rooms/transport/rest"
	"github.com/rocketscienceinc/tictactoe-rooms/transport/websocket"
)

// RunApp - runs the application until SIGINT or SIGTERM.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, conf.Tracing.ServiceName, conf.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("could not set up tracing: %w", err)
	}

	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("could not flush traces", "error", err)
		}
	}()

	sessions, closeStorage, err := newSessionRepository(ctx, conf)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeStorage(); err != nil {
			log.Error("could not close session storage", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	hub := websocket.NewHub(logger, appMetrics)
	coordinator := usecase.NewCoordinator(logger, sessions, hub, appMetrics, !conf.Game.TrustClientMarker)

	group, ctx := errgroup.WithContext(ctx)

	// run HTTP server
	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if err := rest.New(logger, sessions, registry).Start(ctx, conf.HTTPPort); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}

		return nil
	})

	// run Websocket server
	group.Go(func() error {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		if err := websocket.New(logger, conf.Websocket, hub, coordinator).Start(ctx, conf.SocketPort); err != nil {
			return fmt.Errorf("WebSocket server error: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		coordinator.RunEviction(ctx, conf.Session.ReapInterval, conf.Session.IdleTimeout)
		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	log.Info("Application context canceled, shutting down")

	return nil
}

func newSessionRepository(ctx context.Context, conf *config.Config) (repository.SessionRepository, func() error, error) {
	if conf.Storage != config.StorageRedis {
		return repository.NewMemorySessionRepository(), func() error { return nil }, nil
	}

	redisStorage, err := storage.NewRedisStorage(ctx, conf.Redis.Host, conf.Redis.Port, conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	ttl := max(conf.Session.IdleTimeout, 0)

	return repository.NewRedisSessionRepository(redisStorage.Connection, ttl), redisStorage.Close, nil
}
