// Command ndn-orion-adapter stores NDN sensor measurements in a FIWARE
// Orion context broker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dratasich/ndn-orion-adapter/adapter"
	"github.com/dratasich/ndn-orion-adapter/config"
	"github.com/dratasich/ndn-orion-adapter/dispatch"
	"github.com/dratasich/ndn-orion-adapter/metrics"
	"github.com/dratasich/ndn-orion-adapter/mqtt"
	"github.com/dratasich/ndn-orion-adapter/ndn"
	"github.com/dratasich/ndn-orion-adapter/orion"
)

const drainTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger := newLogger(cfg)
	logger.Info().Msgf("Broker %s, forwarder %s, prefix %s", cfg.BrokerURL(), cfg.NDNAddress(), cfg.NDNPrefix)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	broker := orion.NewClient(cfg.BrokerURL(), cfg.BrokerTimeout, logger)

	pool := dispatch.NewPool(cfg.DispatchWorkers, cfg.DispatchQueueSize, m.IncDispatchDropped, logger)
	if err := pool.Start(context.WithoutCancel(ctx)); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start workers")
	}

	opts := adapter.HandlerOptions{
		EntityType:    cfg.EntityType,
		AttributeName: cfg.AttributeName,
		Metrics:       m,
		Logger:        logger,
	}
	if cfg.MQTT.Enabled() {
		mirror := mqtt.NewMirror(cfg.MQTT, logger)
		connectCtx, connectCancel := context.WithTimeout(ctx, cfg.StartupTimeout)
		if err := mirror.Connect(connectCtx); err != nil {
			// autopaho keeps retrying in the background
			logger.Warn().Err(err).Msg("MQTT mirror not connected yet")
		}
		connectCancel()
		defer mirror.Disconnect(context.WithoutCancel(ctx))
		opts.Mirror = mirror
	}

	liveness := &adapter.Liveness{}
	handler := adapter.NewHandler(adapter.NewReconciler(broker, cfg.EntityType), pool, liveness, opts)
	bootstrapper := adapter.NewBootstrapper(broker, adapter.SubscriptionSpec{
		Tag:             cfg.SubscriptionTag,
		Description:     cfg.SubscriptionDescription,
		EntityType:      cfg.EntityType,
		Attrs:           []string{cfg.AttributeName},
		NotificationURL: cfg.NotificationURL,
	}, logger)

	faceOpts := ndn.Options{RegisterTimeout: cfg.RegisterTimeout, Logger: logger}
	dial := func(ctx context.Context) (adapter.Face, error) {
		face, err := ndn.Dial(ctx, "tcp", cfg.NDNAddress(), faceOpts)
		if err != nil {
			return nil, err
		}
		return face, nil
	}

	supervisor := adapter.NewSupervisor(broker, bootstrapper, dial, handler.OnInterest, liveness, adapter.SupervisorOptions{
		Prefix:         cfg.Prefix(),
		StartupTimeout: cfg.StartupTimeout,
		PollInterval:   cfg.HealthPollInterval,
		TickInterval:   cfg.TickInterval,
		StallTimeout:   cfg.StallTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
		Metrics:        m,
		Logger:         logger,
	})

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, registry, supervisor.Healthy)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runErr := supervisor.Run(ctx)
	if err := pool.Stop(drainTimeout); err != nil {
		logger.Warn().Err(err).Msg("Pending measurements dropped")
	}
	if runErr != nil {
		// Fatal exits without running the deferred cleanup
		logger.Fatal().Err(runErr).Msg("Giving up")
	}
	logger.Info().Msg("Bye")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level())
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.With().Timestamp().Logger()
}
