package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/easydeploy/internal/builder"
	"github.com/alvesdmateus/easydeploy/internal/credentials"
	"github.com/alvesdmateus/easydeploy/internal/dispatcher"
	"github.com/alvesdmateus/easydeploy/internal/gateway"
	"github.com/alvesdmateus/easydeploy/internal/notify"
	"github.com/alvesdmateus/easydeploy/internal/observability"
	"github.com/alvesdmateus/easydeploy/internal/state"
	"github.com/alvesdmateus/easydeploy/internal/tracker"
	"github.com/alvesdmateus/easydeploy/pkg/database"
)

// session holds the components one command invocation works with.
type session struct {
	logger     zerolog.Logger
	metrics    *observability.Metrics
	registry   *prometheus.Registry
	gateway    *gateway.Client
	tracker    *tracker.Tracker
	dispatcher *dispatcher.Dispatcher
	closers    []func() error
}

type sessionOptions struct {
	// requireKey fails early when no API key is configured.
	requireKey bool
	// build attaches a Docker image builder.
	build bool
	// progress receives WaitForCompletion updates.
	progress func(gateway.DeploymentDetail)
}

// apiKey resolves the key from config (flag, EASYDEPLOY_API_KEY, config
// file) and then the credential store.
func apiKey() (string, error) {
	if cfg.API.Key != "" {
		return cfg.API.Key, nil
	}
	key, _, err := credentials.NewStore(cfg.API.URL).Lookup()
	return key, err
}

func newSession(cmd *cobra.Command, opts sessionOptions) (*session, error) {
	ctx := cmd.Context()
	logger := log.Logger

	key, err := apiKey()
	if err != nil {
		if opts.requireKey || !errors.Is(err, credentials.ErrNoCredential) {
			return nil, err
		}
	}

	rt := &session{logger: logger, registry: prometheus.NewRegistry()}
	rt.metrics = observability.NewMetrics("easydeploy", rt.registry)

	if err := observability.InitGlobalTracer(ctx, observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Insecure:       cfg.Tracing.Insecure,
	}); err != nil {
		logger.Warn().Err(err).Msg("Tracing disabled")
	} else {
		rt.closers = append(rt.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return observability.ShutdownGlobalTracer(shutdownCtx)
		})
	}

	rt.gateway, err = gateway.New(cfg.API.URL, key,
		gateway.WithTimeout(cfg.API.Timeout),
		gateway.WithHealthTimeout(cfg.API.HealthTimeout),
		gateway.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		gateway.WithUserAgent("easydeploy-cli/"+Version),
		gateway.WithMetrics(rt.metrics),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	trackerOpts := []tracker.Option{tracker.WithLogger(logger), tracker.WithMetrics(rt.metrics)}
	if cfg.State.Enabled {
		if store, err := rt.openStore(); err != nil {
			logger.Warn().Err(err).Msg("Tracked deployments will not persist")
		} else {
			trackerOpts = append(trackerOpts, tracker.WithStore(store))
		}
	}
	if cfg.Notify.RedisURL != "" {
		pub, err := notify.NewRedisPublisher(cfg.Notify.RedisURL, cfg.Notify.RedisPassword, cfg.Notify.RedisDB, cfg.Notify.Channel)
		if err != nil {
			logger.Warn().Err(err).Msg("Deployment events will not be published")
		} else {
			trackerOpts = append(trackerOpts, tracker.WithNotifier(pub))
			rt.closers = append(rt.closers, pub.Close)
		}
	}
	rt.tracker = tracker.New(trackerOpts...)
	if err := rt.tracker.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("Starting with an empty deployment list")
	}

	dispatcherOpts := []dispatcher.Option{
		dispatcher.WithLogger(logger),
		dispatcher.WithMetrics(rt.metrics),
		dispatcher.WithPollDelay(cfg.Deploy.PollDelay),
		dispatcher.WithRetry(dispatcher.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		}),
	}
	if opts.progress != nil {
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithProgress(opts.progress))
	}
	if opts.build {
		b, err := builder.NewDockerBuilder(
			builder.WithOutput(cmd.ErrOrStderr()),
			builder.WithMetrics(rt.metrics),
			builder.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", dispatcher.ErrBuildFailed, err)
		}
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithBuilder(b))
		rt.closers = append(rt.closers, b.Close)
	}
	rt.dispatcher = dispatcher.New(rt.gateway, rt.tracker, dispatcherOpts...)

	return rt, nil
}

func (rt *session) openStore() (tracker.Store, error) {
	db, err := database.Open(database.Config{Path: cfg.State.Path})
	if err != nil {
		return nil, err
	}
	if err := state.AutoMigrate(db); err != nil {
		rt.logger.Warn().Err(err).Str("path", cfg.State.Path).Msg("Rebuilding deployment state")
		if err := state.Reset(db); err != nil {
			_ = database.Close(db)
			return nil, err
		}
	}

	repo := state.NewRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	counts, err := repo.CountByState(ctx)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	rt.logger.Debug().Str("path", cfg.State.Path).Interface("by_state", counts).Msg("Opened deployment state")

	rt.closers = append(rt.closers, func() error { return database.Close(db) })
	return state.NewTrackerStore(repo), nil
}

// Close stops the dispatcher and releases resources in reverse order.
func (rt *session) Close() {
	if rt.dispatcher != nil {
		rt.dispatcher.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Debug().Err(err).Msg("Cleanup failed")
		}
	}
}
