package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/techoutagebot/audiofeed/internal/api"
	"github.com/techoutagebot/audiofeed/internal/config"
	"github.com/techoutagebot/audiofeed/internal/events"
	"github.com/techoutagebot/audiofeed/internal/feed"
	"github.com/techoutagebot/audiofeed/internal/observability"
	"github.com/techoutagebot/audiofeed/internal/resilience"
	"github.com/techoutagebot/audiofeed/internal/speech"
	"github.com/techoutagebot/audiofeed/internal/spool"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the feed writer and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				// Use fmt for fatal errors before logger is initialized
				fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("version", Version).
		Str("port", cfg.Port).
		Str("pipe", cfg.PipePath).
		Str("format", cfg.Format().String()).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("speech_enabled", cfg.SpeechEnabled()).
		Msg("Audio feed service starting")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		logger.Error().Err(err).Str("port", cfg.Port).Msg("Failed to listen")
		return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
	}
	return svc.run(ctx, lis)
}

// service is the wired feed writer with its HTTP, gRPC and spool front ends
type service struct {
	cfg        *config.Config
	logger     zerolog.Logger
	opener     *feed.PipeOpener
	session    *feed.Session
	hub        *events.Hub
	server     *http.Server
	grpcHealth *observability.GRPCHealth
	watcher    *spool.Watcher
}

func newService(cfg *config.Config) (*service, error) {
	s := &service{
		cfg:    cfg,
		logger: observability.GetLogger(),
		hub:    events.NewHub(observability.Component("events")),
	}
	observers := feed.Observers{s.hub}

	if cfg.GRPCPort > 0 {
		s.grpcHealth = observability.NewGRPCHealth(observability.Component("grpc"))
		observers = append(observers, feed.ObserverFunc(func(e feed.Event) {
			if e.Type == feed.EventState {
				s.grpcHealth.SetServing(e.State == feed.StateActive)
			}
		}))
	}

	s.opener = feed.NewPipeOpener(
		cfg.PipePath,
		time.Duration(cfg.OpenPollMs)*time.Millisecond,
		time.Duration(cfg.OpenPollMaxMs)*time.Millisecond,
		observability.Component("pipe"),
	)
	s.session = feed.NewSession(s.opener, feed.Options{
		Format:      cfg.Format(),
		ChunkSize:   cfg.ChunkSize,
		SilenceUnit: cfg.SilenceUnit(),
		Observer:    observers,
	}, observability.Component("feed"))

	apiOpts := api.Options{
		SessionID:      s.session.ID,
		RatePerMinute:  cfg.EnqueueRatePerMinute,
		Burst:          cfg.EnqueueBurst,
		Events:         s.hub,
		MetricsEnabled: cfg.MetricsEnabled,
	}
	if cfg.SpeechEnabled() {
		apiOpts.Announcer = speech.NewAnnouncer(newSpeechClient(cfg), s.session)
	}

	s.server = &http.Server{
		Handler:      api.NewServer(s.session, apiOpts, observability.Component("api")).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // Announcements wait for synthesis
		IdleTimeout:  60 * time.Second,
	}

	if cfg.SpoolDir != "" {
		w, err := spool.New(spool.Config{
			Dir:       cfg.SpoolDir,
			Extension: cfg.SpoolExtension,
		}, s.session, observability.Component("spool"))
		if err != nil {
			s.logger.Error().Err(err).Str("dir", cfg.SpoolDir).Msg("Failed to start spool watcher")
			return nil, err
		}
		s.watcher = w
	}

	return s, nil
}

// run starts the writer and serves the API on lis until ctx is cancelled or
// a component fails. lis is closed on return.
func (s *service) run(ctx context.Context, lis net.Listener) error {
	logger := s.logger

	if err := s.session.Start(ctx); err != nil {
		lis.Close()
		if feed.IsFatal(err) {
			logger.Error().Err(err).Str("pipe", s.opener.Path()).Msg("Feed sink misconfigured")
		} else {
			logger.Error().Err(err).Str("pipe", s.opener.Path()).Msg("Failed to start feed")
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-s.session.Done():
			if err := s.session.Err(); err != nil {
				return fmt.Errorf("feed writer: %w", err)
			}
			return nil
		}
	})

	g.Go(func() error {
		logger.Info().Str("addr", lis.Addr().String()).Msg("Server listening")
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.hub.Close()
		return s.server.Shutdown(shutdownCtx)
	})

	if s.grpcHealth != nil {
		g.Go(func() error {
			return s.grpcHealth.ListenAndServe(gctx, fmt.Sprintf(":%d", s.cfg.GRPCPort))
		})
	}

	if s.watcher != nil {
		g.Go(func() error { return s.watcher.Run(gctx) })
	}

	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.StopTimeoutSecond)*time.Second)
	defer cancel()
	if stopErr := s.session.Stop(stopCtx); stopErr != nil {
		logger.Warn().Err(stopErr).Msg("Feed writer did not stop cleanly")
	}

	if err != nil {
		if feed.IsFatal(err) {
			logger.Error().Err(err).Str("pipe", s.opener.Path()).Msg("Feed sink misconfigured")
		} else {
			logger.Error().Err(err).Msg("Audio feed service failed")
		}
		return err
	}
	logger.Info().Msg("Server exited gracefully")
	return nil
}

func newSpeechClient(cfg *config.Config) *speech.Client {
	breaker := resilience.NewCircuitBreaker("speech", cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	logger := observability.Component("speech")
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger.Warn().Str("circuit", name).Str("state", state.String()).Msg("Circuit breaker state changed")
	})

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond

	return speech.NewClient(speech.Config{
		URL:       cfg.SpeechAPIURL,
		APIKey:    cfg.SpeechAPIKey,
		Model:     cfg.SpeechModel,
		Voice:     cfg.SpeechVoice,
		OutputDir: cfg.SpeechOutputDir,
		Timeout:   time.Duration(cfg.SpeechTimeout) * time.Second,
	}, breaker, retry, logger)
}
