package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fanout/flychat/internal/api"
	"github.com/fanout/flychat/internal/config"
	"github.com/fanout/flychat/internal/fanout"
	"github.com/fanout/flychat/internal/handlers"
	"github.com/fanout/flychat/internal/roomlog"
	"github.com/fanout/flychat/internal/session"
)

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	transport, broker, err := openFanout(ctx, cfg, s, logger)
	if err != nil {
		return err
	}
	defer transport.Close()

	l := roomlog.New(s, roomlog.Options{
		Retention: cfg.Retention,
		Retry:     retryPolicy(cfg.Retry),
		Logger:    logger.With().Str("component", "roomlog").Logger(),
	})
	svc := session.NewService(l,
		fanout.NewPublisher(transport, logger.With().Str("component", "fanout").Logger()),
		logger.With().Str("component", "session").Logger(),
	)
	h := handlers.NewHandler(handlers.Options{
		Session:   svc,
		Store:     s,
		Broker:    broker,
		KeepAlive: cfg.KeepAlive,
		Region:    cfg.Region,
		Instance:  cfg.Instance,
		Logger:    logger,
	})

	// Held streams end when base is cancelled, so Shutdown does not wait on
	// them until its timeout.
	base, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     api.NewRouter(logger, h, cfg.MaxBodySize),
		BaseContext: func(net.Listener) context.Context { return base },
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	if cfg.GripMode() {
		// The proxy holds streams, so every response here is short.
		srv.WriteTimeout = 15 * time.Second
	}

	mode := "direct"
	if cfg.GripMode() {
		mode = "grip"
	}
	logger.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Env).
		Str("store", cfg.Store).
		Str("mode", mode).
		Msg("starting flychat server")

	err = runServer(ctx, srv, cancelBase)
	logger.Info().Msg("server stopped")
	return err
}

func runServer(ctx context.Context, srv *http.Server, cancelStreams context.CancelFunc) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		cancelStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func retryPolicy(r config.Retry) roomlog.RetryPolicy {
	return roomlog.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		Base:        r.Base,
		Cap:         r.Cap,
		Factor:      r.Factor,
		Jitter:      r.Jitter,
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(level)
}
