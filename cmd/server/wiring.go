package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fanout/flychat/internal/config"
	"github.com/fanout/flychat/internal/fanout"
	"github.com/fanout/flychat/internal/store"
)

// openStore connects the configured room log store. The postgres driver
// applies pending migrations first.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.RoomLogStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store, rooms are lost on restart")
		return store.NewMemoryStore(), nil

	case config.StoreRedis:
		s, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info().Msg("connected to Redis")
		return s, nil

	case config.StorePostgres:
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		logger.Info().Msg("connected to PostgreSQL")
		return s, nil

	case config.StoreSQLite:
		s, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite open failed: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
		return s, nil

	case config.StorePebble:
		s, err := store.NewPebbleStore(store.PebbleOptions{DataDir: cfg.PebbleDir, Sync: true})
		if err != nil {
			return nil, fmt.Errorf("pebble open failed: %w", err)
		}
		logger.Info().Str("dir", cfg.PebbleDir).Msg("opened Pebble store")
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store)
}

// openFanout returns the transport messages are published on and, in direct
// mode, the broker held streams subscribe to. In GRIP mode the broker is nil.
func openFanout(ctx context.Context, cfg *config.Config, s store.RoomLogStore, logger zerolog.Logger) (fanout.Transport, fanout.Broker, error) {
	if cfg.GripMode() {
		grip, err := fanout.ParseGripURI(cfg.GripURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().
			Str("control_uri", grip.ControlURI).
			Bool("signed", grip.ControlIss != "").
			Msg("publishing through GRIP proxy")
		return fanout.NewGripPublisher(grip, nil), nil, nil
	}

	brokerLogger := logger.With().Str("component", "broker").Logger()
	switch cfg.Broker {
	case config.BrokerRedis:
		// Both read REDIS_URL, so reuse the store's client.
		if rs, ok := s.(*store.RedisStore); ok {
			b := fanout.NewRedisBrokerFromClient(rs.Client(), brokerLogger)
			return b, b, nil
		}
		b, err := fanout.NewRedisBroker(ctx, cfg.RedisURL, brokerLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("redis broker: %w", err)
		}
		return b, b, nil
	default:
		b := fanout.NewMemoryBroker()
		return b, b, nil
	}
}
