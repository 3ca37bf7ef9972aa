package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/blockdew/service/db"
	"github.com/brojonat/blockdew/service/deploy"
	"github.com/brojonat/blockdew/service/metrics"
	natspkg "github.com/brojonat/blockdew/service/nats"
	"github.com/brojonat/blockdew/service/server"
)

// sinks are the optional NATS publisher and Postgres store. A sink that
// cannot be reached at startup is logged and skipped.
type sinks struct {
	publisher *natspkg.JetStreamPublisher
	pool      *pgxpool.Pool
	store     *db.Store
	logger    *slog.Logger
}

func openSinks(ctx context.Context, natsURL, databaseURL string, m *metrics.Metrics, logger *slog.Logger) *sinks {
	s := &sinks{logger: logger}

	if natsURL != "" {
		pub, err := natspkg.NewPublisher(natsURL, m, logger)
		if err != nil {
			logger.Warn("NATS unavailable, events will not be published", "error", err)
		} else {
			s.publisher = pub
		}
	}

	if databaseURL != "" {
		store, pool, err := openStore(ctx, databaseURL, m)
		if err != nil {
			logger.Warn("database unavailable, history will not be recorded", "error", err)
		} else {
			s.store, s.pool = store, pool
		}
	}

	return s
}

func openStore(ctx context.Context, databaseURL string, m *metrics.Metrics) (*db.Store, *pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return db.NewStore(pool, m), pool, nil
}

func (s *sinks) deployRecorders() []deploy.Recorder {
	var recorders []deploy.Recorder
	if s.publisher != nil {
		recorders = append(recorders, natspkg.NewRecorder(s.publisher))
	}
	if s.store != nil {
		recorders = append(recorders, s.store)
	}
	return recorders
}

func (s *sinks) history() server.History {
	if s.store == nil {
		return nil
	}
	return s.store
}

func (s *sinks) Close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
