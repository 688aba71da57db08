package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

// PostgresOptions tune the connection to a postgres-backed agent database.
type PostgresOptions struct {
	DSN            string
	HubAlias       string
	ConnectTimeout time.Duration
	MaxElapsed     time.Duration
}

// PostgresEventStore reads the message table from postgres through a pgx pool.
type PostgresEventStore struct {
	pool     *pgxpool.Pool
	hubAlias string
	logger   *slog.Logger
}

// NewPostgresEventStore opens a pool and pings it with exponential backoff.
func NewPostgresEventStore(ctx context.Context, opts PostgresOptions, logger *slog.Logger) (*PostgresEventStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HubAlias == "" {
		opts.HubAlias = DefaultHubAlias
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}

	poolConfig, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, utils.NewAppError("eventlog", "parse postgres dsn", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, utils.NewAppError("eventlog", "create postgres pool", err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 250 * time.Millisecond
	expo.MaxElapsedTime = opts.MaxElapsed
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			logger.Warn("postgres ping failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			return err
		}
		return nil
	}, backoff.WithContext(expo, ctx))
	if err != nil {
		pool.Close()
		return nil, utils.NewAppError("eventlog", "connect to postgres", err)
	}

	return &PostgresEventStore{pool: pool, hubAlias: opts.HubAlias, logger: logger}, nil
}

// LoadEvents resolves the hub actor and returns the messages addressed to it.
func (s *PostgresEventStore) LoadEvents(ctx context.Context) (models.EventLog, error) {
	var log models.EventLog
	err := s.pool.QueryRow(ctx, hubQuery("$1"), s.hubAlias).Scan(&log.HubActor)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return models.EventLog{}, fmt.Errorf("resolve hub identifier: %w", err)
	}

	var rows pgx.Rows
	if log.HubActor != "" {
		rows, err = s.pool.Query(ctx, messageQuery("$1", true), log.HubActor)
	} else {
		rows, err = s.pool.Query(ctx, messageQuery("$1", false))
	}
	if err != nil {
		return models.EventLog{}, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	events, skipped, err := collectEvents(rows)
	if err != nil {
		return models.EventLog{}, err
	}
	log.Events = events
	logLoaded(s.logger, "postgres", log, skipped)
	return log, nil
}

// Close releases the pool.
func (s *PostgresEventStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
