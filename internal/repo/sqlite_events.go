package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

// SQLiteEventStore reads the message table of an agent database file.
type SQLiteEventStore struct {
	path     string
	hubAlias string
	required bool
	logger   *slog.Logger
}

// NewSQLiteEventStore constructs a store over path. When required is false a missing file
// yields an empty log instead of a setup error.
func NewSQLiteEventStore(path, hubAlias string, required bool, logger *slog.Logger) *SQLiteEventStore {
	if hubAlias == "" {
		hubAlias = DefaultHubAlias
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteEventStore{path: path, hubAlias: hubAlias, required: required, logger: logger}
}

// LoadEvents resolves the hub actor and returns the messages addressed to it ordered by
// save date. Without a hub identifier every message is returned.
func (s *SQLiteEventStore) LoadEvents(ctx context.Context) (models.EventLog, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !s.required {
			s.logger.Info("event database absent, continuing without event log", slog.String("path", s.path))
			return models.EventLog{}, nil
		}
		return models.EventLog{}, utils.NewAppError("eventlog", "event database not found", fmt.Errorf("%s: %w", s.path, utils.ErrInputNotFound))
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", s.path))
	if err != nil {
		return models.EventLog{}, utils.NewAppError("eventlog", "open event database", err)
	}
	defer db.Close()

	var log models.EventLog
	err = db.QueryRowContext(ctx, hubQuery("?"), s.hubAlias).Scan(&log.HubActor)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.EventLog{}, fmt.Errorf("resolve hub identifier: %w", err)
	}

	var rows *sql.Rows
	if log.HubActor != "" {
		rows, err = db.QueryContext(ctx, messageQuery("?", true), log.HubActor)
	} else {
		rows, err = db.QueryContext(ctx, messageQuery("?", false))
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
	logLoaded(s.logger, "sqlite", log, skipped)
	return log, nil
}

// SeedMessage is one message row written by SeedSQLite.
type SeedMessage struct {
	ID        string
	Type      string
	SaveDate  string
	CreatedAt string
	From      string
	To        string
}

// SeedSQLite creates the identifier and message tables at path and inserts the hub
// identifier and messages. It is used by local tooling and tests.
func SeedSQLite(ctx context.Context, path, hubAlias, hubDID string, messages []SeedMessage) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS "identifier" ("did" TEXT PRIMARY KEY, "alias" TEXT)`,
		`CREATE TABLE IF NOT EXISTS "message" (
			"id" TEXT PRIMARY KEY,
			"type" TEXT,
			"saveDate" TEXT,
			"createdAt" TEXT,
			"fromDid" TEXT,
			"toDid" TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	if hubDID != "" {
		if _, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO "identifier" ("did", "alias") VALUES (?, ?)`, hubDID, hubAlias); err != nil {
			return fmt.Errorf("insert identifier: %w", err)
		}
	}
	for _, m := range messages {
		if _, err := db.ExecContext(ctx,
			`INSERT OR REPLACE INTO "message" ("id", "type", "saveDate", "createdAt", "fromDid", "toDid") VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.Type, nullable(m.SaveDate), nullable(m.CreatedAt), m.From, m.To); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
