package repo

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-latency/internal/models"
	"github.com/miradorstack/mirador-latency/internal/utils"
)

// DefaultHubAlias is the identifier alias of the hub actor in the event database.
const DefaultHubAlias = "mediator"

// EventStore loads the persisted event log used as the temporal match target.
type EventStore interface {
	LoadEvents(ctx context.Context) (models.EventLog, error)
}

// NoopEventStore yields an empty log, used when no event database is configured.
type NoopEventStore struct{}

// LoadEvents returns an empty log.
func (NoopEventStore) LoadEvents(ctx context.Context) (models.EventLog, error) {
	return models.EventLog{}, nil
}

type eventRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// messageQuery builds the message selection with the driver specific placeholder.
// Column names are quoted so the same statement works against sqlite and postgres.
func messageQuery(placeholder string, filtered bool) string {
	query := `SELECT "id", "type", "saveDate", "createdAt", "fromDid", "toDid" FROM "message"`
	if filtered {
		query += ` WHERE "toDid" = ` + placeholder
	}
	return query + ` ORDER BY "saveDate"`
}

func hubQuery(placeholder string) string {
	return `SELECT "did" FROM "identifier" WHERE "alias" = ` + placeholder + ` LIMIT 1`
}

// collectEvents converts message rows into log events. Rows without a parseable saveDate
// or createdAt are skipped and counted.
func collectEvents(rows eventRows) ([]models.LogEvent, int, error) {
	var (
		events  []models.LogEvent
		skipped int
	)
	for rows.Next() {
		var id, typ, saveDate, createdAt, from, to sql.NullString
		if err := rows.Scan(&id, &typ, &saveDate, &createdAt, &from, &to); err != nil {
			return nil, skipped, fmt.Errorf("scan message: %w", err)
		}
		ts, err := utils.ParseISOTimestamp(saveDate.String)
		if err != nil {
			ts, err = utils.ParseISOTimestamp(createdAt.String)
		}
		if err != nil {
			skipped++
			continue
		}
		events = append(events, models.LogEvent{
			ID:        id.String,
			Type:      typ.String,
			Timestamp: ts,
			From:      from.String,
			To:        to.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, skipped, fmt.Errorf("iterate messages: %w", err)
	}
	return events, skipped, nil
}

func logLoaded(logger *slog.Logger, driver string, log models.EventLog, skipped int) {
	logger.Info("event log loaded",
		slog.String("driver", driver),
		slog.Int("events", len(log.Events)),
		slog.Int("skipped", skipped),
		slog.String("hub", log.HubActor))
}
