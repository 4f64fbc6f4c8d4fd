package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/dgellow/generateui-api/internal/log"
)

var _ EventStore = (*PostgresStorage)(nil)

// uniqueViolation is the SQLSTATE for a primary key conflict.
const uniqueViolation = "23505"

// schema mirrors the table the CLI's telemetry has always written to.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS telemetry_events (
		id UUID PRIMARY KEY,
		event TEXT NOT NULL,
		installation_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		user_id TEXT,
		email TEXT,
		cli_version TEXT,
		device_created_at TIMESTAMP,
		ip TEXT,
		country TEXT,
		city TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS telemetry_events_event_idx ON telemetry_events(event)`,
	`CREATE INDEX IF NOT EXISTS telemetry_events_installation_idx ON telemetry_events(installation_id)`,
	`CREATE INDEX IF NOT EXISTS telemetry_events_device_idx ON telemetry_events(device_id)`,
	`CREATE INDEX IF NOT EXISTS telemetry_events_user_idx ON telemetry_events(user_id)`,
	`CREATE INDEX IF NOT EXISTS telemetry_events_email_idx ON telemetry_events(email)`,
	`CREATE INDEX IF NOT EXISTS telemetry_events_created_at_idx ON telemetry_events(created_at)`,
}

const insertEventQuery = `
	INSERT INTO telemetry_events (
		id, event, installation_id, device_id, user_id, email,
		cli_version, device_created_at, ip, country, city, created_at
	)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())`

// PostgresStorage writes events through database/sql and lib/pq.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage connects, verifies the connection and bootstraps the
// schema.
func NewPostgresStorage(ctx context.Context, connectionString string) (*PostgresStorage, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStorage{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to PostgreSQL", map[string]any{
		"table": "telemetry_events",
	})
	return s, nil
}

func (s *PostgresStorage) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// insertArgs orders the event fields for insertEventQuery. nil pointers
// become SQL NULL.
func insertArgs(e *TelemetryEvent) []any {
	var deviceCreatedAt any
	if e.DeviceCreatedAt != nil {
		deviceCreatedAt = e.DeviceCreatedAt.UTC()
	}
	return []any{
		e.ID,
		e.Event,
		e.InstallationID,
		e.DeviceID,
		nullable(e.UserID),
		nullable(e.Email),
		nullable(e.CLIVersion),
		deviceCreatedAt,
		nullable(e.IP),
		nullable(e.Country),
		nullable(e.City),
	}
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (s *PostgresStorage) InsertEvent(ctx context.Context, event *TelemetryEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, insertEventQuery, insertArgs(event)...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			if pqErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID)
			}
			log.LogErrorWithFields("storage", "Postgres insert failed", map[string]any{
				"pg_code": string(pqErr.Code),
				"detail":  pqErr.Detail,
			})
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
