// Package storage persists telemetry events. It is a write sink: nothing in
// the service reads events back.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateEvent is returned when an event id is already stored.
var ErrDuplicateEvent = errors.New("event already exists")

// TelemetryEvent is one row of telemetry_events. Pointer fields are
// nullable columns.
type TelemetryEvent struct {
	ID              string
	Event           string
	InstallationID  string
	DeviceID        string
	UserID          *string
	Email           *string
	CLIVersion      *string
	DeviceCreatedAt *time.Time
	IP              *string
	Country         *string
	City            *string
	CreatedAt       time.Time
}

// Validate checks the NOT NULL columns.
func (e *TelemetryEvent) Validate() error {
	switch {
	case e.ID == "":
		return errors.New("id is required")
	case e.Event == "":
		return errors.New("event is required")
	case e.InstallationID == "":
		return errors.New("installation id is required")
	case e.DeviceID == "":
		return errors.New("device id is required")
	}
	return nil
}

// EventStore is implemented by every backend.
type EventStore interface {
	InsertEvent(ctx context.Context, event *TelemetryEvent) error
	Ping(ctx context.Context) error
	Close() error
}
