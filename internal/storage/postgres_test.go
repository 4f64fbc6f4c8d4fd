package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	require.Len(t, schema, 7)
	assert.Contains(t, schema[0], "CREATE TABLE IF NOT EXISTS telemetry_events")
	for _, col := range []string{"event", "installation_id", "device_id", "user_id", "email", "created_at"} {
		found := false
		for _, stmt := range schema[1:] {
			if strings.Contains(stmt, "ON telemetry_events("+col+")") {
				found = true
			}
		}
		assert.True(t, found, "missing index on %s", col)
	}
}

func TestInsertArgs(t *testing.T) {
	e := sampleEvent()
	args := insertArgs(e)

	require.Len(t, args, 11)
	assert.Equal(t, strings.Count(insertEventQuery, "$"), len(args))
	assert.Equal(t, e.ID, args[0])
	assert.Equal(t, "generate", args[1])
	assert.Equal(t, "inst-1", args[2])
	assert.Equal(t, "dev-1", args[3])
	assert.Equal(t, "github:12345", args[4])
	assert.Nil(t, args[5], "nil email must be NULL")
	assert.Equal(t, "1.4.0", args[6])
	assert.Equal(t, e.DeviceCreatedAt.UTC(), args[7])
	assert.Equal(t, "8.8.8.8", args[8])
	assert.Equal(t, "US", args[9])
	assert.Nil(t, args[10])
}

func TestInsertArgs_NullDeviceCreatedAt(t *testing.T) {
	e := sampleEvent()
	e.DeviceCreatedAt = nil
	assert.Nil(t, insertArgs(e)[7])
}

func TestNewPostgresStorage_RequiresConnectionString(t *testing.T) {
	_, err := NewPostgresStorage(context.Background(), "")
	assert.ErrorContains(t, err, "connection string is required")
}

// TestPostgresStorage_Integration runs against a real database when
// TEST_DATABASE_URL is set.
func TestPostgresStorage_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := NewPostgresStorage(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))

	e := sampleEvent()
	e.ID = uuid.New().String()
	require.NoError(t, s.InsertEvent(ctx, e))
	assert.ErrorIs(t, s.InsertEvent(ctx, e), ErrDuplicateEvent)

	var event string
	var email *string
	row := s.db.QueryRowContext(ctx, `SELECT event, email FROM telemetry_events WHERE id = $1`, e.ID)
	require.NoError(t, row.Scan(&event, &email))
	assert.Equal(t, "generate", event)
	assert.Nil(t, email)
}
