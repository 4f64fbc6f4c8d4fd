package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dgellow/generateui-api/internal/geoip"
	"github.com/dgellow/generateui-api/internal/storage"
)

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) InsertEvent(ctx context.Context, event *storage.TelemetryEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockLocator struct {
	mock.Mock
}

func (m *MockLocator) Locate(ctx context.Context, ip string) geoip.Location {
	args := m.Called(ctx, ip)
	return args.Get(0).(geoip.Location)
}
