package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

var _ EventStore = (*MemoryStorage)(nil)

// MemoryStorage keeps events in process memory. Used in development and
// tests.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []TelemetryEvent
	ids    map[string]struct{}
	now    func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		ids: make(map[string]struct{}),
		now: time.Now,
	}
}

func (s *MemoryStorage) InsertEvent(_ context.Context, event *TelemetryEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[event.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID)
	}

	stored := *event
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	s.events = append(s.events, stored)
	s.ids[event.ID] = struct{}{}
	return nil
}

// Events returns a copy of everything stored, oldest first.
func (s *MemoryStorage) Events() []TelemetryEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func (s *MemoryStorage) Ping(context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
