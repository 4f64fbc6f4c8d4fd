package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dgellow/generateui-api/internal/log"
)

var _ EventStore = (*FirestoreStorage)(nil)

// FirestoreStorage writes one document per event, keyed by event id.
type FirestoreStorage struct {
	client     *firestore.Client
	collection string
}

// TelemetryEventDoc is the Firestore document shape. Field names match the
// Postgres columns.
type TelemetryEventDoc struct {
	Event           string     `firestore:"event"`
	InstallationID  string     `firestore:"installation_id"`
	DeviceID        string     `firestore:"device_id"`
	UserID          *string    `firestore:"user_id"`
	Email           *string    `firestore:"email"`
	CLIVersion      *string    `firestore:"cli_version"`
	DeviceCreatedAt *time.Time `firestore:"device_created_at"`
	IP              *string    `firestore:"ip"`
	Country         *string    `firestore:"country"`
	City            *string    `firestore:"city"`
	CreatedAt       time.Time  `firestore:"created_at"`
}

func newEventDoc(e *TelemetryEvent, now time.Time) TelemetryEventDoc {
	created := e.CreatedAt
	if created.IsZero() {
		created = now
	}
	return TelemetryEventDoc{
		Event:           e.Event,
		InstallationID:  e.InstallationID,
		DeviceID:        e.DeviceID,
		UserID:          e.UserID,
		Email:           e.Email,
		CLIVersion:      e.CLIVersion,
		DeviceCreatedAt: e.DeviceCreatedAt,
		IP:              e.IP,
		Country:         e.Country,
		City:            e.City,
		CreatedAt:       created.UTC(),
	}
}

// NewFirestoreStorage creates a Firestore-backed store. credentialsFile is
// optional; without it Application Default Credentials are used.
func NewFirestoreStorage(ctx context.Context, projectID, database, collection, credentialsFile string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	} else {
		client, err = firestore.NewClient(ctx, projectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{client: client, collection: collection}, nil
}

func (s *FirestoreStorage) InsertEvent(ctx context.Context, event *TelemetryEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	doc := newEventDoc(event, time.Now())
	if _, err := s.client.Collection(s.collection).Doc(event.ID).Create(ctx, doc); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Ping reads at most one document to confirm the collection is reachable.
func (s *FirestoreStorage) Ping(ctx context.Context) error {
	iter := s.client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err != nil && err != iterator.Done {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
