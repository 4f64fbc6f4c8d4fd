package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dgellow/generateui-api/internal/geoip"
	"github.com/dgellow/generateui-api/internal/ioutil"
	jsonwriter "github.com/dgellow/generateui-api/internal/json"
	"github.com/dgellow/generateui-api/internal/log"
	"github.com/dgellow/generateui-api/internal/sessiontoken"
	"github.com/dgellow/generateui-api/internal/storage"
)

const maxEventBytes = 64 << 10

var errInvalidDeviceCreatedAt = errors.New("deviceCreatedAt is not a valid timestamp")

// deviceTimeLayouts are tried in order when parsing deviceCreatedAt.
var deviceTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

type okResponse struct {
	OK bool `json:"ok"`
}

// eventPayload is the body of POST /telemetry and POST /events.
type eventPayload struct {
	Event           string  `json:"event"`
	InstallationID  string  `json:"installationId"`
	DeviceID        string  `json:"deviceId"`
	Email           *string `json:"email"`
	CLIVersion      *string `json:"cliVersion"`
	DeviceCreatedAt *string `json:"deviceCreatedAt"`
}

func (p eventPayload) complete() bool {
	return p.Event != "" && p.InstallationID != "" && p.DeviceID != ""
}

func (p eventPayload) deviceCreatedAt() (*time.Time, error) {
	if p.DeviceCreatedAt == nil || *p.DeviceCreatedAt == "" {
		return nil, nil
	}
	for _, layout := range deviceTimeLayouts {
		if t, err := time.Parse(layout, *p.DeviceCreatedAt); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errInvalidDeviceCreatedAt
}

// TelemetryHandlers records CLI usage events.
type TelemetryHandlers struct {
	store    storage.EventStore
	locator  geoip.Locator
	sessions *sessiontoken.Issuer
	newID    func() string
}

func NewTelemetryHandlers(store storage.EventStore, locator geoip.Locator, sessions *sessiontoken.Issuer) *TelemetryHandlers {
	return &TelemetryHandlers{
		store:    store,
		locator:  locator,
		sessions: sessions,
		newID:    uuid.NewString,
	}
}

// TelemetryHandler handles POST /telemetry. A bearer token is optional; when
// present it must verify and the event is attributed to its subject instead
// of the self-reported email.
func (h *TelemetryHandlers) TelemetryHandler(w http.ResponseWriter, r *http.Request) {
	var payload eventPayload
	if err := ioutil.DecodeJSON(r.Body, maxEventBytes, &payload); err != nil || !payload.complete() {
		jsonwriter.WriteBadRequest(w, "invalid payload")
		return
	}

	deviceCreatedAt, err := payload.deviceCreatedAt()
	if err != nil {
		jsonwriter.WriteBadRequest(w, "invalid payload")
		return
	}

	event := &storage.TelemetryEvent{
		ID:              h.newID(),
		Event:           payload.Event,
		InstallationID:  payload.InstallationID,
		DeviceID:        payload.DeviceID,
		Email:           payload.Email,
		CLIVersion:      payload.CLIVersion,
		DeviceCreatedAt: deviceCreatedAt,
	}

	if token := bearerToken(r); token != "" {
		claims, err := h.sessions.Verify(token)
		if err != nil {
			log.LogDebugWithFields("telemetry", "Rejected session token", map[string]any{
				"error": err.Error(),
			})
			jsonwriter.WriteUnauthorized(w, "invalid token")
			return
		}
		event.UserID = &claims.Subject
		event.Email = nil
	}

	ip := clientIP(r)
	if ip != "" {
		event.IP = &ip
	}
	loc := h.locator.Locate(r.Context(), ip)
	event.Country, event.City = loc.Country, loc.City

	if err := h.store.InsertEvent(r.Context(), event); err != nil {
		log.LogErrorWithFields("telemetry", "Failed to store event", map[string]any{
			"event": event.Event,
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "failed to record event")
		return
	}

	_ = jsonwriter.Write(w, okResponse{OK: true})
}

// EventsHandler handles POST /events, the older unauthenticated sink. It
// stores complete events without geo enrichment and always acknowledges.
func (h *TelemetryHandlers) EventsHandler(w http.ResponseWriter, r *http.Request) {
	var payload eventPayload
	if err := ioutil.DecodeJSON(r.Body, maxEventBytes, &payload); err != nil {
		log.LogDebugWithFields("events", "Ignoring undecodable event", map[string]any{
			"error": err.Error(),
		})
		_ = jsonwriter.Write(w, okResponse{OK: true})
		return
	}

	if payload.complete() {
		deviceCreatedAt, _ := payload.deviceCreatedAt()
		ip := clientIP(r)

		event := &storage.TelemetryEvent{
			ID:              h.newID(),
			Event:           payload.Event,
			InstallationID:  payload.InstallationID,
			DeviceID:        payload.DeviceID,
			Email:           payload.Email,
			CLIVersion:      payload.CLIVersion,
			DeviceCreatedAt: deviceCreatedAt,
		}
		if ip != "" {
			event.IP = &ip
		}

		if err := h.store.InsertEvent(r.Context(), event); err != nil {
			log.LogErrorWithFields("events", "Failed to store event", map[string]any{
				"event": event.Event,
				"error": err.Error(),
			})
		}
	}

	_ = jsonwriter.Write(w, okResponse{OK: true})
}
