package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// ServiceCall captures one service invocation received by the mock platform.
type ServiceCall struct {
	Service  string
	EntityID string
}

// FiredEvent captures one event emitted on the mock platform's bus.
type FiredEvent struct {
	Event   string
	Payload map[string]interface{}
}

// HistorySample mirrors the platform history wire shape.
type HistorySample struct {
	LastChanged string `json:"last_changed"`
	State       string `json:"state"`
}

// MockHass is an httptest-backed stand-in for the Home Assistant REST API:
// state reads, service calls, history lookups, and event emission. All
// interactions are recorded for assertions.
type MockHass struct {
	Server *httptest.Server

	mu       sync.Mutex
	states   map[string]string
	history  []HistorySample
	services []ServiceCall
	events   []FiredEvent
}

// NewMockHass starts a mock platform with the given entity states. Caller
// must register t.Cleanup(m.Server.Close).
func NewMockHass(states map[string]string) *MockHass {
	if states == nil {
		states = map[string]string{}
	}
	m := &MockHass{states: states}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *MockHass) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/states/"):
		entity := strings.TrimPrefix(r.URL.Path, "/api/states/")
		state, ok := m.states[entity]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"entity_id": entity, "state": state})

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/services/"):
		service := strings.TrimPrefix(r.URL.Path, "/api/services/")
		var body struct {
			EntityID string `json:"entity_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		m.services = append(m.services, ServiceCall{Service: service, EntityID: body.EntityID})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]interface{}{})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/history/period/"):
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([][]HistorySample{m.history})

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/events/"):
		event := strings.TrimPrefix(r.URL.Path, "/api/events/")
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		m.events = append(m.events, FiredEvent{Event: event, Payload: payload})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Event " + event + " fired."})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// SetHistory sets the samples returned by history lookups.
func (m *MockHass) SetHistory(samples []HistorySample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = samples
}

// SetState sets one entity state.
func (m *MockHass) SetState(entityID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[entityID] = state
}

// ServiceCalls returns a copy of the recorded service invocations.
func (m *MockHass) ServiceCalls() []ServiceCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ServiceCall(nil), m.services...)
}

// Events returns a copy of the recorded event emissions.
func (m *MockHass) Events() []FiredEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FiredEvent(nil), m.events...)
}

// URL returns the mock server's base URL.
func (m *MockHass) URL() string {
	return m.Server.URL
}
