package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foyer-io/foyer/internal/audit"
	"github.com/foyer-io/foyer/internal/orchestrator"
	"github.com/foyer-io/foyer/internal/policy"
	"github.com/foyer-io/foyer/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *audit.Store) {
	t.Helper()

	pol, err := policy.Default()
	require.NoError(t, err)

	records, err := audit.NewStore(filepath.Join(t.TempDir(), "audit.db"), testutil.TestSigningKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	// The queue is never drained in these tests; enqueueing is all the
	// webhook handler does.
	orch := orchestrator.New(orchestrator.Config{QueueSize: 4})

	return NewServer(orch, records, pol), records
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
}

func TestUtteranceAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Routes()

	body := `{"text": "turn on the fan", "metadata": {"context": {"id": "conv-1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/events/utterance", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var out map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "queued", out["status"])
}

func TestUtteranceMissingContextRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Routes()

	tests := []struct {
		name string
		body string
	}{
		{"no metadata", `{"text": "turn on the fan"}`},
		{"empty metadata", `{"text": "turn on the fan", "metadata": {}}`},
		{"null context", `{"text": "x", "metadata": {"context": null}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/events/utterance", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestUtteranceInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/events/utterance", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUtteranceQueueFull(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Routes()

	body := `{"text": "hi", "metadata": {"context": {"id": "c"}}}`
	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/events/utterance", strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusServiceUnavailable, last)
}

func TestAuditEndpoints(t *testing.T) {
	srv, records := newTestServer(t)
	r := srv.Routes()

	rec0 := &audit.Record{CorrelationID: "conv-1", Model: "m", PolicyVersion: "v"}
	require.NoError(t, records.Append(context.Background(), rec0))

	req := httptest.NewRequest(http.MethodGet, "/v1/audit?limit=5", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var listOut struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listOut))
	assert.Equal(t, 1, listOut.Count)

	req = httptest.NewRequest(http.MethodGet, "/v1/audit/"+rec0.ID+"/verify", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var verifyOut struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&verifyOut))
	assert.True(t, verifyOut.Valid)

	req = httptest.NewRequest(http.MethodGet, "/v1/audit/nonexistent/verify", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/v1/policy", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Version string   `json:"version"`
		Actions []string `json:"actions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.NotEmpty(t, out.Version)
	assert.Contains(t, out.Actions, "turn_on_fan")
}
