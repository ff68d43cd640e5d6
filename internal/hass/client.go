// Package hass is the HTTP client for the home-automation platform: entity
// state reads, service invocation, the history API, and event emission.
// State values coming back are untrusted text; callers sanitize them before
// use. The service-call endpoint is reached only through the executor.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	foyerotel "github.com/foyer-io/foyer/internal/otel"
)

var tracer = foyerotel.Tracer("github.com/foyer-io/foyer/internal/hass")

// TimeoutHistory bounds a history-period lookup.
const TimeoutHistory = 10 * time.Second

// MaxHistorySamples caps the number of samples returned from a history
// lookup, bounding the size of the grounding block.
const MaxHistorySamples = 100

// Sample is one history record: a state value at a point in time.
type Sample struct {
	LastChanged string `json:"last_changed"`
	State       string `json:"state"`
}

// Client talks to the Home Assistant REST API with bearer-token auth.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL and long-lived token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// State returns the current state value of an entity as untrusted text.
func (c *Client) State(ctx context.Context, entityID string) (string, error) {
	ctx, span := tracer.Start(ctx, "hass.state")
	defer span.End()
	span.SetAttributes(attribute.String("entity_id", entityID))

	req, err := c.newRequest(ctx, "GET", "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("state api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("state api status %d for %s", resp.StatusCode, entityID)
	}

	var state struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return "", fmt.Errorf("decoding state response: %w", err)
	}
	return state.State, nil
}

// CallService invokes a service on one entity. The service identifier uses
// the "domain/service" form (e.g. "switch/turn_on").
func (c *Client) CallService(ctx context.Context, service, entityID string) error {
	ctx, span := tracer.Start(ctx, "hass.call_service")
	defer span.End()
	span.SetAttributes(
		attribute.String("service", service),
		attribute.String("entity_id", entityID),
	)

	body, err := json.Marshal(map[string]string{"entity_id": entityID})
	if err != nil {
		return fmt.Errorf("marshalling service call: %w", err)
	}

	req, err := c.newRequest(ctx, "POST", "/api/services/"+service, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("service api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service api status %d for %s", resp.StatusCode, service)
	}
	return nil
}

// History returns state samples for one entity over [start, end], truncated
// to MaxHistorySamples. The call carries its own timeout; expiry surfaces as
// a recoverable error.
func (c *Client) History(ctx context.Context, entityID, start, end string) ([]Sample, error) {
	ctx, span := tracer.Start(ctx, "hass.history")
	defer span.End()
	span.SetAttributes(attribute.String("entity_id", entityID))

	ctx, cancel := context.WithTimeout(ctx, TimeoutHistory)
	defer cancel()

	path := fmt.Sprintf("/api/history/period/%s?end_time=%s&filter_entity_id=%s",
		url.PathEscape(start), url.QueryEscape(end), url.QueryEscape(entityID))

	req, err := c.newRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("history api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history api status %d for %s", resp.StatusCode, entityID)
	}

	// The history API wraps results in one list per requested entity.
	var data [][]Sample
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding history response: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	samples := data[0]
	if len(samples) > MaxHistorySamples {
		samples = samples[:MaxHistorySamples]
	}
	span.SetAttributes(attribute.Int("samples", len(samples)))
	return samples, nil
}

// FireEvent emits an event on the platform's event bus. Used to publish the
// user-visible reply with its correlation context.
func (c *Client) FireEvent(ctx context.Context, event string, payload map[string]interface{}) error {
	ctx, span := tracer.Start(ctx, "hass.fire_event")
	defer span.End()
	span.SetAttributes(attribute.String("event", event))

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling event payload: %w", err)
	}

	req, err := c.newRequest(ctx, "POST", "/api/events/"+url.PathEscape(event), body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("event api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event api status %d for %s", resp.StatusCode, event)
	}
	return nil
}
