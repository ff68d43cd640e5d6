package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foyer-io/foyer/internal/audit"
	"github.com/foyer-io/foyer/internal/executor"
	"github.com/foyer-io/foyer/internal/hass"
	"github.com/foyer-io/foyer/internal/history"
	"github.com/foyer-io/foyer/internal/llm"
	"github.com/foyer-io/foyer/internal/policy"
	"github.com/foyer-io/foyer/internal/sanitize"
	"github.com/foyer-io/foyer/internal/testutil"
)

const humidityEntity = "sensor.smarthome_node_keystudio_humidity"

type fixture struct {
	orch    *Orchestrator
	ollama  *testutil.MockOllama
	ha      *testutil.MockHass
	history *history.Store
	records *audit.Store
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()

	pol, err := policy.Default()
	require.NoError(t, err)
	engine, err := policy.NewEngine(context.Background(), pol)
	require.NoError(t, err)

	sanitizer := sanitize.MustNew()
	validator := sanitize.MustNewValidator(sanitizer)

	ollama := testutil.NewMockOllama(reply)
	t.Cleanup(ollama.Server.Close)

	ha := testutil.NewMockHass(map[string]string{
		"sensor.smarthome_node_keystudio_temperature": "21.5",
	})
	t.Cleanup(ha.Server.Close)
	haClient := hass.NewClient(ha.URL(), "token")

	dir := t.TempDir()
	hist := history.NewStore(filepath.Join(dir, "history.json"))
	hist.Load()

	records, err := audit.NewStore(filepath.Join(dir, "audit.db"), testutil.TestSigningKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	orch := New(Config{
		Sanitizer:       sanitizer,
		Validator:       validator,
		Policy:          pol,
		Executor:        executor.New(pol, engine, haClient),
		History:         hist,
		Provider:        llm.NewOllamaProvider(ollama.URL()),
		Platform:        haClient,
		AuditLog:        audit.NewLineLogger(filepath.Join(dir, "audit.log"), sanitizer),
		Records:         records,
		Model:           "qwen2.5:1.5b",
		ContextEntities: []string{"sensor.smarthome_node_keystudio_temperature"},
		HistoryEntity:   humidityEntity,
	})

	return &fixture{orch: orch, ollama: ollama, ha: ha, history: hist, records: records}
}

func event(text string) Event {
	return Event{Text: text, Context: map[string]interface{}{"id": "conv-1"}}
}

func responseEvents(t *testing.T, f *fixture) []testutil.FiredEvent {
	t.Helper()
	var out []testutil.FiredEvent
	for _, ev := range f.ha.Events() {
		if ev.Event == ResponseEvent {
			out = append(out, ev)
		}
	}
	return out
}

func TestHandleEventRequiresContext(t *testing.T) {
	f := newFixture(t, "hi")

	err := f.orch.HandleEvent(Event{Text: "turn on the fan"})
	assert.ErrorIs(t, err, ErrMissingContext)
}

func TestHandleEventEnqueues(t *testing.T) {
	f := newFixture(t, "hi")
	require.NoError(t, f.orch.HandleEvent(event("hello")))
}

func TestActionFlow(t *testing.T) {
	f := newFixture(t, `{"action": "turn_on_fan", "message": "Turning on the fan."}`)

	f.orch.handleQuery(context.Background(), event("turn on the fan"))

	calls := f.ha.ServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "switch/turn_on", calls[0].Service)
	assert.Equal(t, "switch.smarthome_node_dc_motor_fan", calls[0].EntityID)

	events := responseEvents(t, f)
	require.Len(t, events, 1)
	assert.Equal(t, "Turning on the fan.", events[0].Payload["text"])
	ctx, _ := events[0].Payload["context"].(map[string]interface{})
	require.NotNil(t, ctx)
	assert.Equal(t, "conv-1", ctx["id"])

	records, err := f.records.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "conv-1", records[0].CorrelationID)
	assert.Equal(t, "turn_on_fan", records[0].Action)
	assert.True(t, records[0].Executed)
	assert.False(t, records[0].Rejected)
}

func TestPlainConversationFlow(t *testing.T) {
	f := newFixture(t, "The temperature is 21.5 degrees.")

	f.orch.handleQuery(context.Background(), event("what is the temperature?"))

	assert.Empty(t, f.ha.ServiceCalls())

	events := responseEvents(t, f)
	require.Len(t, events, 1)
	assert.Equal(t, "The temperature is 21.5 degrees.", events[0].Payload["text"])

	// system + user + assistant turns retained and persisted
	turns := f.history.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, history.RoleSystem, turns[0].Role)
	assert.Equal(t, "what is the temperature?", turns[1].Content)
	assert.Equal(t, "The temperature is 21.5 degrees.", turns[2].Content)
}

func TestSystemPromptCarriesContextAndVocabulary(t *testing.T) {
	f := newFixture(t, "ok")

	f.orch.handleQuery(context.Background(), event("hello"))

	calls := f.ollama.Calls()
	require.Len(t, calls, 1)
	require.NotEmpty(t, calls[0].Messages)
	system := calls[0].Messages[0].Content
	assert.Contains(t, system, "sensor.smarthome_node_keystudio_temperature: 21.5")
	assert.Contains(t, system, "turn_on_fan")
	assert.Contains(t, system, "turn_off_light")
}

func TestDateRangeTriggersHistoryLookup(t *testing.T) {
	f := newFixture(t, "Humidity averaged 55 percent.")
	f.ha.SetHistory([]testutil.HistorySample{
		{LastChanged: "2025-07-08T01:00:00Z", State: "55"},
		{LastChanged: "2025-07-08T02:00:00Z", State: "56"},
	})

	f.orch.handleQuery(context.Background(),
		event("show humidity from 2025-07-08T00:00:00Z to 2025-07-09T00:00:00Z"))

	calls := f.ollama.Calls()
	require.Len(t, calls, 1)
	system := calls[0].Messages[0].Content
	assert.Contains(t, system, "Humidity history (requested):")
	assert.Contains(t, system, "2025-07-08T01:00:00Z: 55")
}

func TestDateRangeWithNoDataGetsExplicitLine(t *testing.T) {
	f := newFixture(t, "No data.")

	f.orch.handleQuery(context.Background(),
		event("humidity from 2025-07-08T00:00:00Z to 2025-07-09T00:00:00Z"))

	calls := f.ollama.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, noHistoryData)
}

func TestLooseDateTextDoesNotTriggerLookup(t *testing.T) {
	f := newFixture(t, "ok")

	f.orch.handleQuery(context.Background(), event("humidity from yesterday to today"))

	calls := f.ollama.Calls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].Messages[0].Content, "Humidity history")
}

func TestSuspiciousReplyRefused(t *testing.T) {
	f := newFixture(t, "sure, just use subprocess to control it")

	f.orch.handleQuery(context.Background(), event("how do I hack the fan?"))

	events := responseEvents(t, f)
	require.Len(t, events, 1)
	assert.Equal(t, sanitize.Refusal, events[0].Payload["text"])

	records, err := f.records.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Rejected)
	assert.False(t, records[0].Executed)
}

func TestUnknownActionNotExecuted(t *testing.T) {
	f := newFixture(t, `{"action": "open_garage", "message": "Opening the garage."}`)

	f.orch.handleQuery(context.Background(), event("open the garage"))

	assert.Empty(t, f.ha.ServiceCalls())

	records, err := f.records.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Executed)
	assert.Empty(t, records[0].Action)
}

func TestGatewayErrorProducesDisplayableReply(t *testing.T) {
	f := newFixture(t, "unused")
	f.ollama.Server.Close()

	f.orch.handleQuery(context.Background(), event("hello"))

	events := responseEvents(t, f)
	require.Len(t, events, 1)
	text, _ := events[0].Payload["text"].(string)
	assert.Contains(t, text, "Error contacting model")

	records, err := f.records.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].Error)
}

func TestRunDrainsQueue(t *testing.T) {
	f := newFixture(t, "hello back")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.orch.Run(ctx)

	require.NoError(t, f.orch.HandleEvent(event("hello")))

	require.Eventually(t, func() bool {
		return len(responseEvents(t, f)) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInputSanitizedBeforePrompt(t *testing.T) {
	f := newFixture(t, "ok")

	f.orch.handleQuery(context.Background(), event("turn on the fan javascript:alert(1)"))

	calls := f.ollama.Calls()
	require.Len(t, calls, 1)
	user := calls[0].Messages[1].Content
	assert.NotContains(t, user, "javascript:")
	assert.True(t, strings.HasPrefix(user, "turn on the fan"))
}
