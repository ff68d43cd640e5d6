// Package orchestrator sequences the trust-boundary pipeline for each
// utterance: sanitize input, assemble grounded context, rotate and extend
// the conversation history, call the model gateway, validate and parse the
// reply, execute at most one gated action, persist, and emit the response.
//
// A single worker goroutine drains a queue of utterance events, so runs are
// serialized: the conversation history and its durable artifact are only
// ever touched by one query at a time.
package orchestrator

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/foyer-io/foyer/internal/audit"
	"github.com/foyer-io/foyer/internal/hass"
	"github.com/foyer-io/foyer/internal/history"
	"github.com/foyer-io/foyer/internal/llm"
	"github.com/foyer-io/foyer/internal/policy"
	"github.com/foyer-io/foyer/internal/sanitize"

	foyerotel "github.com/foyer-io/foyer/internal/otel"
)

var tracer = foyerotel.Tracer("github.com/foyer-io/foyer/internal/orchestrator")

// ResponseEvent is the event emitted with the user-visible reply.
const ResponseEvent = "conversation_response"

// Domain errors surfaced to the event source.
var (
	ErrMissingContext = errors.New("event is missing metadata.context")
	ErrQueueFull      = errors.New("utterance queue is full")
)

// Event is one inbound utterance with its opaque correlation context.
type Event struct {
	Text    string
	Context map[string]interface{}
}

// Platform is the home-automation surface the orchestrator reads from and
// emits to. Satisfied by hass.Client.
type Platform interface {
	State(ctx context.Context, entityID string) (string, error)
	History(ctx context.Context, entityID, start, end string) ([]hass.Sample, error)
	FireEvent(ctx context.Context, event string, payload map[string]interface{}) error
}

// ActionExecutor performs a gated vocabulary action. Satisfied by
// executor.Executor.
type ActionExecutor interface {
	Execute(ctx context.Context, action string) bool
}

// Orchestrator runs the per-utterance state machine.
type Orchestrator struct {
	sanitizer *sanitize.Sanitizer
	validator *sanitize.Validator
	policy    *policy.Policy
	executor  ActionExecutor
	history   *history.Store
	provider  llm.Provider
	platform  Platform
	auditLog  *audit.LineLogger
	records   *audit.Store

	model           string
	contextEntities []string
	historyEntity   string

	queue chan Event
}

// Config wires an Orchestrator.
type Config struct {
	Sanitizer *sanitize.Sanitizer
	Validator *sanitize.Validator
	Policy    *policy.Policy
	Executor  ActionExecutor
	History   *history.Store
	Provider  llm.Provider
	Platform  Platform
	AuditLog  *audit.LineLogger
	Records   *audit.Store

	Model           string
	ContextEntities []string
	// HistoryEntity is the sensor queried for date-range lookups.
	HistoryEntity string
	// QueueSize bounds the number of pending utterances. Defaults to 16.
	QueueSize int
}

// New creates an Orchestrator. Run must be started for events to be handled.
func New(cfg Config) *Orchestrator {
	size := cfg.QueueSize
	if size <= 0 {
		size = 16
	}
	return &Orchestrator{
		sanitizer:       cfg.Sanitizer,
		validator:       cfg.Validator,
		policy:          cfg.Policy,
		executor:        cfg.Executor,
		history:         cfg.History,
		provider:        cfg.Provider,
		platform:        cfg.Platform,
		auditLog:        cfg.AuditLog,
		records:         cfg.Records,
		model:           cfg.Model,
		contextEntities: cfg.ContextEntities,
		historyEntity:   cfg.HistoryEntity,
		queue:           make(chan Event, size),
	}
}

// HandleEvent validates and enqueues one utterance event. An event without
// correlation context violates the source contract and is dropped here,
// before any orchestration starts. Enqueueing never blocks the caller.
func (o *Orchestrator) HandleEvent(ev Event) error {
	if ev.Context == nil {
		log.Error().Int("text_len", len(ev.Text)).Msg("utterance_missing_context")
		return ErrMissingContext
	}

	select {
	case o.queue <- ev:
		return nil
	default:
		log.Warn().Msg("utterance_queue_full")
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is cancelled. Exactly one invocation of
// Run should be live per Orchestrator.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.queue:
			o.handleQuery(ctx, ev)
		}
	}
}
