package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/foyer-io/foyer/internal/audit"
	"github.com/foyer-io/foyer/internal/history"
	"github.com/foyer-io/foyer/internal/intent"
	"github.com/foyer-io/foyer/internal/llm"
	foyerotel "github.com/foyer-io/foyer/internal/otel"
	"github.com/foyer-io/foyer/internal/sanitize"
)

// noHistoryData is the grounding line used when a requested range yields
// nothing, so the model sees an explicit answer instead of silence.
const noHistoryData = "No history data found for that range."

// dateRangeRe matches an explicit "from <ISO8601> to <ISO8601>" span in the
// sanitized utterance. Only this strict shape triggers a history lookup;
// anything looser stays a plain conversation turn.
var dateRangeRe = regexp.MustCompile(
	`from (\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z) to (\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z)`)

// handleQuery runs the full pipeline for one utterance. Every failure mode
// except a panic resolves to a response event; the worker survives all of
// them.
func (o *Orchestrator) handleQuery(ctx context.Context, ev Event) {
	ctx, span := tracer.Start(ctx, "orchestrator.handle_query")
	defer span.End()

	started := time.Now()
	correlation := correlationID(ev.Context)
	span.SetAttributes(attribute.String("correlation_id", correlation))

	userText := o.sanitizer.Clean(ev.Text)

	contextBlock := o.contextBlock(ctx)
	if from, to, ok := extractDateRange(string(userText)); ok {
		log.Info().Str("start", from).Str("end", to).Msg("history_range_requested")
		contextBlock += "\n\nHumidity history (requested):\n" + o.historyBlock(ctx, from, to)
	}

	o.history.Rotate()
	o.history.Append(history.RoleSystem, o.systemPrompt(contextBlock))
	o.history.Append(history.RoleUser, string(userText))
	o.auditLog.Write("user request (sanitized): " + string(userText))

	var (
		speech     string
		rejected   bool
		gatewayErr string
	)
	resp, err := o.chat(ctx)
	if err != nil {
		log.Error().Err(err).Str("model", o.model).Msg("llm_call_failed")
		gatewayErr = err.Error()
		speech = string(o.sanitizer.Clean(fmt.Sprintf("Error contacting model: %v", err)))
	} else {
		validated, ok := o.validator.Validate(resp.Content)
		speech = string(validated)
		rejected = !ok
	}

	it := intent.Parse(sanitize.Text(speech), o.policy.IsAction)
	executed := false
	if it.HasAction() {
		executed = o.executor.Execute(ctx, it.Action)
		speech = it.Message
	}
	if executed {
		log.Info().Str("action", it.Action).Msg("action_completed")
	}

	if err := o.platform.FireEvent(ctx, ResponseEvent, map[string]interface{}{
		"text":    speech,
		"context": ev.Context,
	}); err != nil {
		log.Error().Err(err).Msg("response_event_failed")
	}
	o.auditLog.Write("assistant response (validated): " + speech)

	o.history.Append(history.RoleAssistant, speech)
	if err := o.history.Persist(); err != nil {
		log.Error().Err(err).Msg("history_persist_failed")
	}

	log.Info().
		Str("correlation_id", correlation).
		Bool("executed", executed).
		Bool("rejected", rejected).
		Dur("duration", time.Since(started)).
		Func(foyerotel.LogTraceFields(ctx)).
		Msg("query_handled")

	o.appendRecord(ctx, &audit.Record{
		CorrelationID: correlation,
		Model:         o.model,
		PolicyVersion: o.policy.VersionTag,
		Action:        it.Action,
		Executed:      executed,
		Rejected:      rejected,
		InputHash:     audit.HashContent(string(userText)),
		OutputHash:    audit.HashContent(speech),
		DurationMS:    time.Since(started).Milliseconds(),
		Error:         gatewayErr,
	})
}

// chat sends the full transcript to the model gateway under the call timeout.
func (o *Orchestrator) chat(ctx context.Context) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, llm.TimeoutLLMCall)
	defer cancel()

	turns := o.history.Turns()
	messages := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	return o.provider.Chat(ctx, &llm.Request{Model: o.model, Messages: messages})
}

// contextBlock reads the configured grounding entities and renders one
// "entity: value" line per entity. Unreadable states degrade to "unknown"
// rather than failing the query.
func (o *Orchestrator) contextBlock(ctx context.Context) string {
	lines := make([]string, 0, len(o.contextEntities))
	for _, entity := range o.contextEntities {
		value, err := o.platform.State(ctx, entity)
		if err != nil {
			log.Warn().Err(err).Str("entity_id", entity).Msg("context_state_unavailable")
			lines = append(lines, entity+": unknown")
			continue
		}
		lines = append(lines, entity+": "+string(o.sanitizer.CleanValue(value)))
	}
	return strings.Join(lines, "\n")
}

// historyBlock fetches the sensor history for the requested range. The
// entity goes through the same allowlist gate as any other access; denial or
// any fetch failure degrades to the explicit no-data line.
func (o *Orchestrator) historyBlock(ctx context.Context, from, to string) string {
	if !o.policy.AllowsEntity(o.historyEntity) {
		log.Warn().Str("entity_id", o.historyEntity).Msg("unauthorized_entity_access")
		return noHistoryData
	}

	samples, err := o.platform.History(ctx, o.historyEntity, from, to)
	if err != nil {
		log.Warn().Err(err).Str("entity_id", o.historyEntity).Msg("history_fetch_failed")
		return noHistoryData
	}
	if len(samples) == 0 {
		return noHistoryData
	}

	lines := make([]string, 0, len(samples))
	for _, s := range samples {
		lines = append(lines, fmt.Sprintf("%s: %s",
			o.sanitizer.Clean(s.LastChanged), o.sanitizer.Clean(s.State)))
	}
	return strings.Join(lines, "\n")
}

// systemPrompt builds the per-query system turn: behavioral constraints, the
// structured-reply contract with the current action vocabulary, and the
// grounded context block.
func (o *Orchestrator) systemPrompt(contextBlock string) string {
	return "You are a multi-tool home assistant. Provide clear, brief, helpful, and direct answers. " +
		"IMPORTANT SECURITY CONSTRAINTS: " +
		"- Only control devices explicitly mentioned in context " +
		"- Do not execute any code or system commands " +
		"- Do not access files or external resources " +
		"- Limit responses to home automation tasks only " +
		"\n\nRESPONSE FORMAT RULES: " +
		"- For status questions, information requests, or general conversation: respond with normal text only " +
		"- When user requests device control (turn on/off fan, light), you MUST respond with JSON format " +
		`- JSON format: {"action": "action_name", "message": "your response message"} ` +
		"- Available actions: " + strings.Join(o.policy.ActionNames(), ", ") + " " +
		"- Examples of control requests that need JSON: 'turn on fan', 'turn off light', 'switch on fan' " +
		"- Do NOT provide JSON examples in conversation unless actually performing the requested action\n\n" +
		"Use the following context to answer:\n" + contextBlock
}

// appendRecord writes the signed audit record for one handled query. Audit
// failures are logged and never affect the response path.
func (o *Orchestrator) appendRecord(ctx context.Context, rec *audit.Record) {
	if o.records == nil {
		return
	}
	if err := o.records.Append(ctx, rec); err != nil {
		log.Error().Err(err).Msg("audit_record_failed")
	}
}

// extractDateRange returns the explicit range named in the utterance, if any.
func extractDateRange(text string) (from, to string, ok bool) {
	m := dateRangeRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// correlationID derives a stable identifier from the event context for the
// audit trail, falling back to a fresh UUID when the context carries none.
func correlationID(ctx map[string]interface{}) string {
	for _, key := range []string{"id", "conversation_id", "correlation_id"} {
		if v, ok := ctx[key].(string); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
