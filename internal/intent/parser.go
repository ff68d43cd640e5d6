// Package intent extracts a structured action intent from a validated model
// reply. An Intent is only ever produced by the validating parse step: the
// Action field is non-empty exactly when the reply carried a well-formed JSON
// object naming a member of the closed action vocabulary.
package intent

import (
	"encoding/json"
	"html"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/foyer-io/foyer/internal/sanitize"
)

// Intent is the parse result. A zero Action means "no action": the Message
// is plain conversation and nothing may be executed.
type Intent struct {
	Action  string
	Message string
}

// HasAction reports whether the intent names a vocabulary action.
func (i Intent) HasAction() bool { return i.Action != "" }

// payload is the expected JSON shape inside a model reply.
type payload struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Parse locates the outermost {...} span in the reply and decodes it.
// Replies are expected to contain at most one JSON object, so a greedy
// first-brace/last-brace match is sufficient. Plain replies with no span
// pass through verbatim as no-action intents. Markup escaping applied by
// the sanitizer is reversed before decoding so the object's own quotes and
// braces parse correctly. Failures are recoverable: malformed JSON falls
// back to the original text, and an action name outside the vocabulary is
// dropped while its message is kept.
func Parse(text sanitize.Text, inVocabulary func(string) bool) Intent {
	s := string(text)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return Intent{Message: s}
	}

	span := html.UnescapeString(s[start : end+1])

	var p payload
	if err := json.Unmarshal([]byte(span), &p); err != nil {
		log.Warn().Err(err).Msg("intent_parse_failed")
		return Intent{Message: s}
	}

	message := p.Message
	if message == "" {
		message = s
	}

	if p.Action == "" || !inVocabulary(p.Action) {
		if p.Action != "" {
			log.Warn().Str("action", p.Action).Msg("unrecognized_action_dropped")
		}
		return Intent{Message: message}
	}

	return Intent{Action: p.Action, Message: message}
}
