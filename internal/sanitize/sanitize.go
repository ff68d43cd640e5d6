// Package sanitize normalizes and defuses text crossing the trust boundary.
//
// Every string entering the pipeline — user utterances, entity state values,
// model replies — goes through Clean before it may reach the prompt, the
// conversation history, or a log line. Cleaning escapes markup rather than
// deleting it (user intent survives as inert text), then removes a fixed set
// of unconditionally disallowed spans, then bounds the length.
package sanitize

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/foyer-io/foyer/patterns"
)

// MaxLen is the maximum length, in runes, of sanitized text.
const MaxLen = 1000

// Text is a string that has passed through the Sanitizer. Components on the
// model side of the trust boundary (prompt assembly, history, executor
// logging) accept only Text, never raw strings.
type Text string

// String returns the sanitized text as a plain string.
func (t Text) String() string { return string(t) }

// Sanitizer applies the input-side rule set.
type Sanitizer struct {
	rules []Rule
}

// New creates a Sanitizer from the embedded default rules.
func New() (*Sanitizer, error) {
	rf, err := ParseRuleFile(patterns.SanitizeYAML())
	if err != nil {
		return nil, fmt.Errorf("loading embedded sanitizer rules: %w", err)
	}
	rules, err := CompileRules(rf.Input)
	if err != nil {
		return nil, err
	}
	return &Sanitizer{rules: rules}, nil
}

// MustNew is like New but panics on error. The embedded defaults are
// expected to always compile.
func MustNew() *Sanitizer {
	s, err := New()
	if err != nil {
		panic(fmt.Sprintf("sanitize.New: %v", err))
	}
	return s
}

// Clean sanitizes raw text. It is total: any input yields a usable, possibly
// empty Text. Order matters — removal patterns run against escaped text:
//  1. trim surrounding whitespace
//  2. escape markup metacharacters so HTML/script fragments become inert
//  3. delete every match of the disallowed-span rules
//  4. truncate to MaxLen runes (logged, never silent)
func (s *Sanitizer) Clean(raw string) Text {
	text := strings.TrimSpace(raw)
	text = html.EscapeString(text)

	for _, rule := range s.rules {
		text = rule.Pattern.ReplaceAllString(text, "")
	}

	if runes := []rune(text); len(runes) > MaxLen {
		text = string(runes[:MaxLen])
		log.Warn().Int("max_len", MaxLen).Msg("input_truncated")
	}

	return Text(text)
}

// CleanValue serializes a scalar value and sanitizes it. Entity states come
// back from the state API as untyped JSON values; each supported type is
// formatted explicitly rather than falling through a blanket stringification.
// Unsupported types map to empty Text.
func (s *Sanitizer) CleanValue(v interface{}) Text {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return s.Clean(val)
	case bool:
		return s.Clean(fmt.Sprintf("%t", val))
	case int:
		return s.Clean(fmt.Sprintf("%d", val))
	case int64:
		return s.Clean(fmt.Sprintf("%d", val))
	case float64:
		return s.Clean(fmt.Sprintf("%g", val))
	case json.Number:
		return s.Clean(val.String())
	default:
		log.Warn().Str("type", fmt.Sprintf("%T", v)).Msg("unsupported_context_value_type")
		return ""
	}
}
