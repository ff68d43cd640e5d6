package sanitize

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/foyer-io/foyer/patterns"
)

// Refusal is the fixed reply returned when a model response trips the
// output-side rule set. The original content is discarded wholesale so a
// crafted payload cannot leak through partial filtering.
const Refusal = "I apologize, but I cannot process that request for security reasons."

// Validator re-checks model output before it is trusted as display text or
// handed to the intent parser.
type Validator struct {
	sanitizer *Sanitizer
	rules     []Rule
}

// NewValidator creates a Validator from the embedded default output rules.
func NewValidator(s *Sanitizer) (*Validator, error) {
	rf, err := ParseRuleFile(patterns.SanitizeYAML())
	if err != nil {
		return nil, fmt.Errorf("loading embedded sanitizer rules: %w", err)
	}
	rules, err := CompileRules(rf.Output)
	if err != nil {
		return nil, err
	}
	return &Validator{sanitizer: s, rules: rules}, nil
}

// MustNewValidator is like NewValidator but panics on error.
func MustNewValidator(s *Sanitizer) *Validator {
	v, err := NewValidator(s)
	if err != nil {
		panic(fmt.Sprintf("sanitize.NewValidator: %v", err))
	}
	return v
}

// Validate scans raw model output against the output rule set, sanitizes
// it, and scans the sanitized form again. The raw pass is load-bearing:
// sanitization escapes markup, so a literal <script> tag in the reply would
// never match afterwards. Returns the sanitized text and true when clean, or
// the fixed Refusal and false when any rule matches either form. The matched
// rule name is logged; the content itself is not.
func (v *Validator) Validate(raw string) (Text, bool) {
	if v.scan(raw) {
		return Refusal, false
	}

	text := v.sanitizer.Clean(raw)
	if v.scan(string(text)) {
		return Refusal, false
	}

	return text, true
}

func (v *Validator) scan(text string) bool {
	for _, rule := range v.rules {
		if rule.Pattern.MatchString(text) {
			log.Warn().
				Str("rule", rule.Group).
				Str("pattern", rule.Name).
				Msg("suspicious_model_output_rejected")
			return true
		}
	}
	return false
}
