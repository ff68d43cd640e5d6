// Package patterns provides the embedded default sanitizer rule definitions.
// The YAML file uses a recognizer-style format: named rule groups, each with
// one or more regex patterns, split into input-side removal rules and
// output-side suspicion rules.
package patterns

import _ "embed"

//go:embed sanitize.yaml
var sanitizeYAML []byte

// SanitizeYAML returns the embedded default sanitizer rule definitions.
func SanitizeYAML() []byte { return sanitizeYAML }
