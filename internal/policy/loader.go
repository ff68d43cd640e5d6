package policy

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	foyerotel "github.com/foyer-io/foyer/internal/otel"
)

var tracer = foyerotel.Tracer("github.com/foyer-io/foyer/internal/policy")

//go:embed default.yaml
var defaultPolicyYAML []byte

// Load reads, schema-validates, and index-builds a foyer.yaml policy file.
// The referential invariant (every action references allowlisted service and
// entity) is enforced here, at construction, so a configuration bug cannot
// silently create an unguarded action.
func Load(ctx context.Context, path string) (*Policy, error) {
	_, span := tracer.Start(ctx, "policy.load")
	defer span.End()

	span.SetAttributes(attribute.String("policy.path", path))

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file %s: %w", path, err)
	}

	return parse(content)
}

// Default returns the embedded default policy.
func Default() (*Policy, error) {
	return parse(defaultPolicyYAML)
}

// MustDefault is like Default but panics on error. The embedded policy is
// expected to always validate.
func MustDefault() *Policy {
	p, err := Default()
	if err != nil {
		panic(fmt.Sprintf("policy.Default: %v", err))
	}
	return p
}

func parse(content []byte) (*Policy, error) {
	if err := ValidateSchema(content); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(content, &pol); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	pol.ComputeHash(content)
	pol.index()

	if err := pol.checkReferences(); err != nil {
		return nil, fmt.Errorf("policy invariant: %w", err)
	}

	return &pol, nil
}
