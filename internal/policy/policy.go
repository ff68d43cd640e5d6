// Package policy holds the access policy for the trust boundary: the entity
// allowlist, the service allowlist, and the closed action vocabulary that maps
// symbolic action names to concrete service calls. The policy is loaded once
// at startup from a schema-validated YAML file (or the embedded default) and
// is immutable afterwards.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Policy represents a complete foyer.yaml access policy.
type Policy struct {
	Assistant AssistantConfig   `yaml:"assistant" json:"assistant"`
	Entities  []string          `yaml:"entities" json:"entities"`
	Services  []string          `yaml:"services" json:"services"`
	Actions   map[string]Action `yaml:"actions" json:"actions"`

	// Computed fields (not serialized from YAML)
	Hash       string `yaml:"-" json:"-"`
	VersionTag string `yaml:"-" json:"-"`

	entitySet  map[string]struct{}
	serviceSet map[string]struct{}
}

// AssistantConfig holds the assistant identity.
type AssistantConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version" json:"version"`
}

// Action binds a symbolic action name to a service call on one entity.
type Action struct {
	Service     string `yaml:"service" json:"service"`
	EntityID    string `yaml:"entity_id" json:"entity_id"`
	Description string `yaml:"description" json:"description"`
}

// ComputeHash records a content hash and short version tag for the policy,
// used to stamp audit records with the policy version in force.
func (p *Policy) ComputeHash(content []byte) {
	sum := sha256.Sum256(content)
	p.Hash = hex.EncodeToString(sum[:])
	p.VersionTag = fmt.Sprintf("%s@%s", p.Assistant.Version, p.Hash[:8])
}

// index builds the lookup sets. Called once by the loader.
func (p *Policy) index() {
	p.entitySet = make(map[string]struct{}, len(p.Entities))
	for _, e := range p.Entities {
		p.entitySet[e] = struct{}{}
	}
	p.serviceSet = make(map[string]struct{}, len(p.Services))
	for _, s := range p.Services {
		p.serviceSet[s] = struct{}{}
	}
}

// checkReferences verifies the construction-time invariant: every action must
// reference an allowlisted service and an allowlisted entity. A mapping that
// escapes the allowlists is a configuration bug and must fail loading, not
// surface later as an unguarded action.
func (p *Policy) checkReferences() error {
	for name, a := range p.Actions {
		if _, ok := p.serviceSet[a.Service]; !ok {
			return fmt.Errorf("action %q references service %q not in the service allowlist", name, a.Service)
		}
		if _, ok := p.entitySet[a.EntityID]; !ok {
			return fmt.Errorf("action %q references entity %q not in the entity allowlist", name, a.EntityID)
		}
	}
	return nil
}

// AllowsEntity reports whether the entity is allowlisted.
func (p *Policy) AllowsEntity(id string) bool {
	_, ok := p.entitySet[id]
	return ok
}

// AllowsService reports whether the service is allowlisted.
func (p *Policy) AllowsService(id string) bool {
	_, ok := p.serviceSet[id]
	return ok
}

// ResolveAction returns the action bound to the symbolic name, if any.
func (p *Policy) ResolveAction(name string) (Action, bool) {
	a, ok := p.Actions[name]
	return a, ok
}

// IsAction reports whether the name belongs to the action vocabulary.
func (p *Policy) IsAction(name string) bool {
	_, ok := p.Actions[name]
	return ok
}

// ActionNames returns the closed action vocabulary in sorted order, for
// prompt assembly and parser validation.
func (p *Policy) ActionNames() []string {
	names := make([]string, 0, len(p.Actions))
	for name := range p.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
