package sanitize

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleFile is the top-level YAML structure for a sanitizer rule file.
type RuleFile struct {
	Input  []RuleConfig `yaml:"input"`
	Output []RuleConfig `yaml:"output"`
}

// RuleConfig is a named group of regex patterns.
type RuleConfig struct {
	Name     string          `yaml:"name"`
	Enabled  *bool           `yaml:"enabled,omitempty"`
	Patterns []PatternConfig `yaml:"patterns"`
}

// PatternConfig is a single regex pattern within a rule group.
type PatternConfig struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

// Rule is a compiled pattern ready for matching.
type Rule struct {
	Group   string
	Name    string
	Pattern *regexp.Regexp
}

// ParseRuleFile parses sanitizer rule YAML bytes into a RuleFile.
func ParseRuleFile(data []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing sanitizer rule YAML: %w", err)
	}
	return &rf, nil
}

// CompileRules converts rule configs into compiled Rule entries.
// Disabled groups are skipped.
func CompileRules(configs []RuleConfig) ([]Rule, error) {
	var rules []Rule
	for i := range configs {
		rc := &configs[i]
		if rc.Enabled != nil && !*rc.Enabled {
			continue
		}
		for _, p := range rc.Patterns {
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling sanitizer pattern %q in %q: %w", p.Name, rc.Name, err)
			}
			rules = append(rules, Rule{
				Group:   rc.Name,
				Name:    p.Name,
				Pattern: compiled,
			})
		}
	}
	return rules, nil
}
