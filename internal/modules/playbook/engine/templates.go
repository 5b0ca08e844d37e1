package engine

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// DefaultTemplates returns the built-in playbooks seeded at startup:
// onboarding, churn-risk intervention and expansion.
func DefaultTemplates() ([]Definition, error) {
	return ParseTemplates(templatesYAML)
}

// ParseTemplates decodes a YAML list of playbook definitions and validates
// each one.
func ParseTemplates(raw []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	for i, d := range defs {
		if errs := ValidateDefinition(d); len(errs) > 0 {
			return nil, fmt.Errorf("template %d (%s): %s", i, d.Name, errs[0].Error())
		}
	}
	return defs, nil
}
