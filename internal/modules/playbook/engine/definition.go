package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
	pb "github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/conditions"
)

const MaxSteps = 20

// Definition is the authoring shape of a playbook, shared by the create
// endpoint and the embedded templates.
type Definition struct {
	Name              string           `json:"name" yaml:"name"`
	Description       string           `json:"description,omitempty" yaml:"description"`
	Category          string           `json:"category" yaml:"category"`
	TriggerConditions map[string]any   `json:"trigger_conditions" yaml:"trigger_conditions"`
	IsActive          *bool            `json:"is_active,omitempty" yaml:"is_active"`
	Priority          *int             `json:"priority,omitempty" yaml:"priority"`
	Steps             []StepDefinition `json:"steps" yaml:"steps"`
}

type StepDefinition struct {
	StepOrder   int            `json:"step_order" yaml:"step_order"`
	StepType    string         `json:"step_type" yaml:"step_type"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description"`
	DelayHours  int            `json:"delay_hours" yaml:"delay_hours"`
	Config      map[string]any `json:"config,omitempty" yaml:"config"`
	Conditions  map[string]any `json:"conditions,omitempty" yaml:"conditions"`
}

var definitionSchema = fmt.Sprintf(`{
  "type": "object",
  "required": ["name", "category", "trigger_conditions"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 200},
    "description": {"type": "string"},
    "category": {"type": "string", "enum": ["onboarding", "retention", "expansion", "support"]},
    "trigger_conditions": {"type": "object", "minProperties": 1},
    "is_active": {"type": "boolean"},
    "priority": {"type": "integer", "minimum": 1, "maximum": 10},
    "steps": {
      "type": ["array", "null"],
      "maxItems": %d,
      "items": {
        "type": "object",
        "required": ["step_order", "step_type", "title"],
        "properties": {
          "step_order": {"type": "integer", "minimum": 1},
          "step_type": {"type": "string", "enum": ["email", "task", "wait", "condition"]},
          "title": {"type": "string", "minLength": 1, "maxLength": 200},
          "delay_hours": {"type": "integer", "minimum": 0},
          "config": {"type": "object"},
          "conditions": {"type": "object"}
        }
      }
    }
  }
}`, MaxSteps)

var definitionSchemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// ValidateDefinition returns every problem found in d. An empty result
// means d can be persisted as is.
func ValidateDefinition(d Definition) []conditions.ValidationError {
	res, err := gojsonschema.Validate(definitionSchemaLoader, gojsonschema.NewGoLoader(d))
	if err != nil {
		return []conditions.ValidationError{{Field: "(root)", Description: err.Error()}}
	}
	var out []conditions.ValidationError
	for _, e := range res.Errors() {
		out = append(out, conditions.ValidationError{Field: e.Field(), Description: e.Description()})
	}
	if d.Name != "" && strings.TrimSpace(d.Name) == "" {
		out = append(out, conditions.ValidationError{Field: "name", Description: "name must not be blank"})
	}

	for _, ve := range conditions.ValidateMap(d.TriggerConditions) {
		ve.Field = "trigger_conditions." + ve.Field
		out = append(out, ve)
	}

	seen := map[int]bool{}
	for i, s := range d.Steps {
		field := fmt.Sprintf("steps.%d", i)
		if seen[s.StepOrder] {
			out = append(out, conditions.ValidationError{Field: field + ".step_order", Description: fmt.Sprintf("duplicate step_order %d", s.StepOrder)})
		}
		seen[s.StepOrder] = true
		for _, ve := range conditions.ValidateMap(s.Conditions) {
			ve.Field = field + ".conditions." + ve.Field
			out = append(out, ve)
		}
		if s.StepType == pb.StepTask {
			if p, ok := s.Config["priority"]; ok {
				ps, _ := p.(string)
				if !customers.IsPriority(ps) {
					out = append(out, conditions.ValidationError{Field: field + ".config.priority", Description: fmt.Sprintf("priority must be one of low, medium, high, urgent; got %v", p)})
				}
			}
		}
	}
	return out
}

// ToPlaybook builds the persisted playbook. d must already be valid.
func (d Definition) ToPlaybook() *types.Playbook {
	p := &types.Playbook{
		ID:                uuid.New(),
		Name:              strings.TrimSpace(d.Name),
		Description:       d.Description,
		Category:          d.Category,
		TriggerConditions: jsonDoc(d.TriggerConditions),
		IsActive:          true,
		Priority:          5,
	}
	if d.IsActive != nil {
		p.IsActive = *d.IsActive
	}
	if d.Priority != nil {
		p.Priority = *d.Priority
	}
	for _, s := range d.Steps {
		step := types.PlaybookStep{
			ID:          uuid.New(),
			PlaybookID:  p.ID,
			StepOrder:   s.StepOrder,
			StepType:    s.StepType,
			Title:       s.Title,
			Description: s.Description,
			DelayHours:  s.DelayHours,
		}
		if s.Config != nil {
			step.Config = jsonDoc(s.Config)
		} else {
			step.Config = jsonDoc(map[string]any{})
		}
		if len(s.Conditions) > 0 {
			step.Conditions = jsonDoc(s.Conditions)
		}
		p.Steps = append(p.Steps, step)
	}
	return p
}
