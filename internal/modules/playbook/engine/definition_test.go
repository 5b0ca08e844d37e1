package engine

import (
	"strings"
	"testing"

	pb "github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
)

func validDefinition() Definition {
	return Definition{
		Name:              "Renewal Nudge",
		Category:          pb.CategoryRetention,
		TriggerConditions: map[string]any{"health_score": map[string]any{"max": 40}},
		Steps: []StepDefinition{
			{StepOrder: 1, StepType: pb.StepTask, Title: "Call", Config: map[string]any{"priority": "high"}},
			{StepOrder: 2, StepType: pb.StepEmail, Title: "Follow up", DelayHours: 48},
		},
	}
}

func TestValidateDefinition(t *testing.T) {
	prio := func(v int) *int { return &v }
	cases := []struct {
		name      string
		mut       func(d *Definition)
		wantField string
	}{
		{name: "valid", mut: func(d *Definition) {}},
		{name: "missing name", mut: func(d *Definition) { d.Name = "" }, wantField: "name"},
		{name: "blank name", mut: func(d *Definition) { d.Name = "   " }, wantField: "name"},
		{name: "bad category", mut: func(d *Definition) { d.Category = "marketing" }, wantField: "category"},
		{name: "empty triggers", mut: func(d *Definition) { d.TriggerConditions = map[string]any{} }, wantField: "trigger_conditions"},
		{name: "unknown trigger key", mut: func(d *Definition) {
			d.TriggerConditions = map[string]any{"nps_score": map[string]any{"min": 8}}
		}, wantField: "trigger_conditions.nps_score"},
		{name: "priority out of range", mut: func(d *Definition) { d.Priority = prio(11) }, wantField: "priority"},
		{name: "unknown step type", mut: func(d *Definition) { d.Steps[0].StepType = "webhook" }, wantField: "steps.0.step_type"},
		{name: "negative delay", mut: func(d *Definition) { d.Steps[1].DelayHours = -1 }, wantField: "steps.1.delay_hours"},
		{name: "duplicate order", mut: func(d *Definition) { d.Steps[1].StepOrder = 1 }, wantField: "steps.1.step_order"},
		{name: "bad task priority", mut: func(d *Definition) { d.Steps[0].Config["priority"] = "asap" }, wantField: "steps.0.config.priority"},
		{name: "bad step condition", mut: func(d *Definition) {
			d.Steps[1].Conditions = map[string]any{"churn_risk_level": map[string]any{"min": 1}}
		}, wantField: "steps.1.conditions.churn_risk_level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := validDefinition()
			tc.mut(&d)
			errs := ValidateDefinition(d)
			if tc.wantField == "" {
				if len(errs) != 0 {
					t.Fatalf("want valid, got %v", errs)
				}
				return
			}
			for _, e := range errs {
				if e.Field == tc.wantField {
					return
				}
			}
			t.Fatalf("want error on %s, got %v", tc.wantField, errs)
		})
	}
}

func TestValidateDefinitionTooManySteps(t *testing.T) {
	d := validDefinition()
	d.Steps = nil
	for i := 0; i <= MaxSteps; i++ {
		d.Steps = append(d.Steps, StepDefinition{StepOrder: i + 1, StepType: pb.StepWait, Title: "wait"})
	}
	if errs := ValidateDefinition(d); len(errs) == 0 {
		t.Fatalf("want error for %d steps", len(d.Steps))
	}
}

func TestToPlaybookDefaults(t *testing.T) {
	d := validDefinition()
	d.Name = "  Renewal Nudge  "
	p := d.ToPlaybook()
	if p.Name != "Renewal Nudge" || !p.IsActive || p.Priority != 5 {
		t.Fatalf("defaults: name=%q active=%v priority=%d", p.Name, p.IsActive, p.Priority)
	}
	if len(p.Steps) != 2 || p.Steps[0].PlaybookID != p.ID {
		t.Fatalf("steps not linked: %+v", p.Steps)
	}
	if string(p.Steps[1].Config) != "{}" {
		t.Fatalf("empty config: want={} got=%s", p.Steps[1].Config)
	}
	if p.Steps[1].Conditions != nil {
		t.Fatalf("conditions: want nil got=%s", p.Steps[1].Conditions)
	}
	if !strings.Contains(string(p.TriggerConditions), `"health_score"`) {
		t.Fatalf("trigger_conditions: %s", p.TriggerConditions)
	}

	off := false
	d.IsActive = &off
	if d.ToPlaybook().IsActive {
		t.Fatalf("is_active=false ignored")
	}
}

func TestDefaultTemplates(t *testing.T) {
	defs, err := DefaultTemplates()
	if err != nil {
		t.Fatalf("DefaultTemplates: %v", err)
	}
	want := map[string][]int{
		"New Customer Onboarding": {1, 24, 72},
		"Churn Risk Intervention": {0, 2},
		"Expansion Opportunity":   {24, 168},
	}
	if len(defs) != len(want) {
		t.Fatalf("templates: want=%d got=%d", len(want), len(defs))
	}
	for _, d := range defs {
		delays, ok := want[d.Name]
		if !ok {
			t.Fatalf("unexpected template %q", d.Name)
		}
		if len(d.Steps) != len(delays) {
			t.Fatalf("%s steps: want=%d got=%d", d.Name, len(delays), len(d.Steps))
		}
		for i, s := range d.Steps {
			if s.DelayHours != delays[i] {
				t.Fatalf("%s step %d delay: want=%d got=%d", d.Name, i, delays[i], s.DelayHours)
			}
		}
	}

	// Each call returns an independent copy.
	defs[0].Name = "changed"
	again, _ := DefaultTemplates()
	if again[0].Name == "changed" {
		t.Fatalf("DefaultTemplates shares state between calls")
	}
}

func TestParseTemplatesRejectsInvalid(t *testing.T) {
	raw := []byte(`
- name: Broken
  category: retention
  trigger_conditions:
    health_score: {min: 10}
  steps:
    - step_order: 1
      step_type: sms
      title: Text them
`)
	if _, err := ParseTemplates(raw); err == nil {
		t.Fatalf("want error for unknown step type")
	}
	if _, err := ParseTemplates([]byte("name: [")); err == nil {
		t.Fatalf("want decode error")
	}
}
