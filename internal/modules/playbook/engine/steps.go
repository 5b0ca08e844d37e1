package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
	pb "github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/conditions"
)

type StepInput struct {
	Customer  *types.Customer
	Step      types.PlaybookStep
	Execution *types.PlaybookExecution
	Now       time.Time
}

// StepOutcome is what a handler reports. Action, when set, is persisted in
// the same transaction as the step record and the execution update.
type StepOutcome struct {
	Success bool
	Output  map[string]any
	Error   string
	Action  *types.CSMAction
}

func failed(format string, args ...any) StepOutcome {
	msg := fmt.Sprintf(format, args...)
	return StepOutcome{Success: false, Output: map[string]any{"error": msg}, Error: msg}
}

type StepHandler interface {
	Type() string
	Run(ctx context.Context, in StepInput) StepOutcome
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]StepHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]StepHandler)}
}

func (r *Registry) Register(h StepHandler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for step_type=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(stepType string) (StepHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stepType]
	return h, ok
}

// DefaultRegistry wires the four built-in step types.
func DefaultRegistry(composer *EmailComposer) *Registry {
	r := NewRegistry()
	_ = r.Register(&emailStep{composer: composer})
	_ = r.Register(taskStep{})
	_ = r.Register(waitStep{})
	_ = r.Register(conditionStep{})
	return r
}

func decodeConfig(raw []byte, into any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(trimmed), into); err != nil {
		return fmt.Errorf("malformed step config: %w", err)
	}
	return nil
}

// ---- email ----

type emailConfig struct {
	Template        string `json:"template"`
	Personalization *bool  `json:"personalization"`
}

type emailStep struct {
	composer *EmailComposer
}

func (*emailStep) Type() string { return pb.StepEmail }

func (s *emailStep) Run(ctx context.Context, in StepInput) StepOutcome {
	var cfg emailConfig
	if err := decodeConfig(in.Step.Config, &cfg); err != nil {
		return failed("%s", err.Error())
	}
	content := s.composer.Compose(ctx, in.Customer, in.Step, cfg, in.Now)

	actionID := uuid.New()
	now := in.Now
	action := &types.CSMAction{
		ID:            actionID,
		CustomerID:    in.Customer.ID,
		ActionType:    pb.StepEmail,
		ActionStatus:  customers.ActionCompleted,
		Priority:      customers.PriorityMedium,
		Title:         "Automated Email: " + in.Step.Title,
		Description:   content.Body,
		AIGenerated:   true,
		CompletedDate: &now,
		CreatedDate:   now,
		Outcome:       "Email sent: " + content.Subject,
	}
	attach(action, in)

	out := map[string]any{
		"email_subject": content.Subject,
		"email_body":    content.Body,
		"tone":          content.Tone,
		"action_id":     actionID.String(),
		"model_used":    content.Model,
	}
	if content.Error != "" {
		out["generator_error"] = content.Error
	}
	return StepOutcome{Success: true, Output: out, Action: action}
}

// ---- task ----

type taskConfig struct {
	TaskType        string   `json:"task_type"`
	Priority        string   `json:"priority"`
	DurationMinutes *float64 `json:"duration_minutes"`
}

type taskStep struct{}

func (taskStep) Type() string { return pb.StepTask }

func (taskStep) Run(_ context.Context, in StepInput) StepOutcome {
	var cfg taskConfig
	if err := decodeConfig(in.Step.Config, &cfg); err != nil {
		return failed("%s", err.Error())
	}
	taskType := strings.TrimSpace(cfg.TaskType)
	if taskType == "" {
		taskType = pb.StepTask
	}
	priority := strings.TrimSpace(cfg.Priority)
	if priority == "" {
		priority = customers.PriorityMedium
	}
	if !customers.IsPriority(priority) {
		return failed("invalid task priority: %s", priority)
	}
	description := in.Step.Description
	if cfg.DurationMinutes != nil && *cfg.DurationMinutes > 0 {
		description += "\n\nEstimated duration: " + strconv.FormatFloat(*cfg.DurationMinutes, 'f', -1, 64) + " minutes"
	}

	actionID := uuid.New()
	action := &types.CSMAction{
		ID:           actionID,
		CustomerID:   in.Customer.ID,
		ActionType:   taskType,
		ActionStatus: customers.ActionPending,
		Priority:     priority,
		Title:        in.Step.Title,
		Description:  description,
		AIGenerated:  true,
		CreatedDate:  in.Now,
	}
	attach(action, in)
	return StepOutcome{
		Success: true,
		Output: map[string]any{
			"action_id": actionID.String(),
			"task_type": taskType,
			"priority":  priority,
		},
		Action: action,
	}
}

// ---- wait ----

type waitStep struct{}

func (waitStep) Type() string { return pb.StepWait }

func (waitStep) Run(_ context.Context, in StepInput) StepOutcome {
	return StepOutcome{Success: true, Output: map[string]any{"waited_hours": in.Step.DelayHours}}
}

// ---- condition ----

// conditionStep evaluates the step's own condition document. The step
// itself always succeeds; the result only lands in the output and does not
// branch the execution.
type conditionStep struct{}

func (conditionStep) Type() string { return pb.StepCondition }

func (conditionStep) Run(_ context.Context, in StepInput) StepOutcome {
	outcome, err := conditions.MatchesRaw(in.Step.Conditions, conditions.SnapshotOf(in.Customer, in.Now))
	if err != nil {
		return failed("malformed step conditions: %s", err.Error())
	}
	out := map[string]any{
		"condition_result": outcome.Matched,
		"conditions_met":   outcome.Matched,
	}
	if outcome.Failed != "" {
		out["failed_condition"] = outcome.Failed
	}
	if len(outcome.Ignored) > 0 {
		out["ignored_conditions"] = outcome.Ignored
	}
	return StepOutcome{Success: true, Output: out}
}

func attach(a *types.CSMAction, in StepInput) {
	if in.Execution != nil {
		id := in.Execution.ID
		a.ExecutionID = &id
	}
	stepID := in.Step.ID
	a.StepID = &stepID
}
