package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/upliftcs/upliftcs-backend/internal/data/repos"
	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	pb "github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/conditions"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/events"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/ctxutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	apperr "github.com/upliftcs/upliftcs-backend/internal/pkg/errors"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

// Generator produces schema-constrained JSON. The openai client implements it.
type Generator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

const (
	ReasonAlreadyActive   = "an active execution already exists for this customer and playbook"
	ReasonStartInProgress = "another start for this customer and playbook is in progress"
	ReasonNotActive       = "execution is not active"
	ReasonNotPaused       = "execution is not paused"
	ReasonStepInProgress  = "a step is currently running for this execution"
)

// TransitionResult reports whether a requested state change was legal.
// Illegal transitions are not errors; OK is false and Reason says why.
type TransitionResult struct {
	OK        bool                     `json:"ok"`
	Reason    string                   `json:"reason,omitempty"`
	Execution *types.PlaybookExecution `json:"execution,omitempty"`
}

type Config struct {
	// GeneratorTimeout bounds every content generator call.
	GeneratorTimeout time.Duration
	Model            string
	// Lease is how long an advancing sweeper owns an execution.
	Lease       time.Duration
	BatchSize   int
	Concurrency int
	Clock       func() time.Time
}

func (c Config) withDefaults() Config {
	if c.GeneratorTimeout <= 0 {
		c.GeneratorTimeout = 15 * time.Second
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = "gpt-4.1-mini"
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

type Deps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	Customers  repos.CustomerRepo
	Playbooks  repos.PlaybookRepo
	Executions repos.ExecutionRepo
	StepRuns   repos.StepExecutionRepo
	Actions    repos.ActionRepo
	// Generator may be nil; email steps then always use the template.
	Generator Generator
	Locker    Locker
	Events    events.Publisher
	Metrics   Metrics
	// Steps overrides the default step handlers.
	Steps *Registry
}

// Engine owns the execution state machine. Every transition goes through a
// conditional update on the execution row so concurrent callers cannot both
// win.
type Engine struct {
	db         *gorm.DB
	log        *logger.Logger
	customers  repos.CustomerRepo
	playbooks  repos.PlaybookRepo
	executions repos.ExecutionRepo
	stepRuns   repos.StepExecutionRepo
	actions    repos.ActionRepo
	steps      *Registry
	locker     Locker
	events     events.Publisher
	metrics    Metrics
	cfg        Config
}

func NewEngine(deps Deps, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	baseLog := deps.Log
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	e := &Engine{
		db:         deps.DB,
		log:        baseLog.With("service", "PlaybookEngine"),
		customers:  deps.Customers,
		playbooks:  deps.Playbooks,
		executions: deps.Executions,
		stepRuns:   deps.StepRuns,
		actions:    deps.Actions,
		steps:      deps.Steps,
		locker:     deps.Locker,
		events:     deps.Events,
		metrics:    deps.Metrics,
		cfg:        cfg,
	}
	if e.locker == nil {
		e.locker = NewLocalLocker()
	}
	if e.events == nil {
		e.events = events.Noop()
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.steps == nil {
		composer := NewEmailComposer(baseLog, deps.Generator, EmailConfig{
			Model:      cfg.Model,
			Timeout:    cfg.GeneratorTimeout,
			OnFallback: func(string) { e.metrics.GeneratorFallback("email") },
		})
		e.steps = DefaultRegistry(composer)
	}
	return e
}

func (e *Engine) now() time.Time { return e.cfg.Clock().UTC() }

// Evaluate returns the playbooks among candidates whose trigger conditions
// match c and that have no active execution for c. Inactive candidates and
// malformed documents never match.
func (e *Engine) Evaluate(ctx context.Context, c *types.Customer, candidates []*types.Playbook) ([]*types.Playbook, error) {
	ctx = ctxutil.Default(ctx)
	if c == nil || len(candidates) == 0 {
		return nil, nil
	}
	running, err := e.executions.ActivePlaybookIDs(dbctx.Context{Ctx: ctx}, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load active executions: %w", err)
	}
	busy := make(map[uuid.UUID]bool, len(running))
	for _, id := range running {
		busy[id] = true
	}

	snap := conditions.SnapshotOf(c, e.now())
	var out []*types.Playbook
	for _, p := range candidates {
		if p == nil || !p.IsActive {
			continue
		}
		outcome, err := conditions.MatchesRaw(p.TriggerConditions, snap)
		if err != nil {
			e.log.Warn("Malformed trigger conditions; treating as no match",
				"playbook_id", p.ID,
				"customer_id", c.ID,
				"error", err,
			)
			continue
		}
		if len(outcome.Ignored) > 0 {
			e.log.Warn("Trigger conditions reference unknown keys",
				"playbook_id", p.ID,
				"keys", outcome.Ignored,
			)
		}
		if !outcome.Matched || busy[p.ID] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Start loads both records and delegates to StartFor.
func (e *Engine) Start(ctx context.Context, customerID, playbookID uuid.UUID) (TransitionResult, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	p, err := e.playbooks.GetByID(dbc, playbookID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("load playbook: %w", err)
	}
	if p == nil {
		return TransitionResult{}, fmt.Errorf("playbook %s: %w", playbookID, apperr.ErrNotFound)
	}
	c, err := e.customers.GetByID(dbc, customerID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("load customer: %w", err)
	}
	if c == nil {
		return TransitionResult{}, fmt.Errorf("customer %s: %w", customerID, apperr.ErrNotFound)
	}
	return e.StartFor(ctx, c, p)
}

// StartFor creates an execution at step 0. It is a no-op when an active
// execution already exists for the pair. A playbook without steps completes
// immediately.
func (e *Engine) StartFor(ctx context.Context, c *types.Customer, p *types.Playbook) (TransitionResult, error) {
	ctx = ctxutil.Default(ctx)
	if c == nil || p == nil {
		return TransitionResult{}, fmt.Errorf("start: customer and playbook are required: %w", apperr.ErrInvalidArgument)
	}
	unlock, ok, err := e.locker.TryLock(ctx, startKey(c.ID, p.ID), e.cfg.Lease)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("lock start: %w", err)
	}
	if !ok {
		return TransitionResult{Reason: ReasonStartInProgress}, nil
	}
	defer unlock()

	now := e.now()
	steps := p.OrderedSteps()
	exec := &types.PlaybookExecution{
		ID:          uuid.New(),
		PlaybookID:  p.ID,
		CustomerID:  c.ID,
		Status:      pb.ExecutionActive,
		CurrentStep: 0,
		StartedDate: now,
	}
	if len(steps) == 0 {
		done := true
		exec.Status = pb.ExecutionCompleted
		exec.Success = &done
		exec.CompletedDate = &now
		exec.Results = jsonDoc(map[string]any{"completed_steps": 0})
	} else {
		next := now.Add(steps[0].Delay())
		exec.NextStepDate = &next
	}

	created := false
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		active, err := e.executions.HasActive(dbc, c.ID, p.ID)
		if err != nil {
			return err
		}
		if active {
			return nil
		}
		if err := e.executions.Create(dbc, exec); err != nil {
			return err
		}
		if err := e.playbooks.IncrementExecutionCount(dbc, p.ID); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		e.log.Error("Failed to start execution", "customer_id", c.ID, "playbook_id", p.ID, "error", err)
		return TransitionResult{}, fmt.Errorf("start execution: %w", err)
	}
	if !created {
		e.log.Info("Start skipped", "customer_id", c.ID, "playbook_id", p.ID, "reason", ReasonAlreadyActive)
		return TransitionResult{Reason: ReasonAlreadyActive}, nil
	}

	e.log.Info("Execution started",
		"execution_id", exec.ID,
		"customer_id", c.ID,
		"playbook_id", p.ID,
		"steps", len(steps),
	)
	e.publish(ctx, events.ExecutionStarted, exec, 0, "")
	if exec.Status == pb.ExecutionCompleted {
		e.publish(ctx, events.ExecutionCompleted, exec, 0, "")
		e.refreshSuccessRate(ctx, p.ID)
	}
	return TransitionResult{OK: true, Execution: exec}, nil
}

// Pause is legal only from active and only while no step is running.
// current_step and next_step_date are left as they are.
func (e *Engine) Pause(ctx context.Context, executionID uuid.UUID) (TransitionResult, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	exec, err := e.executions.GetByID(dbc, executionID, false)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("load execution: %w", err)
	}
	if exec == nil {
		return TransitionResult{}, fmt.Errorf("execution %s: %w", executionID, apperr.ErrNotFound)
	}
	if exec.Status != pb.ExecutionActive {
		e.log.Info("Pause rejected", "execution_id", executionID, "status", exec.Status)
		return TransitionResult{Reason: ReasonNotActive, Execution: exec}, nil
	}

	unlock, ok, err := e.locker.TryLock(ctx, executionKey(executionID), e.cfg.Lease)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("lock execution: %w", err)
	}
	if !ok {
		return TransitionResult{Reason: ReasonStepInProgress, Execution: exec}, nil
	}
	defer unlock()

	now := e.now()
	updated, err := e.executions.UpdateFieldsIfIdle(dbc, executionID, pb.ExecutionActive, now, map[string]interface{}{
		"status": pb.ExecutionPaused,
	})
	if err != nil {
		return TransitionResult{}, fmt.Errorf("pause execution: %w", err)
	}
	current, err := e.executions.GetByID(dbc, executionID, false)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("reload execution: %w", err)
	}
	if !updated {
		reason := ReasonNotActive
		if current != nil && current.Status == pb.ExecutionActive {
			reason = ReasonStepInProgress
		}
		e.log.Info("Pause rejected", "execution_id", executionID, "reason", reason)
		return TransitionResult{Reason: reason, Execution: current}, nil
	}
	e.publish(ctx, events.ExecutionPaused, current, current.CurrentStep, "")
	return TransitionResult{OK: true, Execution: current}, nil
}

// Resume is legal only from paused. The current step's delay restarts from
// the resume instant; time spent paused is not credited.
func (e *Engine) Resume(ctx context.Context, executionID uuid.UUID) (TransitionResult, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	exec, err := e.executions.GetByID(dbc, executionID, false)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("load execution: %w", err)
	}
	if exec == nil {
		return TransitionResult{}, fmt.Errorf("execution %s: %w", executionID, apperr.ErrNotFound)
	}
	if exec.Status != pb.ExecutionPaused {
		e.log.Info("Resume rejected", "execution_id", executionID, "status", exec.Status)
		return TransitionResult{Reason: ReasonNotPaused, Execution: exec}, nil
	}
	p, err := e.playbooks.GetByID(dbc, exec.PlaybookID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("load playbook: %w", err)
	}
	if p == nil {
		return TransitionResult{}, fmt.Errorf("playbook %s: %w", exec.PlaybookID, apperr.ErrNotFound)
	}

	now := e.now()
	steps := p.OrderedSteps()
	updates := map[string]interface{}{"status": pb.ExecutionActive}
	completes := exec.CurrentStep >= len(steps)
	if completes {
		updates["status"] = pb.ExecutionCompleted
		updates["success"] = true
		updates["completed_date"] = now
		updates["next_step_date"] = nil
	} else {
		updates["next_step_date"] = now.Add(steps[exec.CurrentStep].Delay())
	}
	updated, err := e.executions.UpdateFieldsIfStatus(dbc, executionID, pb.ExecutionPaused, updates)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("resume execution: %w", err)
	}
	current, err := e.executions.GetByID(dbc, executionID, false)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("reload execution: %w", err)
	}
	if !updated {
		e.log.Info("Resume rejected", "execution_id", executionID, "reason", ReasonNotPaused)
		return TransitionResult{Reason: ReasonNotPaused, Execution: current}, nil
	}
	e.publish(ctx, events.ExecutionResumed, current, current.CurrentStep, "")
	if completes {
		e.publish(ctx, events.ExecutionCompleted, current, current.CurrentStep, "")
		e.refreshSuccessRate(ctx, current.PlaybookID)
	}
	return TransitionResult{OK: true, Execution: current}, nil
}

func (e *Engine) publish(ctx context.Context, typ string, exec *types.PlaybookExecution, stepIndex int, errMsg string) {
	if exec == nil {
		return
	}
	ev := events.Event{
		Type:        typ,
		ExecutionID: exec.ID,
		PlaybookID:  exec.PlaybookID,
		CustomerID:  exec.CustomerID,
		StepIndex:   stepIndex,
		Status:      exec.Status,
		Error:       errMsg,
		OccurredAt:  e.now(),
	}
	if err := e.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Warn("Failed to publish execution event", "type", typ, "execution_id", exec.ID, "error", err)
	}
}

// refreshSuccessRate recomputes the playbook's success_rate after a terminal
// transition. Failures are logged only.
func (e *Engine) refreshSuccessRate(ctx context.Context, playbookID uuid.UUID) {
	dbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	stats, err := e.executions.Stats(dbc, playbookID)
	if err != nil {
		e.log.Warn("Failed to load execution stats", "playbook_id", playbookID, "error", err)
		return
	}
	if err := e.playbooks.UpdateFields(dbc, playbookID, map[string]interface{}{
		"success_rate": stats.SuccessRate(),
	}); err != nil {
		e.log.Warn("Failed to update playbook success rate", "playbook_id", playbookID, "error", err)
	}
}

func jsonDoc(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
