package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	pb "github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/events"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/ctxutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
)

type AdvanceOutcome string

const (
	// AdvanceSkipped: not due, not active, or owned by another advancer.
	AdvanceSkipped   AdvanceOutcome = "skipped"
	AdvanceAdvanced  AdvanceOutcome = "advanced"
	AdvanceCompleted AdvanceOutcome = "completed"
	AdvanceFailed    AdvanceOutcome = "failed"
)

type AdvanceResult struct {
	ExecutionID uuid.UUID      `json:"execution_id"`
	Outcome     AdvanceOutcome `json:"outcome"`
	StepIndex   int            `json:"step_index"`
	Error       string         `json:"error,omitempty"`
}

var errExecutionChanged = errors.New("execution changed while step was running")

// AdvanceDue runs the current step of a due execution and moves the state
// machine forward. Exclusivity comes from the Locker plus a lease on the
// row; losers return AdvanceSkipped. A failed step fails the execution and
// is not retried.
func (e *Engine) AdvanceDue(ctx context.Context, executionID uuid.UUID) (AdvanceResult, error) {
	ctx = ctxutil.Default(ctx)
	res := AdvanceResult{ExecutionID: executionID, Outcome: AdvanceSkipped}

	unlock, ok, err := e.locker.TryLock(ctx, executionKey(executionID), e.cfg.Lease)
	if err != nil {
		return res, fmt.Errorf("lock execution: %w", err)
	}
	if !ok {
		return res, nil
	}
	defer unlock()

	dbc := dbctx.Context{Ctx: ctx}
	claimedAt := e.now()
	claimed, err := e.executions.ClaimDue(dbc, executionID, claimedAt, e.cfg.Lease)
	if err != nil {
		return res, fmt.Errorf("claim execution: %w", err)
	}
	if !claimed {
		return res, nil
	}
	released := false
	defer func() {
		if released {
			return
		}
		if err := e.executions.Release(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, executionID); err != nil {
			e.log.Warn("Failed to release execution lease", "execution_id", executionID, "error", err)
		}
	}()

	exec, err := e.executions.GetByID(dbc, executionID, false)
	if err != nil {
		return res, fmt.Errorf("load execution: %w", err)
	}
	if exec == nil {
		return res, nil
	}
	res.StepIndex = exec.CurrentStep

	p, err := e.playbooks.GetByID(dbc, exec.PlaybookID)
	if err != nil {
		return res, fmt.Errorf("load playbook: %w", err)
	}
	c, err := e.customers.GetByID(dbc, exec.CustomerID)
	if err != nil {
		return res, fmt.Errorf("load customer: %w", err)
	}
	if p == nil || c == nil {
		msg := "playbook not found"
		if c == nil {
			msg = "customer not found"
		}
		res, err = e.failWithoutStep(ctx, exec, msg)
		released = err == nil
		return res, err
	}

	steps := p.OrderedSteps()
	if exec.CurrentStep >= len(steps) {
		res, err = e.completeWithoutStep(ctx, exec, len(steps))
		released = err == nil
		return res, err
	}

	step := steps[exec.CurrentStep]
	started := e.now()
	outcome := e.runStep(ctx, StepInput{Customer: c, Step: step, Execution: exec, Now: started})
	finished := e.now()
	e.metrics.StepFinished(step.StepType, outcome.Success, finished.Sub(started))

	// A dispatched step always runs to a recorded result, even if the caller
	// gives up meanwhile.
	commitCtx := context.WithoutCancel(ctx)
	res, err = e.commitStep(commitCtx, exec, steps, step, outcome, started, finished)
	if errors.Is(err, errExecutionChanged) {
		e.log.Warn("Step result discarded", "execution_id", exec.ID, "step_index", exec.CurrentStep, "error", err)
		return AdvanceResult{ExecutionID: exec.ID, Outcome: AdvanceSkipped, StepIndex: exec.CurrentStep}, nil
	}
	if err != nil {
		e.log.Error("Failed to record step result", "execution_id", exec.ID, "step_index", exec.CurrentStep, "error", err)
		res, err = e.recordStorageFailure(commitCtx, exec, step, started, err)
	}
	released = err == nil
	return res, err
}

func (e *Engine) runStep(ctx context.Context, in StepInput) (out StepOutcome) {
	ctx, span := tracer().Start(ctx, "playbook.step",
		trace.WithAttributes(
			attribute.String("execution.id", in.Execution.ID.String()),
			attribute.String("step.type", in.Step.StepType),
			attribute.Int("step.index", in.Execution.CurrentStep),
		),
	)
	defer func() {
		if out.Success {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, out.Error)
		}
		span.End()
	}()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Step handler panic",
				"execution_id", in.Execution.ID,
				"step_id", in.Step.ID,
				"step_type", in.Step.StepType,
				"panic", r,
			)
			out = failed("step handler panic: %v", r)
		}
	}()
	h, ok := e.steps.Get(in.Step.StepType)
	if !ok {
		return failed("Unknown step type: %s", in.Step.StepType)
	}
	return h.Run(ctx, in)
}

// commitStep writes the action, the step record and the execution update in
// one transaction.
func (e *Engine) commitStep(ctx context.Context, exec *types.PlaybookExecution, steps []types.PlaybookStep, step types.PlaybookStep, outcome StepOutcome, started, finished time.Time) (AdvanceResult, error) {
	index := exec.CurrentStep
	res := AdvanceResult{ExecutionID: exec.ID, StepIndex: index}

	status := pb.StepStatusCompleted
	if !outcome.Success {
		status = pb.StepStatusFailed
	}
	success := outcome.Success
	run := &types.StepExecution{
		ExecutionID:   exec.ID,
		StepID:        step.ID,
		StepIndex:     index,
		Status:        status,
		StartedDate:   &started,
		CompletedDate: &finished,
		Success:       &success,
		Output:        jsonDoc(outcome.Output),
		ErrorMessage:  outcome.Error,
	}

	updates := map[string]interface{}{"locked_until": nil, "updated_at": finished}
	switch {
	case !outcome.Success:
		res.Outcome = AdvanceFailed
		res.Error = outcome.Error
		updates["status"] = pb.ExecutionFailed
		updates["success"] = false
		updates["completed_date"] = finished
		updates["next_step_date"] = nil
		updates["results"] = jsonDoc(map[string]any{
			"completed_steps": index,
			"failed_step":     index,
			"error":           outcome.Error,
		})
	case index+1 >= len(steps):
		res.Outcome = AdvanceCompleted
		updates["current_step"] = index + 1
		updates["status"] = pb.ExecutionCompleted
		updates["success"] = true
		updates["completed_date"] = finished
		updates["next_step_date"] = nil
		updates["results"] = jsonDoc(map[string]any{"completed_steps": index + 1})
	default:
		res.Outcome = AdvanceAdvanced
		updates["current_step"] = index + 1
		updates["next_step_date"] = finished.Add(steps[index+1].Delay())
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if outcome.Action != nil {
			if err := e.actions.Create(dbc, outcome.Action); err != nil {
				return fmt.Errorf("record action: %w", err)
			}
		}
		if err := e.stepRuns.Create(dbc, run); err != nil {
			return fmt.Errorf("record step execution: %w", err)
		}
		ok, err := e.executions.UpdateFieldsIfStatus(dbc, exec.ID, pb.ExecutionActive, updates)
		if err != nil {
			return fmt.Errorf("update execution: %w", err)
		}
		if !ok {
			return errExecutionChanged
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	e.applyUpdates(exec, updates)
	e.log.Info("Step finished",
		"execution_id", exec.ID,
		"step_index", index,
		"step_type", step.StepType,
		"success", outcome.Success,
		"outcome", res.Outcome,
	)
	if outcome.Success {
		e.publish(ctx, events.StepCompleted, exec, index, "")
	} else {
		e.publish(ctx, events.StepFailed, exec, index, outcome.Error)
	}
	switch res.Outcome {
	case AdvanceCompleted:
		e.publish(ctx, events.ExecutionCompleted, exec, index, "")
		e.refreshSuccessRate(ctx, exec.PlaybookID)
	case AdvanceFailed:
		e.publish(ctx, events.ExecutionFailed, exec, index, outcome.Error)
		e.refreshSuccessRate(ctx, exec.PlaybookID)
	}
	return res, nil
}

// recordStorageFailure turns a failed step write into a failed execution.
// The step's side effects were rolled back with the transaction.
func (e *Engine) recordStorageFailure(ctx context.Context, exec *types.PlaybookExecution, step types.PlaybookStep, started time.Time, cause error) (AdvanceResult, error) {
	outcome := failed("%s", cause.Error())
	finished := e.now()
	res, err := e.commitStep(ctx, exec, nil, step, outcome, started, finished)
	if errors.Is(err, errExecutionChanged) {
		return AdvanceResult{ExecutionID: exec.ID, Outcome: AdvanceSkipped, StepIndex: exec.CurrentStep}, nil
	}
	if err != nil {
		return res, fmt.Errorf("record step failure: %w (after %v)", err, cause)
	}
	return res, nil
}

func (e *Engine) failWithoutStep(ctx context.Context, exec *types.PlaybookExecution, msg string) (AdvanceResult, error) {
	now := e.now()
	updates := map[string]interface{}{
		"status":         pb.ExecutionFailed,
		"success":        false,
		"completed_date": now,
		"next_step_date": nil,
		"locked_until":   nil,
		"results":        jsonDoc(map[string]any{"error": msg}),
	}
	ok, err := e.executions.UpdateFieldsIfStatus(dbctx.Context{Ctx: ctx}, exec.ID, pb.ExecutionActive, updates)
	if err != nil {
		return AdvanceResult{ExecutionID: exec.ID, Outcome: AdvanceSkipped}, fmt.Errorf("fail execution: %w", err)
	}
	if !ok {
		return AdvanceResult{ExecutionID: exec.ID, Outcome: AdvanceSkipped}, nil
	}
	e.applyUpdates(exec, updates)
	e.log.Warn("Execution failed before step", "execution_id", exec.ID, "error", msg)
	e.publish(ctx, events.ExecutionFailed, exec, exec.CurrentStep, msg)
	e.refreshSuccessRate(ctx, exec.PlaybookID)
	return AdvanceResult{ExecutionID: exec.ID, Outcome: AdvanceFailed, StepIndex: exec.CurrentStep, Error: msg}, nil
}

func (e *Engine) completeWithoutStep(ctx context.Context, exec *types.PlaybookExecution, stepCount int) (AdvanceResult, error) {
	now := e.now()
	updates := map[string]interface{}{
		"status":         pb.ExecutionCompleted,
		"success":        true,
		"completed_date": now,
		"next_step_date": nil,
		"locked_until":   nil,
		"results":        jsonDoc(map[string]any{"completed_steps": stepCount}),
	}
	ok, err := e.executions.UpdateFieldsIfStatus(dbctx.Context{Ctx: ctx}, exec.ID, pb.ExecutionActive, updates)
	if err != nil {
		return AdvanceResult{ExecutionID: exec.ID, Outcome: AdvanceSkipped}, fmt.Errorf("complete execution: %w", err)
	}
	if !ok {
		return AdvanceResult{ExecutionID: exec.ID, Outcome: AdvanceSkipped}, nil
	}
	e.applyUpdates(exec, updates)
	e.publish(ctx, events.ExecutionCompleted, exec, exec.CurrentStep, "")
	e.refreshSuccessRate(ctx, exec.PlaybookID)
	return AdvanceResult{ExecutionID: exec.ID, Outcome: AdvanceCompleted, StepIndex: exec.CurrentStep}, nil
}

// applyUpdates mirrors a committed update map onto the in-memory row so
// events carry the new status.
func (e *Engine) applyUpdates(exec *types.PlaybookExecution, updates map[string]interface{}) {
	if v, ok := updates["status"].(string); ok {
		exec.Status = v
	}
	if v, ok := updates["current_step"].(int); ok {
		exec.CurrentStep = v
	}
	if v, ok := updates["success"].(bool); ok {
		exec.Success = &v
	}
	if v, ok := updates["completed_date"].(time.Time); ok {
		exec.CompletedDate = &v
	}
	if v, ok := updates["next_step_date"]; ok {
		if t, isTime := v.(time.Time); isTime {
			exec.NextStepDate = &t
		} else {
			exec.NextStepDate = nil
		}
	}
	exec.LockedUntil = nil
}
