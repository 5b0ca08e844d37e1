package sweep

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	defaultInterval      = time.Minute
	defaultIterations    = 500
	continueHistoryLimit = 10000
)

// Workflow sweeps due playbook steps forever, sleeping Interval between
// sweeps and continuing as new every Iterations sweeps. A failed sweep is
// logged and retried on the next iteration rather than ending the loop.
func Workflow(ctx workflow.Context, in Input) error {
	if in.Interval <= 0 {
		in.Interval = defaultInterval
	}
	if in.Iterations <= 0 {
		in.Iterations = defaultIterations
	}
	log := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})

	for i := 1; ; i++ {
		var out Result
		if err := workflow.ExecuteActivity(ctx, ActivityExecutePending).Get(ctx, &out); err != nil {
			log.Warn("Sweep activity failed", "iteration", i, "error", err)
		}
		if i >= in.Iterations || workflow.GetInfo(ctx).GetCurrentHistoryLength() >= continueHistoryLimit {
			return workflow.NewContinueAsNewError(ctx, WorkflowName, in)
		}
		if err := workflow.Sleep(ctx, in.Interval); err != nil {
			return err
		}
	}
}
