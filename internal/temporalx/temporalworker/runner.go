package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/upliftcs/upliftcs-backend/internal/pkg/envutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/httpx"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
	"github.com/upliftcs/upliftcs-backend/internal/temporalx"
	"github.com/upliftcs/upliftcs-backend/internal/temporalx/sweep"
)

type Runner struct {
	log    *logger.Logger
	tc     temporalsdkclient.Client
	cfg    temporalx.Config
	engine sweep.Runner
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, engine sweep.Runner) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if engine == nil {
		return nil, fmt.Errorf("temporal worker missing playbook engine")
	}
	return &Runner{
		log:    log.With("component", "TemporalWorker"),
		tc:     tc,
		cfg:    cfg,
		engine: engine,
	}, nil
}

// Start polls the task queue until ctx is done and makes sure the sweep
// workflow is running.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	maxWait := envutil.Seconds("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60*time.Second)
	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return r.ensureSweepWorkflow(ctx)
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if maxWait <= 0 || time.Now().After(deadline) {
			return fmt.Errorf("temporal worker start (namespace=%s): %w", r.cfg.Namespace, startErr)
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		if err := httpx.Sleep(ctx, httpx.Backoff(attempt-1, 250*time.Millisecond, 5*time.Second)); err != nil {
			return err
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := r.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	acts := &sweep.Activities{Log: r.log, Engine: r.engine}
	w.RegisterWorkflowWithOptions(sweep.Workflow, workflow.RegisterOptions{Name: sweep.WorkflowName})
	w.RegisterActivityWithOptions(acts.ExecutePending, activity.RegisterOptions{Name: sweep.ActivityExecutePending})
	return w
}

// ensureSweepWorkflow starts the singleton sweep loop; an already-running
// loop is left alone.
func (r *Runner) ensureSweepWorkflow(ctx context.Context) error {
	run, err := r.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                                       sweep.WorkflowID,
		TaskQueue:                                r.cfg.TaskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, sweep.WorkflowName, sweep.Input{
		Interval:   r.cfg.SweepInterval,
		Iterations: r.cfg.SweepIterations,
	})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			r.log.Debug("Sweep workflow already running", "workflow_id", sweep.WorkflowID)
			return nil
		}
		return fmt.Errorf("start sweep workflow: %w", err)
	}
	r.log.Info("Sweep workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "interval", r.cfg.SweepInterval.String())
	return nil
}

