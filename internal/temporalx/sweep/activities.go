package sweep

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/engine"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

// Runner is the piece of the engine the activity drives.
type Runner interface {
	ExecutePendingSteps(ctx context.Context) (engine.SweepResult, error)
}

type Activities struct {
	Log    *logger.Logger
	Engine Runner
}

func (a *Activities) ExecutePending(ctx context.Context) (Result, error) {
	if a == nil || a.Engine == nil {
		return Result{}, fmt.Errorf("sweep: activity not configured")
	}
	stop := heartbeat(ctx, 10*time.Second)
	defer stop()

	res, err := a.Engine.ExecutePendingSteps(ctx)
	if err != nil {
		return res, err
	}
	if a.Log != nil && res.Due > 0 {
		a.Log.Info("Temporal sweep finished",
			"due", res.Due,
			"processed", res.Processed(),
			"errors", res.Errors,
			"duration", res.Duration.String(),
		)
	}
	return res, nil
}

func heartbeat(ctx context.Context, every time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
