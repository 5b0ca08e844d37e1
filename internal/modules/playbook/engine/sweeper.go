package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/upliftcs/upliftcs-backend/internal/pkg/ctxutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type SweepResult struct {
	Due       int           `json:"due"`
	Advanced  int           `json:"advanced"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration_ns"`
}

// Processed counts executions whose step actually ran.
func (r SweepResult) Processed() int { return r.Advanced + r.Completed + r.Failed }

// ExecutePendingSteps advances every execution due now, up to the batch
// size, with bounded concurrency. One execution's error never stops the
// others; it is logged and counted.
func (e *Engine) ExecutePendingSteps(ctx context.Context) (SweepResult, error) {
	ctx, span := tracer().Start(ctxutil.Default(ctx), "playbook.sweep")
	defer span.End()
	start := time.Now()
	var out SweepResult

	ids, err := e.executions.ListDueIDs(dbctx.Context{Ctx: ctx}, e.now(), e.cfg.BatchSize)
	if err != nil {
		return out, fmt.Errorf("list due executions: %w", err)
	}
	out.Due = len(ids)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			res, err := e.AdvanceDue(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Errors++
				e.log.Warn("Advance failed", "execution_id", id, "error", err)
				return nil
			}
			switch res.Outcome {
			case AdvanceAdvanced:
				out.Advanced++
			case AdvanceCompleted:
				out.Completed++
			case AdvanceFailed:
				out.Failed++
			default:
				out.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	out.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("sweep.due", out.Due),
		attribute.Int("sweep.processed", out.Processed()),
		attribute.Int("sweep.errors", out.Errors),
	)
	e.metrics.SweepFinished(out)
	if out.Due > 0 {
		e.log.Info("Sweep finished",
			"due", out.Due,
			"advanced", out.Advanced,
			"completed", out.Completed,
			"failed", out.Failed,
			"skipped", out.Skipped,
			"errors", out.Errors,
			"duration_ms", out.Duration.Milliseconds(),
		)
	}
	return out, ctx.Err()
}

// Sweeper drives ExecutePendingSteps from an in-process ticker.
type Sweeper struct {
	engine *Engine
	log    *logger.Logger
}

func NewSweeper(engine *Engine, baseLog *logger.Logger) *Sweeper {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Sweeper{engine: engine, log: baseLog.With("component", "Sweeper")}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.Info("Sweeper disabled")
		return
	}
	s.log.Info("Starting sweeper", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Sweep panic", "panic", r)
		}
	}()
	if _, err := s.engine.ExecutePendingSteps(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("Sweep failed", "error", err)
	}
}
