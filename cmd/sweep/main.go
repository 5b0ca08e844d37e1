// Command sweep runs a single due-step sweep and exits. It is meant for
// cron schedulers in deployments without Temporal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upliftcs/upliftcs-backend/internal/app"
)

func main() {
	var (
		evaluate bool
		timeout  time.Duration
	)
	flag.BoolVar(&evaluate, "evaluate", false, "evaluate trigger conditions for every customer before sweeping")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "overall deadline for the run")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := run(ctx, evaluate); err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, evaluate bool) error {
	a, err := app.New(ctx)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	if evaluate {
		report, err := a.Services.Playbooks.EvaluateAll(ctx, nil)
		if err != nil {
			return fmt.Errorf("evaluate triggers: %w", err)
		}
		a.Log.Info("Triggers evaluated", "customers", report.Evaluated, "started", report.Started, "errors", report.Errors)
	}

	res, err := a.Services.Engine.ExecutePendingSteps(ctx)
	if err != nil {
		return err
	}
	a.Log.Info("Sweep finished",
		"due", res.Due,
		"processed", res.Processed(),
		"completed", res.Completed,
		"failed", res.Failed,
		"errors", res.Errors,
		"duration", res.Duration.String(),
	)
	return nil
}
