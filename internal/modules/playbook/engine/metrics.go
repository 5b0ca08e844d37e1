package engine

import "time"

// Metrics receives engine measurements. observability.Metrics implements it.
type Metrics interface {
	StepFinished(stepType string, success bool, d time.Duration)
	SweepFinished(r SweepResult)
	GeneratorFallback(kind string)
}

type nopMetrics struct{}

func (nopMetrics) StepFinished(string, bool, time.Duration) {}
func (nopMetrics) SweepFinished(SweepResult)                {}
func (nopMetrics) GeneratorFallback(string)                 {}
