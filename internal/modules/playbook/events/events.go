package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	ExecutionStarted   = "execution.started"
	StepCompleted      = "step.completed"
	StepFailed         = "step.failed"
	ExecutionCompleted = "execution.completed"
	ExecutionFailed    = "execution.failed"
	ExecutionPaused    = "execution.paused"
	ExecutionResumed   = "execution.resumed"
)

// Event describes one execution lifecycle transition. Events are emitted
// after the transition is committed.
type Event struct {
	Type        string    `json:"type"`
	ExecutionID uuid.UUID `json:"execution_id"`
	PlaybookID  uuid.UUID `json:"playbook_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	StepIndex   int       `json:"step_index"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type noop struct{}

func (noop) Publish(context.Context, Event) error { return nil }

// Noop drops every event.
func Noop() Publisher { return noop{} }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
