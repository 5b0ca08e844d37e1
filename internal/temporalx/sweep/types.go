package sweep

import (
	"time"

	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/engine"
)

const (
	WorkflowName           = "playbook_sweep"
	ActivityExecutePending = "playbook_execute_pending"
	// WorkflowID keeps a single sweep loop per namespace.
	WorkflowID = "playbook-sweep"
)

type Input struct {
	Interval   time.Duration `json:"interval"`
	Iterations int           `json:"iterations"`
}

type Result = engine.SweepResult
