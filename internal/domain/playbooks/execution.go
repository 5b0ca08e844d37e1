package playbooks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ExecutionActive    = "active"
	ExecutionPaused    = "paused"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

func IsExecutionStatus(s string) bool {
	switch s {
	case ExecutionActive, ExecutionPaused, ExecutionCompleted, ExecutionFailed:
		return true
	}
	return false
}

// IsTerminal reports statuses with no outgoing transitions.
func IsTerminal(status string) bool {
	return status == ExecutionCompleted || status == ExecutionFailed
}

const (
	StepStatusPending   = "pending"
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// PlaybookExecution is one run of a playbook against one customer.
// CurrentStep indexes Playbook.OrderedSteps().
type PlaybookExecution struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PlaybookID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_exec_pair,priority:2" json:"playbook_id"`
	CustomerID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_exec_pair,priority:1" json:"customer_id"`
	Status        string          `gorm:"column:status;not null;index:idx_exec_due,priority:1" json:"status"`
	CurrentStep   int             `gorm:"column:current_step;not null" json:"current_step"`
	StartedDate   time.Time       `gorm:"column:started_date;not null" json:"started_date"`
	CompletedDate *time.Time      `gorm:"column:completed_date" json:"completed_date,omitempty"`
	NextStepDate  *time.Time      `gorm:"column:next_step_date;index:idx_exec_due,priority:2" json:"next_step_date,omitempty"`
	Success       *bool           `gorm:"column:success" json:"success,omitempty"`
	Results       datatypes.JSON  `gorm:"column:results;type:jsonb" json:"results,omitempty"`
	LockedUntil   *time.Time      `gorm:"column:locked_until" json:"-"`
	StepRuns      []StepExecution `gorm:"foreignKey:ExecutionID;constraint:OnDelete:CASCADE" json:"step_executions,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PlaybookExecution) TableName() string { return "playbook_execution" }

func (e *PlaybookExecution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = ExecutionActive
	}
	if e.StartedDate.IsZero() {
		e.StartedDate = time.Now().UTC()
	}
	return nil
}

// StepExecution records a single attempt of one step. It is written once,
// already finalized, and never reopened.
type StepExecution struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExecutionID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"execution_id"`
	StepID        uuid.UUID      `gorm:"type:uuid;not null" json:"step_id"`
	StepIndex     int            `gorm:"column:step_index;not null" json:"step_index"`
	Status        string         `gorm:"column:status;not null" json:"status"`
	StartedDate   *time.Time     `gorm:"column:started_date" json:"started_date,omitempty"`
	CompletedDate *time.Time     `gorm:"column:completed_date" json:"completed_date,omitempty"`
	Success       *bool          `gorm:"column:success" json:"success,omitempty"`
	Output        datatypes.JSON `gorm:"column:output;type:jsonb" json:"output,omitempty"`
	ErrorMessage  string         `gorm:"column:error_message" json:"error_message,omitempty"`
}

func (StepExecution) TableName() string { return "step_execution" }

func (s *StepExecution) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = StepStatusPending
	}
	return nil
}
