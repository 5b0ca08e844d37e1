package customers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionPending   = "pending"
	ActionCompleted = "completed"
	ActionFailed    = "failed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

func IsActionStatus(s string) bool {
	switch s {
	case ActionPending, ActionCompleted, ActionFailed:
		return true
	}
	return false
}

func IsPriority(s string) bool {
	switch s {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// CSMAction is a unit of work for a customer success manager, either
// created by hand or emitted by a playbook step.
type CSMAction struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"customer_id"`
	ExecutionID      *uuid.UUID `gorm:"type:uuid;index" json:"execution_id,omitempty"`
	StepID           *uuid.UUID `gorm:"type:uuid" json:"step_id,omitempty"`
	ActionType       string     `gorm:"column:action_type;not null" json:"action_type"`
	ActionStatus     string     `gorm:"column:action_status;not null;index" json:"action_status"`
	Priority         string     `gorm:"column:priority;not null" json:"priority"`
	Title            string     `gorm:"column:title;not null" json:"title"`
	Description      string     `gorm:"column:description" json:"description,omitempty"`
	AIGenerated      bool       `gorm:"column:ai_generated;not null" json:"ai_generated"`
	ScheduledDate    *time.Time `gorm:"column:scheduled_date" json:"scheduled_date,omitempty"`
	CompletedDate    *time.Time `gorm:"column:completed_date" json:"completed_date,omitempty"`
	CreatedDate      time.Time  `gorm:"column:created_date;not null;index" json:"created_date"`
	Outcome          string     `gorm:"column:outcome" json:"outcome,omitempty"`
	CustomerResponse string     `gorm:"column:customer_response" json:"customer_response,omitempty"`
}

func (CSMAction) TableName() string { return "csm_action" }

func (a *CSMAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedDate.IsZero() {
		a.CreatedDate = time.Now().UTC()
	}
	if a.ActionStatus == "" {
		a.ActionStatus = ActionPending
	}
	if a.Priority == "" {
		a.Priority = PriorityMedium
	}
	return nil
}
