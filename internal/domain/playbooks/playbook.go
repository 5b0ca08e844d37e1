package playbooks

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CategoryOnboarding = "onboarding"
	CategoryRetention  = "retention"
	CategoryExpansion  = "expansion"
	CategorySupport    = "support"
)

func IsCategory(s string) bool {
	switch s {
	case CategoryOnboarding, CategoryRetention, CategoryExpansion, CategorySupport:
		return true
	}
	return false
}

const (
	StepEmail     = "email"
	StepTask      = "task"
	StepWait      = "wait"
	StepCondition = "condition"
)

func IsStepType(s string) bool {
	switch s {
	case StepEmail, StepTask, StepWait, StepCondition:
		return true
	}
	return false
}

type Playbook struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string         `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Description       string         `gorm:"column:description" json:"description,omitempty"`
	Category          string         `gorm:"column:category;not null;index" json:"category"`
	TriggerConditions datatypes.JSON `gorm:"column:trigger_conditions;type:jsonb;not null" json:"trigger_conditions"`
	IsActive          bool           `gorm:"column:is_active;not null;index" json:"is_active"`
	Priority          int            `gorm:"column:priority;not null" json:"priority"`
	ExecutionCount    int            `gorm:"column:execution_count;not null" json:"execution_count"`
	SuccessRate       float64        `gorm:"column:success_rate;not null" json:"success_rate"`
	Steps             []PlaybookStep `gorm:"foreignKey:PlaybookID;constraint:OnDelete:CASCADE" json:"steps"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_date"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"last_modified"`
}

func (Playbook) TableName() string { return "playbook" }

func (p *Playbook) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Priority == 0 {
		p.Priority = 5
	}
	return nil
}

// OrderedSteps returns the steps sorted by step_order. Execution indexes
// (current_step) always refer to this ordering.
func (p *Playbook) OrderedSteps() []PlaybookStep {
	out := make([]PlaybookStep, len(p.Steps))
	copy(out, p.Steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out
}

type PlaybookStep struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlaybookID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_step_playbook_order,priority:1" json:"playbook_id"`
	StepOrder   int            `gorm:"column:step_order;not null;uniqueIndex:idx_step_playbook_order,priority:2" json:"step_order"`
	StepType    string         `gorm:"column:step_type;not null" json:"step_type"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	DelayHours  int            `gorm:"column:delay_hours;not null" json:"delay_hours"`
	Config      datatypes.JSON `gorm:"column:config;type:jsonb" json:"config,omitempty"`
	Conditions  datatypes.JSON `gorm:"column:conditions;type:jsonb" json:"conditions,omitempty"`
}

func (PlaybookStep) TableName() string { return "playbook_step" }

func (s *PlaybookStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Delay is delay_hours as a duration.
func (s PlaybookStep) Delay() time.Duration {
	if s.DelayHours <= 0 {
		return 0
	}
	return time.Duration(s.DelayHours) * time.Hour
}
