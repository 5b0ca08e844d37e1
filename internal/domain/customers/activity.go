package customers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActivityLogin         = "login"
	ActivityFeatureUse    = "feature_use"
	ActivitySupportTicket = "support_ticket"
	ActivityOther         = "other"
)

func IsActivityType(s string) bool {
	switch s {
	case ActivityLogin, ActivityFeatureUse, ActivitySupportTicket, ActivityOther:
		return true
	}
	return false
}

type CustomerActivity struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_activity_customer_ts,priority:1" json:"customer_id"`
	ActivityType string         `gorm:"column:activity_type;not null" json:"activity_type"`
	ActivityData datatypes.JSON `gorm:"column:activity_data;type:jsonb" json:"activity_data,omitempty"`
	Timestamp    time.Time      `gorm:"column:timestamp;not null;index:idx_activity_customer_ts,priority:2" json:"timestamp"`
}

func (CustomerActivity) TableName() string { return "customer_activity" }

func (a *CustomerActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}
