package model

import (
	"time"

	"github.com/google/uuid"
)

type RestrictionType string

const (
	RestrictionTypeNone    RestrictionType = "none"    // Доступ восстановлен
	RestrictionTypePartial RestrictionType = "partial" // Только финансы и документы
	RestrictionTypeFull    RestrictionType = "full"    // Зарезервировано
)

// Restriction reasons written to the history log
const (
	ReasonPaymentRegularized = "payment regularized"
	ReasonOverdueBeyondGrace = "overdue beyond grace period"
)

// AccessRestrictionEvent is an append-only audit entry (table access_restriction_history)
type AccessRestrictionEvent struct {
	ID              uuid.UUID       `json:"id"`
	StudentID       uuid.UUID       `json:"student_id"`
	RestrictionType RestrictionType `json:"restriction_type"`
	Reason          string          `json:"reason"`
	CreatedAt       time.Time       `json:"created_at"`
}
