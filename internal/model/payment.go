package model

import (
	"time"

	"github.com/google/uuid"
)

// GracePeriodDays is how long an overdue payment keeps full access.
const GracePeriodDays = 30

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // Ожидает оплаты
	PaymentStatusPaid      PaymentStatus = "paid"      // Оплачен
	PaymentStatusOverdue   PaymentStatus = "overdue"   // Просрочен
	PaymentStatusCancelled PaymentStatus = "cancelled" // Отменён
)

// IsValid reports whether s is one of the known payment statuses
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusOverdue, PaymentStatusCancelled:
		return true
	}
	return false
}

// PaymentRecord represents one billable obligation of a student (table payment_status)
type PaymentRecord struct {
	ID                 uuid.UUID     `json:"id"`
	StudentID          uuid.UUID     `json:"student_id"`
	PaymentReferenceID *string       `json:"payment_reference_id"` // ID во внешней платёжной системе
	DueDate            time.Time     `json:"due_date"`
	Status             PaymentStatus `json:"status"`
	DaysOverdue        *int          `json:"days_overdue"` // только для overdue
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// IsPaid checks if payment is confirmed
func (p *PaymentRecord) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// IsOverdue checks if payment is overdue
func (p *PaymentRecord) IsOverdue() bool {
	return p.Status == PaymentStatusOverdue
}

// OverdueDays returns the stored days overdue, zero when unknown
func (p *PaymentRecord) OverdueDays() int {
	if p.DaysOverdue == nil {
		return 0
	}
	return *p.DaysOverdue
}
