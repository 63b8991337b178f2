package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessState is the current access tier of a single student (table student_access)
type AccessState struct {
	ID              uuid.UUID  `json:"id"`
	StudentID       uuid.UUID  `json:"student_id"`
	HasFullAccess   bool       `json:"has_full_access"`
	RestrictedSince *time.Time `json:"restricted_since"` // nil пока доступ полный
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Consistent reports whether RestrictedSince is set exactly when access is restricted
func (s *AccessState) Consistent() bool {
	return (s.RestrictedSince != nil) == !s.HasFullAccess
}

// AccessLevel is the derived tier consumed by route guards
type AccessLevel string

const (
	AccessLevelFull               AccessLevel = "FULL"
	AccessLevelFinancialDocuments AccessLevel = "FINANCIAL_DOCUMENTS"
	AccessLevelNone               AccessLevel = "NONE" // reserved, nothing produces it yet
)

// ContentCategory groups portal sections for gating
type ContentCategory string

const (
	CategoryFinancial    ContentCategory = "financial"
	CategoryDocuments    ContentCategory = "documents"
	CategoryCourses      ContentCategory = "courses"
	CategoryLearningPath ContentCategory = "learningPath"
	CategoryLessons      ContentCategory = "lessons"
)

// IsAlwaysAccessible checks if the category is reachable regardless of tier
func (c ContentCategory) IsAlwaysAccessible() bool {
	return c == CategoryFinancial || c == CategoryDocuments
}

// IsEducational checks if the category is gated by the access tier
func (c ContentCategory) IsEducational() bool {
	switch c {
	case CategoryCourses, CategoryLearningPath, CategoryLessons:
		return true
	}
	return false
}

// AccessPatch is the mutable part of AccessState
type AccessPatch struct {
	HasFullAccess   bool
	RestrictedSince *time.Time
}
