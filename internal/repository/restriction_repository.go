package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/repository/base"
	"github.com/google/uuid"
)

// RestrictionRepository пишет журнал изменений доступа (только append)
type RestrictionRepository struct {
	*base.Repository
}

func NewRestrictionRepository(db base.DB) *RestrictionRepository {
	return &RestrictionRepository{Repository: base.NewRepository(db)}
}

// Append добавляет событие в историю
func (r *RestrictionRepository) Append(ctx context.Context, event *model.AccessRestrictionEvent) error {
	query := `
		INSERT INTO access_restriction_history (student_id, restriction_type, reason)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.DB().QueryRow(ctx, query,
		event.StudentID,
		string(event.RestrictionType),
		event.Reason,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("append restriction event: %w", err)
	}

	return nil
}

// ListByStudent получает историю студента, новые события первыми
func (r *RestrictionRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.AccessRestrictionEvent, error) {
	query := `
		SELECT id, student_id, restriction_type, reason, created_at
		FROM access_restriction_history
		WHERE student_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.DB().Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list restriction events: %w", err)
	}
	defer rows.Close()

	var events []*model.AccessRestrictionEvent
	for rows.Next() {
		var event model.AccessRestrictionEvent
		var restrictionType string
		err := rows.Scan(
			&event.ID,
			&event.StudentID,
			&restrictionType,
			&event.Reason,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan restriction event: %w", err)
		}
		event.RestrictionType = model.RestrictionType(restrictionType)
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restriction events: %w", err)
	}

	return events, nil
}
