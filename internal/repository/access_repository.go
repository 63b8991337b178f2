package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/repository/base"
	"github.com/google/uuid"
)

type AccessRepository struct {
	*base.Repository
}

func NewAccessRepository(db base.DB) *AccessRepository {
	return &AccessRepository{Repository: base.NewRepository(db)}
}

// GetByStudent получает текущий уровень доступа студента
func (r *AccessRepository) GetByStudent(ctx context.Context, studentID uuid.UUID) (*model.AccessState, error) {
	query := `
		SELECT id, student_id, has_full_access, restricted_since, version, created_at, updated_at
		FROM student_access
		WHERE student_id = $1
	`

	var state model.AccessState
	err := r.DB().QueryRow(ctx, query, studentID).Scan(
		&state.ID,
		&state.StudentID,
		&state.HasFullAccess,
		&state.RestrictedSince,
		&state.Version,
		&state.CreatedAt,
		&state.UpdatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Первая оценка ещё не проводилась
		}
		return nil, fmt.Errorf("get access state: %w", err)
	}

	return &state, nil
}

// Insert создаёт запись о доступе. Если запись уже создана параллельно, возвращает ErrConflict
func (r *AccessRepository) Insert(ctx context.Context, state *model.AccessState) error {
	query := `
		INSERT INTO student_access (student_id, has_full_access, restricted_since)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id) DO NOTHING
		RETURNING id, version, created_at, updated_at
	`

	err := r.DB().QueryRow(ctx, query,
		state.StudentID,
		state.HasFullAccess,
		state.RestrictedSince,
	).Scan(&state.ID, &state.Version, &state.CreatedAt, &state.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("insert access state: %w", ErrConflict)
		}
		return fmt.Errorf("insert access state: %w", err)
	}

	return nil
}

// Update меняет уровень доступа с проверкой версии (compare-and-swap)
func (r *AccessRepository) Update(ctx context.Context, studentID uuid.UUID, patch model.AccessPatch, expectedVersion int64) (*model.AccessState, error) {
	query := `
		UPDATE student_access
		SET has_full_access = $2,
			restricted_since = $3,
			version = version + 1,
			updated_at = NOW()
		WHERE student_id = $1 AND version = $4
		RETURNING id, student_id, has_full_access, restricted_since, version, created_at, updated_at
	`

	var state model.AccessState
	err := r.DB().QueryRow(ctx, query, studentID, patch.HasFullAccess, patch.RestrictedSince, expectedVersion).Scan(
		&state.ID,
		&state.StudentID,
		&state.HasFullAccess,
		&state.RestrictedSince,
		&state.Version,
		&state.CreatedAt,
		&state.UpdatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, fmt.Errorf("update access state: %w", ErrConflict)
		}
		return nil, fmt.Errorf("update access state: %w", err)
	}

	return &state, nil
}
