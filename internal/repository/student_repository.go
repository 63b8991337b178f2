package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/repository/base"
	"github.com/google/uuid"
)

type StudentRepository struct {
	*base.Repository
}

func NewStudentRepository(db base.DB) *StudentRepository {
	return &StudentRepository{Repository: base.NewRepository(db)}
}

// GetByID получает студента по ID
func (r *StudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	query := `
		SELECT id, email, full_name, telegram_chat_id, created_at
		FROM students
		WHERE id = $1
	`

	return r.getOne(ctx, "get student by id", query, id)
}

// GetByTelegramChatID получает студента по привязанному чату
func (r *StudentRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*model.Student, error) {
	query := `
		SELECT id, email, full_name, telegram_chat_id, created_at
		FROM students
		WHERE telegram_chat_id = $1
	`

	return r.getOne(ctx, "get student by telegram chat", query, chatID)
}

// LinkTelegram привязывает чат к студенту. Возвращает false если студент не найден.
// Чат, уже привязанный к студенту, не перезаписывается: ErrStudentLinked.
// Чат, привязанный к другому студенту: ErrChatLinked
func (r *StudentRepository) LinkTelegram(ctx context.Context, studentID uuid.UUID, chatID int64) (bool, error) {
	query := `
		UPDATE students
		SET telegram_chat_id = $2
		WHERE id = $1 AND (telegram_chat_id IS NULL OR telegram_chat_id = $2)
	`

	affected, err := r.ExecAffected(ctx, query, studentID, chatID)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return false, fmt.Errorf("link telegram chat: %w", ErrChatLinked)
		}
		return false, fmt.Errorf("link telegram chat: %w", err)
	}

	if affected > 0 {
		return true, nil
	}

	// Студента нет или у него уже другой чат
	var exists bool
	err = r.DB().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check student: %w", err)
	}

	if !exists {
		return false, nil
	}

	return false, fmt.Errorf("link telegram chat: %w", ErrStudentLinked)
}

func (r *StudentRepository) getOne(ctx context.Context, op, query string, arg any) (*model.Student, error) {
	var student model.Student
	err := r.DB().QueryRow(ctx, query, arg).Scan(
		&student.ID,
		&student.Email,
		&student.FullName,
		&student.TelegramChatID,
		&student.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Студент не найден
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &student, nil
}
