package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StudentRepository хранилище студентов, нужное сервису
type StudentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*model.Student, error)
	LinkTelegram(ctx context.Context, studentID uuid.UUID, chatID int64) (bool, error)
}

type StudentService struct {
	studentRepo StudentRepository
	logger      *zap.Logger
}

func NewStudentService(studentRepo StudentRepository, logger *zap.Logger) *StudentService {
	return &StudentService{
		studentRepo: studentRepo,
		logger:      logger,
	}
}

// LinkTelegram привязывает Telegram чат к студенту
func (s *StudentService) LinkTelegram(ctx context.Context, studentID uuid.UUID, chatID int64) (*model.Student, error) {
	found, err := s.studentRepo.LinkTelegram(ctx, studentID, chatID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStudentLinked):
			s.logger.Warn("Refused to relink student to another chat",
				zap.String("student_id", studentID.String()),
				zap.Int64("chat_id", chatID),
			)
			return nil, ErrStudentAlreadyLinked
		case errors.Is(err, repository.ErrChatLinked):
			return nil, ErrChatAlreadyLinked
		}
		return nil, fmt.Errorf("link telegram: %w", err)
	}

	if !found {
		return nil, ErrStudentNotFound
	}

	student, err := s.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}

	if student == nil {
		return nil, ErrStudentNotFound
	}

	s.logger.Info("Telegram chat linked",
		zap.String("student_id", studentID.String()),
		zap.Int64("chat_id", chatID),
	)

	return student, nil
}

// GetByTelegramChatID получает студента по чату, nil если чат не привязан
func (s *StudentService) GetByTelegramChatID(ctx context.Context, chatID int64) (*model.Student, error) {
	return s.studentRepo.GetByTelegramChatID(ctx, chatID)
}

// GetByID получает студента по ID, nil если не найден
func (s *StudentService) GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, id)
}
