package handlers

import (
	"context"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender часть *bot.Bot, через которую отвечают обработчики
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// StudentService привязка и поиск студента по чату
type StudentService interface {
	LinkTelegram(ctx context.Context, studentID uuid.UUID, chatID int64) (*model.Student, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*model.Student, error)
}

// AccessService read-only проверки доступа
type AccessService interface {
	CheckAccess(ctx context.Context, studentID uuid.UUID, category model.ContentCategory) bool
	GetAccessLevel(ctx context.Context, studentID uuid.UUID) model.AccessLevel
}

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	studentService StudentService
	accessService  AccessService
	logger         *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	studentService StudentService,
	accessService AccessService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		studentService: studentService,
		accessService:  accessService,
		logger:         logger,
	}
}
