package handlers

import (
	"context"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// requireStudent находит студента, привязанного к чату
// Возвращает student и true если OK, nil и false если нет
func (h *Handlers) requireStudent(ctx context.Context, s Sender, update *models.Update) (*model.Student, bool) {
	if update.Message == nil {
		return nil, false
	}

	chatID := update.Message.Chat.ID
	student, err := h.studentService.GetByTelegramChatID(ctx, chatID)

	if err != nil {
		h.logger.Error("Failed to get student", zap.Int64("chat_id", chatID), zap.Error(err))
		h.sendError(ctx, s, chatID, "❌ Произошла ошибка. Попробуйте позже.")
		return nil, false
	}

	if student == nil {
		h.sendError(ctx, s, chatID, "❌ Чат не привязан к студенту. Откройте ссылку из личного кабинета или отправьте /start <ID студента>.")
		return nil, false
	}

	return student, true
}

// sendError отправляет сообщение об ошибке и логирует если не удалось
func (h *Handlers) sendError(ctx context.Context, s Sender, chatID int64, text string) {
	_, err := s.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send error message",
			zap.Int64("chat_id", chatID),
			zap.String("text", text),
			zap.Error(err),
		)
	}
}

// sendMessage отправляет сообщение и логирует если не удалось
func (h *Handlers) sendMessage(ctx context.Context, s Sender, chatID int64, text string) {
	_, err := s.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}
