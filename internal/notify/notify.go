package notify

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageSender часть *bot.Bot, нужная для отправки уведомлений
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// StudentLookup ищет студента, чтобы узнать его чат
type StudentLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error)
}

// TelegramNotifier пишет студенту в Telegram, когда меняется уровень доступа
type TelegramNotifier struct {
	sender   MessageSender
	students StudentLookup
	logger   *zap.Logger
}

func NewTelegramNotifier(sender MessageSender, students StudentLookup, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender:   sender,
		students: students,
		logger:   logger,
	}
}

func (n *TelegramNotifier) NotifyAccessChanged(ctx context.Context, change *service.AccessChange) error {
	student, err := n.students.GetByID(ctx, change.StudentID)
	if err != nil {
		return fmt.Errorf("get student: %w", err)
	}

	if student == nil || !student.HasTelegram() {
		n.logger.Debug("Student has no telegram chat, skipping notification",
			zap.String("student_id", change.StudentID.String()),
		)
		return nil
	}

	_, err = n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: *student.TelegramChatID,
		Text:   AccessChangedText(change),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

// AccessChangedText формирует текст уведомления
func AccessChangedText(change *service.AccessChange) string {
	if change.Current != nil && change.Current.HasFullAccess {
		return "✅ Оплата получена, полный доступ к обучению восстановлен.\n\n" +
			"Курсы, учебные траектории и уроки снова открыты."
	}

	return fmt.Sprintf(
		"⚠️ Доступ к обучению ограничен: платёж просрочен более чем на %d дней.\n\n"+
			"Разделы «Финансы» и «Документы» остаются доступны. "+
			"После оплаты доступ восстановится автоматически.",
		model.GracePeriodDays,
	)
}

// LogNotifier только пишет смену доступа в лог
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyAccessChanged(_ context.Context, change *service.AccessChange) error {
	fields := []zap.Field{
		zap.String("student_id", change.StudentID.String()),
		zap.Bool("initial", change.Created()),
	}
	if change.Current != nil {
		fields = append(fields, zap.Bool("has_full_access", change.Current.HasFullAccess))
	}
	if change.Event != nil {
		fields = append(fields, zap.String("restriction_type", string(change.Event.RestrictionType)))
	}

	n.logger.Info("Access change notification", fields...)
	return nil
}
