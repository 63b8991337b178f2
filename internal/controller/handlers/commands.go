package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Разделы в том порядке, в котором их показывает /access
var sections = []struct {
	category model.ContentCategory
	title    string
}{
	{model.CategoryFinancial, "Финансы"},
	{model.CategoryDocuments, "Документы"},
	{model.CategoryCourses, "Курсы"},
	{model.CategoryLearningPath, "Учебная траектория"},
	{model.CategoryLessons, "Уроки"},
}

// HandleStart обрабатывает команду /start и /start <ID студента>
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.start(ctx, b, update)
}

// HandleAccess обрабатывает команду /access
func (h *Handlers) HandleAccess(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.access(ctx, b, update)
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, helpText)
}

const helpText = "📚 Справка по командам:\n\n" +
	"/start <ID студента> - Привязать этот чат к личному кабинету\n" +
	"/access - Текущий уровень доступа и открытые разделы\n" +
	"/help - Показать эту справку\n\n" +
	"При просрочке платежа более 30 дней учебные разделы закрываются, " +
	"финансы и документы остаются доступны."

func (h *Handlers) start(ctx context.Context, s Sender, update *models.Update) {
	if update.Message == nil {
		return
	}

	chatID := update.Message.Chat.ID
	args := strings.Fields(update.Message.Text)

	if len(args) < 2 {
		student, err := h.studentService.GetByTelegramChatID(ctx, chatID)
		if err == nil && student != nil {
			h.sendMessage(ctx, s, chatID, fmt.Sprintf("👋 %s, чат уже привязан.\n\n/access - уровень доступа", student.FullName))
			return
		}
		h.sendMessage(ctx, s, chatID, "👋 Добро пожаловать!\n\n"+
			"Чтобы получать уведомления о доступе, отправьте /start <ID студента> "+
			"или откройте ссылку из личного кабинета.")
		return
	}

	studentID, err := uuid.Parse(args[1])
	if err != nil {
		h.sendError(ctx, s, chatID, "❌ Неверный ID студента.")
		return
	}

	student, err := h.studentService.LinkTelegram(ctx, studentID, chatID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStudentNotFound):
			h.sendError(ctx, s, chatID, "❌ Студент не найден.")
			return
		case errors.Is(err, service.ErrStudentAlreadyLinked):
			h.sendError(ctx, s, chatID, "❌ Этот студент уже привязан к другому чату. Обратитесь в поддержку, чтобы сменить чат.")
			return
		case errors.Is(err, service.ErrChatAlreadyLinked):
			h.sendError(ctx, s, chatID, "❌ Этот чат уже привязан к другому студенту.")
			return
		}
		h.logger.Error("Failed to link telegram chat",
			zap.String("student_id", studentID.String()),
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
		h.sendError(ctx, s, chatID, "❌ Произошла ошибка. Попробуйте позже.")
		return
	}

	h.sendMessage(ctx, s, chatID, fmt.Sprintf(
		"✅ %s, чат привязан.\n\nСюда будут приходить уведомления об изменении доступа.\n/access - уровень доступа",
		student.FullName,
	))
}

func (h *Handlers) access(ctx context.Context, s Sender, update *models.Update) {
	student, ok := h.requireStudent(ctx, s, update)
	if !ok {
		return
	}

	level := h.accessService.GetAccessLevel(ctx, student.ID)

	var sb strings.Builder
	sb.WriteString("🔐 Уровень доступа: ")
	sb.WriteString(levelTitle(level))
	sb.WriteString("\n\n")

	for _, section := range sections {
		mark := "✅"
		if !h.accessService.CheckAccess(ctx, student.ID, section.category) {
			mark = "🔒"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", mark, section.title))
	}

	if level != model.AccessLevelFull {
		sb.WriteString("\nОплатите просроченный платёж, и доступ восстановится автоматически.")
	}

	h.sendMessage(ctx, s, update.Message.Chat.ID, sb.String())
}

func levelTitle(level model.AccessLevel) string {
	switch level {
	case model.AccessLevelFull:
		return "полный"
	case model.AccessLevelFinancialDocuments:
		return "только финансы и документы"
	default:
		return "нет доступа"
	}
}
