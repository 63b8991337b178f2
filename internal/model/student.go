package model

import (
	"time"

	"github.com/google/uuid"
)

type Student struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	TelegramChatID *int64    `json:"telegram_chat_id"` // nil если бот не привязан
	CreatedAt      time.Time `json:"created_at"`
}

// HasTelegram checks if the student linked a Telegram chat
func (s *Student) HasTelegram() bool {
	return s.TelegramChatID != nil
}
