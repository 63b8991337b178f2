package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dueDateLayout = "2006-01-02"

// PaymentHandler принимает события платёжной системы и запускает пересчёт
type PaymentHandler interface {
	HandleEvent(ctx context.Context, event service.PaymentEvent) error
	SweepOverdue(ctx context.Context) (service.SweepResult, error)
}

// AccessChecker read-only проверки для route guard
type AccessChecker interface {
	CheckAccess(ctx context.Context, studentID uuid.UUID, category model.ContentCategory) bool
	GetAccessLevel(ctx context.Context, studentID uuid.UUID) model.AccessLevel
}

// HistoryReader журнал изменений доступа студента, новые первыми
type HistoryReader interface {
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.AccessRestrictionEvent, error)
}

type Options struct {
	WebhookSecret      string
	CronAPIKey         string
	RestrictedRedirect string
}

type Server struct {
	payments PaymentHandler
	access   AccessChecker
	history  HistoryReader
	opts     Options
	logger   *zap.Logger
}

func NewServer(payments PaymentHandler, access AccessChecker, history HistoryReader, opts Options, logger *zap.Logger) *Server {
	if opts.RestrictedRedirect == "" {
		opts.RestrictedRedirect = "/restricted-access"
	}
	return &Server{
		payments: payments,
		access:   access,
		history:  history,
		opts:     opts,
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhooks/payments", s.handlePaymentWebhook)
	r.With(s.cronAuthMiddleware).Post("/cron/overdue-sweep", s.handleOverdueSweep)
	r.Get("/students/{studentID}/access", s.handleGetAccess)
	r.Get("/students/{studentID}/access/history", s.handleGetAccessHistory)

	// Учебные разделы за route guard; финансы и документы без него
	r.Route("/content", func(r chi.Router) {
		for _, category := range []model.ContentCategory{
			model.CategoryCourses,
			model.CategoryLearningPath,
			model.CategoryLessons,
		} {
			r.With(AccessGuard(s.access, category, s.opts.RestrictedRedirect)).
				Get("/"+string(category), s.handleContent(category))
		}
		r.Get("/"+string(model.CategoryFinancial), s.handleContent(model.CategoryFinancial))
		r.Get("/"+string(model.CategoryDocuments), s.handleContent(model.CategoryDocuments))
	})

	return r
}

// Payments webhook

type paymentWebhookRequest struct {
	Event string `json:"event"`
	Data  struct {
		StudentID string `json:"student_id"`
		PaymentID string `json:"payment_id"`
		DueDate   string `json:"due_date"`
	} `json:"data"`
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.opts.WebhookSecret != "" && !secretMatches(r.Header.Get("X-Webhook-Secret"), s.opts.WebhookSecret) {
		writeError(w, http.StatusUnauthorized, "invalid_webhook_secret")
		return
	}

	var req paymentWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	event, err := req.toEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := s.payments.HandleEvent(r.Context(), event); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEvent), errors.Is(err, service.ErrUnknownEvent):
			writeError(w, http.StatusBadRequest, "invalid_event")
		case errors.Is(err, service.ErrPaymentNotFound):
			writeError(w, http.StatusNotFound, "payment_not_found")
		default:
			s.logger.Error("Failed to handle payment webhook",
				zap.String("event", event.Event),
				zap.String("student_id", event.StudentID.String()),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (req paymentWebhookRequest) toEvent() (service.PaymentEvent, error) {
	studentID, err := uuid.Parse(strings.TrimSpace(req.Data.StudentID))
	if err != nil {
		return service.PaymentEvent{}, err
	}

	event := service.PaymentEvent{
		Event:     strings.TrimSpace(req.Event),
		StudentID: studentID,
		PaymentID: strings.TrimSpace(req.Data.PaymentID),
	}

	if raw := strings.TrimSpace(req.Data.DueDate); raw != "" {
		dueDate, err := time.Parse(dueDateLayout, raw)
		if err != nil {
			return service.PaymentEvent{}, err
		}
		event.DueDate = &dueDate
	}

	return event, nil
}

// Cron

func (s *Server) cronAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.CronAPIKey == "" {
			writeError(w, http.StatusServiceUnavailable, "cron_disabled")
			return
		}
		if !secretMatches(r.Header.Get("X-API-Key"), s.opts.CronAPIKey) {
			writeError(w, http.StatusUnauthorized, "invalid_api_key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleOverdueSweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.payments.SweepOverdue(r.Context())
	if err != nil {
		s.logger.Error("Overdue sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Route guard

type accessResponse struct {
	StudentID string `json:"student_id"`
	Level     string `json:"level"`
	Category  string `json:"category,omitempty"`
	Allowed   *bool  `json:"allowed,omitempty"`
}

func (s *Server) handleGetAccess(w http.ResponseWriter, r *http.Request) {
	studentID, err := uuid.Parse(chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}

	resp := accessResponse{
		StudentID: studentID.String(),
		Level:     string(s.access.GetAccessLevel(r.Context(), studentID)),
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		category := model.ContentCategory(raw)
		allowed := s.access.CheckAccess(r.Context(), studentID, category)
		resp.Category = raw
		resp.Allowed = &allowed
	}

	writeJSON(w, http.StatusOK, resp)
}

type historyEntry struct {
	ID              string    `json:"id"`
	RestrictionType string    `json:"restriction_type"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s *Server) handleGetAccessHistory(w http.ResponseWriter, r *http.Request) {
	studentID, err := uuid.Parse(chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}

	events, err := s.history.ListByStudent(r.Context(), studentID)
	if err != nil {
		s.logger.Error("Failed to list access history",
			zap.String("student_id", studentID.String()),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	entries := make([]historyEntry, 0, len(events))
	for _, event := range events {
		entries = append(entries, historyEntry{
			ID:              event.ID.String(),
			RestrictionType: string(event.RestrictionType),
			Reason:          event.Reason,
			CreatedAt:       event.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id": studentID.String(),
		"events":     entries,
	})
}

func (s *Server) handleContent(category model.ContentCategory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"category": string(category)}
		// на разделах без guard студента в контексте нет
		if studentID := studentIDFromContext(r.Context()); studentID != uuid.Nil {
			resp["student_id"] = studentID.String()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Helpers

func secretMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(want)) == 1
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
