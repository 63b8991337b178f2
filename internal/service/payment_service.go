package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Payment lifecycle events delivered by the payment provider webhook
const (
	EventPaymentCreated  = "payment.created"
	EventPaymentApproved = "payment.approved"
	EventPaymentOverdue  = "payment.overdue"
)

const defaultSweepWorkers = 4

// PaymentEvent is a decoded webhook delivery
type PaymentEvent struct {
	Event     string
	StudentID uuid.UUID
	PaymentID string     // reference во внешней платёжной системе
	DueDate   *time.Time // обязателен для created и overdue
}

// SweepResult counts what one overdue sweep did
type SweepResult struct {
	Promoted   int `json:"promoted"`   // pending -> overdue
	Recomputed int `json:"recomputed"` // days_overdue перезаписан
	Evaluated  int `json:"evaluated"`  // студентов пересчитано
	Failed     int `json:"failed"`
}

// AccessUpdater пересчитывает доступ студента
type AccessUpdater interface {
	UpdateAccessStatus(ctx context.Context, studentID uuid.UUID) (*AccessChange, error)
}

type PaymentOption func(*PaymentService)

// WithPaymentClock подменяет источник текущего времени
func WithPaymentClock(now func() time.Time) PaymentOption {
	return func(s *PaymentService) {
		s.now = now
	}
}

// WithSweepWorkers задаёт число студентов, пересчитываемых параллельно
func WithSweepWorkers(n int) PaymentOption {
	return func(s *PaymentService) {
		if n > 0 {
			s.workers = n
		}
	}
}

type PaymentService struct {
	store   repository.PaymentStore
	access  AccessUpdater
	logger  *zap.Logger
	now     func() time.Time
	workers int
}

func NewPaymentService(
	store repository.PaymentStore,
	access AccessUpdater,
	logger *zap.Logger,
	opts ...PaymentOption,
) *PaymentService {
	s := &PaymentService{
		store:   store,
		access:  access,
		logger:  logger,
		now:     time.Now,
		workers: defaultSweepWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============ Webhook события ============

// HandleEvent разбирает событие платёжной системы
func (s *PaymentService) HandleEvent(ctx context.Context, event PaymentEvent) error {
	if event.StudentID == uuid.Nil || event.PaymentID == "" {
		return fmt.Errorf("%w: student_id and payment_id are required", ErrInvalidEvent)
	}

	switch event.Event {
	case EventPaymentCreated:
		if event.DueDate == nil {
			return fmt.Errorf("%w: due_date is required for %s", ErrInvalidEvent, event.Event)
		}
		return s.OnPaymentCreated(ctx, event.StudentID, event.PaymentID, *event.DueDate)
	case EventPaymentApproved:
		return s.OnPaymentApproved(ctx, event.StudentID, event.PaymentID)
	case EventPaymentOverdue:
		if event.DueDate == nil {
			return fmt.Errorf("%w: due_date is required for %s", ErrInvalidEvent, event.Event)
		}
		return s.OnPaymentOverdue(ctx, event.StudentID, event.PaymentID, *event.DueDate)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event.Event)
	}
}

// OnPaymentCreated регистрирует новое обязательство и пересчитывает доступ
func (s *PaymentService) OnPaymentCreated(ctx context.Context, studentID uuid.UUID, paymentRef string, dueDate time.Time) error {
	payment := &model.PaymentRecord{
		StudentID:          studentID,
		PaymentReferenceID: &paymentRef,
		DueDate:            dueDate,
		Status:             model.PaymentStatusPending,
	}

	if err := s.store.CreatePaymentIfAbsent(ctx, payment); err != nil {
		return fmt.Errorf("%w: record created payment: %w", ErrStoreUnavailable, err)
	}

	s.logger.Info("Payment created",
		zap.String("student_id", studentID.String()),
		zap.String("payment_ref", paymentRef),
		zap.Time("due_date", dueDate),
	)

	return s.updateAccess(ctx, studentID)
}

// OnPaymentApproved помечает платёж оплаченным и пересчитывает доступ
func (s *PaymentService) OnPaymentApproved(ctx context.Context, studentID uuid.UUID, paymentRef string) error {
	found, err := s.store.MarkPaymentPaid(ctx, studentID, paymentRef)
	if err != nil {
		return fmt.Errorf("%w: record approved payment: %w", ErrStoreUnavailable, err)
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentRef)
	}

	s.logger.Info("Payment approved",
		zap.String("student_id", studentID.String()),
		zap.String("payment_ref", paymentRef),
	)

	return s.updateAccess(ctx, studentID)
}

// OnPaymentOverdue помечает платёж просроченным и пересчитывает доступ
func (s *PaymentService) OnPaymentOverdue(ctx context.Context, studentID uuid.UUID, paymentRef string, dueDate time.Time) error {
	days := max(0, DaysOverdue(dueDate, s.now()))
	payment := &model.PaymentRecord{
		StudentID:          studentID,
		PaymentReferenceID: &paymentRef,
		DueDate:            dueDate,
		Status:             model.PaymentStatusOverdue,
		DaysOverdue:        &days,
	}

	applied, err := s.store.UpsertOverduePayment(ctx, payment)
	if err != nil {
		return fmt.Errorf("%w: record overdue payment: %w", ErrStoreUnavailable, err)
	}

	if !applied {
		s.logger.Info("Overdue signal ignored for paid payment",
			zap.String("student_id", studentID.String()),
			zap.String("payment_ref", paymentRef),
		)
	} else {
		s.logger.Info("Payment overdue",
			zap.String("student_id", studentID.String()),
			zap.String("payment_ref", paymentRef),
			zap.Int("days_overdue", days),
		)
	}

	return s.updateAccess(ctx, studentID)
}

func (s *PaymentService) updateAccess(ctx context.Context, studentID uuid.UUID) error {
	if _, err := s.access.UpdateAccessStatus(ctx, studentID); err != nil {
		return fmt.Errorf("update access status: %w", err)
	}
	return nil
}

// ============ Периодический пересчёт ============

// SweepOverdue переводит просроченные pending платежи в overdue, пересчитывает
// days_overdue от due_date и обновляет доступ затронутых студентов
func (s *PaymentService) SweepOverdue(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	promoted, err := s.store.PromotePastDuePayments(ctx, now)
	if err != nil {
		return result, fmt.Errorf("%w: promote past due payments: %w", ErrStoreUnavailable, err)
	}
	result.Promoted = len(promoted)

	students := newStudentSet()
	for _, id := range promoted {
		students.add(id)
	}

	overdue, err := s.store.ListOverduePayments(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: list overdue payments: %w", ErrStoreUnavailable, err)
	}

	for _, payment := range overdue {
		fresh := max(0, DaysOverdue(payment.DueDate, now))
		if payment.DaysOverdue != nil && *payment.DaysOverdue == fresh {
			continue
		}

		if err := s.store.UpdatePaymentDaysOverdue(ctx, payment.ID, fresh); err != nil {
			s.logger.Error("Failed to update days overdue",
				zap.String("payment_id", payment.ID.String()),
				zap.Error(err),
			)
			result.Failed++
			continue
		}

		result.Recomputed++
		students.add(payment.StudentID)
	}

	evaluated, failed := s.updateAll(ctx, students.list())
	result.Evaluated = evaluated
	result.Failed += failed

	s.logger.Info("Overdue sweep finished",
		zap.Int("promoted", result.Promoted),
		zap.Int("recomputed", result.Recomputed),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

// updateAll пересчитывает доступ студентов параллельно; ошибка одного студента не останавливает остальных
func (s *PaymentService) updateAll(ctx context.Context, studentIDs []uuid.UUID) (int, int) {
	var (
		g         errgroup.Group
		evaluated atomic.Int64
		failed    atomic.Int64
	)
	g.SetLimit(s.workers)

	for _, studentID := range studentIDs {
		studentID := studentID
		g.Go(func() error {
			if _, err := s.access.UpdateAccessStatus(ctx, studentID); err != nil {
				failed.Add(1)
				return nil
			}
			evaluated.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(evaluated.Load()), int(failed.Load())
}

// studentSet сохраняет порядок добавления
type studentSet struct {
	seen map[uuid.UUID]struct{}
	ids  []uuid.UUID
}

func newStudentSet() *studentSet {
	return &studentSet{seen: make(map[uuid.UUID]struct{})}
}

func (s *studentSet) add(id uuid.UUID) {
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}

func (s *studentSet) list() []uuid.UUID {
	return s.ids
}
