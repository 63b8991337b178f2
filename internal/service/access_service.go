package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/student_portal/internal/lock"
	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultStoreTimeout = 5 * time.Second

// Tier is the outcome of the access policy for one payment record
type Tier struct {
	HasFullAccess bool
}

// EvaluateTier decides the access tier from the student's most recently due payment.
// Only an overdue payment past the grace period restricts access.
func EvaluateTier(record *model.PaymentRecord) Tier {
	if record == nil {
		return Tier{HasFullAccess: true}
	}

	switch record.Status {
	case model.PaymentStatusPaid:
		return Tier{HasFullAccess: true}
	case model.PaymentStatusOverdue:
		return Tier{HasFullAccess: record.OverdueDays() <= model.GracePeriodDays}
	default:
		// pending и cancelled доступ не ограничивают
		return Tier{HasFullAccess: true}
	}
}

// DaysOverdue returns calendar days from dueDate to asOf. dueDate is a DATE,
// asOf is taken as its UTC calendar date, so the host time zone does not move
// the grace boundary. The result is negative while the payment is not yet due.
func DaysOverdue(dueDate, asOf time.Time) int {
	due := time.Date(dueDate.Year(), dueDate.Month(), dueDate.Day(), 0, 0, 0, 0, time.UTC)
	asOf = asOf.UTC()
	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return int(today.Sub(due).Hours() / 24)
}

// AccessChange describes what UpdateAccessStatus did for a student
type AccessChange struct {
	StudentID uuid.UUID
	Previous  *model.AccessState            // nil при первой оценке
	Current   *model.AccessState            // состояние после вызова
	Event     *model.AccessRestrictionEvent // nil если событие не писалось
}

// Created reports whether this call created the student's access state
func (c *AccessChange) Created() bool {
	return c.Previous == nil
}

// Changed reports whether an existing tier flipped
func (c *AccessChange) Changed() bool {
	return c.Previous != nil && c.Previous.HasFullAccess != c.Current.HasFullAccess
}

// Notifier сообщает студенту о смене уровня доступа
type Notifier interface {
	NotifyAccessChanged(ctx context.Context, change *AccessChange) error
}

type AccessOption func(*AccessService)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) AccessOption {
	return func(s *AccessService) {
		s.now = now
	}
}

// WithStoreTimeout ограничивает время одной операции с хранилищем
func WithStoreTimeout(timeout time.Duration) AccessOption {
	return func(s *AccessService) {
		if timeout > 0 {
			s.storeTimeout = timeout
		}
	}
}

type AccessService struct {
	store        repository.AccessStore
	locker       lock.Locker
	notifier     Notifier
	logger       *zap.Logger
	now          func() time.Time
	storeTimeout time.Duration
}

func NewAccessService(
	store repository.AccessStore,
	locker lock.Locker,
	notifier Notifier,
	logger *zap.Logger,
	opts ...AccessOption,
) *AccessService {
	s := &AccessService{
		store:        store,
		locker:       locker,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============ Проверки доступа (route guard) ============

// CheckAccess проверяет, может ли студент открыть раздел.
// Использует сохранённый уровень доступа; при любой ошибке доступ разрешается
func (s *AccessService) CheckAccess(ctx context.Context, studentID uuid.UUID, category model.ContentCategory) bool {
	// Финансы и документы доступны всегда, остальные неизвестные разделы тоже
	if category.IsAlwaysAccessible() || !category.IsEducational() {
		return true
	}

	state, ok := s.lookupState(ctx, studentID)
	if !ok {
		return true
	}

	return state.HasFullAccess
}

// GetAccessLevel возвращает уровень доступа студента. NONE сейчас не выдаётся
func (s *AccessService) GetAccessLevel(ctx context.Context, studentID uuid.UUID) model.AccessLevel {
	state, ok := s.lookupState(ctx, studentID)
	if ok && !state.HasFullAccess {
		return model.AccessLevelFinancialDocuments
	}

	return model.AccessLevelFull
}

// lookupState читает состояние доступа; false означает "не удалось или записи нет"
func (s *AccessService) lookupState(ctx context.Context, studentID uuid.UUID) (*model.AccessState, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	state, err := s.store.GetAccessState(ctx, studentID)
	if err != nil {
		s.logger.Warn("Access lookup failed, allowing access",
			zap.String("student_id", studentID.String()),
			zap.Error(err),
		)
		return nil, false
	}

	if state == nil {
		return nil, false
	}

	return state, true
}

// ============ Пересчёт доступа ============

// UpdateAccessStatus приводит сохранённый уровень доступа к тому, что следует из платежей.
// Единственный писатель student_access и access_restriction_history.
// При ошибке хранилища ничего не записывается
func (s *AccessService) UpdateAccessStatus(ctx context.Context, studentID uuid.UUID) (*AccessChange, error) {
	change, err := s.applyAccessStatus(ctx, studentID)
	if err != nil {
		s.logger.Error("Failed to update access status",
			zap.String("student_id", studentID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if change.Event == nil {
		return change, nil
	}

	s.logger.Info("Access tier changed",
		zap.String("student_id", studentID.String()),
		zap.Bool("has_full_access", change.Current.HasFullAccess),
		zap.String("restriction_type", string(change.Event.RestrictionType)),
		zap.Bool("initial", change.Created()),
	)

	if s.notifier != nil {
		if err := s.notifier.NotifyAccessChanged(ctx, change); err != nil {
			// Доступ уже сохранён, уведомление не критично
			s.logger.Warn("Failed to notify student",
				zap.String("student_id", studentID.String()),
				zap.Error(err),
			)
		}
	}

	return change, nil
}

func (s *AccessService) applyAccessStatus(ctx context.Context, studentID uuid.UUID) (*AccessChange, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	// Пересчёт одного студента не должен идти параллельно
	unlock, err := s.locker.Lock(ctx, studentID.String())
	if err != nil {
		return nil, fmt.Errorf("lock student %s: %w", studentID, err)
	}
	defer unlock()

	record, err := s.store.GetLatestPaymentRecord(ctx, studentID)
	if err != nil {
		return nil, storeError("get latest payment", err)
	}

	now := s.now()
	target := EvaluateTier(freshOverdue(record, now))

	var change *AccessChange
	err = s.store.WithinTx(ctx, func(tx repository.AccessStore) error {
		current, err := tx.GetAccessState(ctx, studentID)
		if err != nil {
			return storeError("get access state", err)
		}

		if current == nil {
			change, err = s.createState(ctx, tx, studentID, target, now)
			return err
		}

		if current.HasFullAccess == target.HasFullAccess {
			change = &AccessChange{StudentID: studentID, Previous: current, Current: current}
			return nil
		}

		updated, err := tx.UpdateAccessState(ctx, studentID, patchFor(target, now), current.Version)
		if err != nil {
			return storeError("update access state", err)
		}

		event := restrictionEvent(studentID, target)
		if err := tx.AppendRestrictionEvent(ctx, event); err != nil {
			return storeError("append restriction event", err)
		}

		change = &AccessChange{StudentID: studentID, Previous: current, Current: updated, Event: event}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrConcurrentUpdate) {
			return nil, err
		}
		return nil, storeError("access state transaction", err)
	}

	return change, nil
}

// createState создаёт первую запись о доступе. Событие пишется только если студент
// сразу попадает в ограниченный режим
func (s *AccessService) createState(
	ctx context.Context,
	tx repository.AccessStore,
	studentID uuid.UUID,
	target Tier,
	now time.Time,
) (*AccessChange, error) {
	patch := patchFor(target, now)
	inserted, err := tx.InsertAccessState(ctx, &model.AccessState{
		StudentID:       studentID,
		HasFullAccess:   patch.HasFullAccess,
		RestrictedSince: patch.RestrictedSince,
	})
	if err != nil {
		return nil, storeError("insert access state", err)
	}

	change := &AccessChange{StudentID: studentID, Current: inserted}
	if target.HasFullAccess {
		return change, nil
	}

	event := restrictionEvent(studentID, target)
	if err := tx.AppendRestrictionEvent(ctx, event); err != nil {
		return nil, storeError("append restriction event", err)
	}
	change.Event = event

	return change, nil
}

// freshOverdue пересчитывает дни просрочки от due_date: сохранённое значение только кэш
func freshOverdue(record *model.PaymentRecord, now time.Time) *model.PaymentRecord {
	if record == nil || !record.IsOverdue() {
		return record
	}

	days := DaysOverdue(record.DueDate, now)
	fresh := *record
	fresh.DaysOverdue = &days
	return &fresh
}

func patchFor(target Tier, now time.Time) model.AccessPatch {
	if target.HasFullAccess {
		return model.AccessPatch{HasFullAccess: true}
	}
	restrictedSince := now
	return model.AccessPatch{HasFullAccess: false, RestrictedSince: &restrictedSince}
}

func restrictionEvent(studentID uuid.UUID, target Tier) *model.AccessRestrictionEvent {
	if target.HasFullAccess {
		return &model.AccessRestrictionEvent{
			StudentID:       studentID,
			RestrictionType: model.RestrictionTypeNone,
			Reason:          model.ReasonPaymentRegularized,
		}
	}
	return &model.AccessRestrictionEvent{
		StudentID:       studentID,
		RestrictionType: model.RestrictionTypePartial,
		Reason:          model.ReasonOverdueBeyondGrace,
	}
}

func storeError(op string, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%s: %w: %w", op, ErrConcurrentUpdate, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
