package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/repository/base"
	"github.com/google/uuid"
)

// ErrConflict возвращается, когда запись изменили параллельно (версия не совпала)
var ErrConflict = errors.New("concurrent modification")

var (
	// ErrStudentLinked студент уже привязан к другому чату
	ErrStudentLinked = errors.New("student already linked to another chat")
	// ErrChatLinked чат уже привязан к другому студенту
	ErrChatLinked = errors.New("chat already linked to another student")
)

// AccessStore is the data store consumed by the access policy engine.
// A missing row is reported as nil with a nil error.
type AccessStore interface {
	GetLatestPaymentRecord(ctx context.Context, studentID uuid.UUID) (*model.PaymentRecord, error)
	GetAccessState(ctx context.Context, studentID uuid.UUID) (*model.AccessState, error)
	InsertAccessState(ctx context.Context, state *model.AccessState) (*model.AccessState, error)
	UpdateAccessState(ctx context.Context, studentID uuid.UUID, patch model.AccessPatch, expectedVersion int64) (*model.AccessState, error)
	AppendRestrictionEvent(ctx context.Context, event *model.AccessRestrictionEvent) error

	// WithinTx runs fn against a transactional view of the store.
	// Nothing fn wrote is kept if it returns an error.
	WithinTx(ctx context.Context, fn func(tx AccessStore) error) error
}

// PaymentStore records payment facts coming from webhooks and the overdue sweep.
type PaymentStore interface {
	CreatePaymentIfAbsent(ctx context.Context, payment *model.PaymentRecord) error
	UpsertOverduePayment(ctx context.Context, payment *model.PaymentRecord) (bool, error)
	MarkPaymentPaid(ctx context.Context, studentID uuid.UUID, paymentRef string) (bool, error)
	ListOverduePayments(ctx context.Context) ([]*model.PaymentRecord, error)
	UpdatePaymentDaysOverdue(ctx context.Context, paymentID uuid.UUID, days int) error
	PromotePastDuePayments(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)
}

// Store собирает репозитории в одно хранилище поверх пула или транзакции
type Store struct {
	db           base.DB
	payments     *PaymentRepository
	access       *AccessRepository
	restrictions *RestrictionRepository
	students     *StudentRepository
}

// NewStore создаёт хранилище
func NewStore(db base.DB) *Store {
	return &Store{
		db:           db,
		payments:     NewPaymentRepository(db),
		access:       NewAccessRepository(db),
		restrictions: NewRestrictionRepository(db),
		students:     NewStudentRepository(db),
	}
}

// Students возвращает репозиторий студентов
func (s *Store) Students() *StudentRepository {
	return s.students
}

// Restrictions возвращает репозиторий истории ограничений
func (s *Store) Restrictions() *RestrictionRepository {
	return s.restrictions
}

// ============ AccessStore ============

func (s *Store) GetLatestPaymentRecord(ctx context.Context, studentID uuid.UUID) (*model.PaymentRecord, error) {
	return s.payments.GetLatestByStudent(ctx, studentID)
}

func (s *Store) GetAccessState(ctx context.Context, studentID uuid.UUID) (*model.AccessState, error) {
	return s.access.GetByStudent(ctx, studentID)
}

func (s *Store) InsertAccessState(ctx context.Context, state *model.AccessState) (*model.AccessState, error) {
	if err := s.access.Insert(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Store) UpdateAccessState(ctx context.Context, studentID uuid.UUID, patch model.AccessPatch, expectedVersion int64) (*model.AccessState, error) {
	return s.access.Update(ctx, studentID, patch, expectedVersion)
}

func (s *Store) AppendRestrictionEvent(ctx context.Context, event *model.AccessRestrictionEvent) error {
	return s.restrictions.Append(ctx, event)
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx AccessStore) error) error {
	return base.WithTx(ctx, s.db, func(tx base.DB) error {
		return fn(NewStore(tx))
	})
}

// ============ PaymentStore ============

func (s *Store) CreatePaymentIfAbsent(ctx context.Context, payment *model.PaymentRecord) error {
	return s.payments.CreateIfAbsent(ctx, payment)
}

func (s *Store) UpsertOverduePayment(ctx context.Context, payment *model.PaymentRecord) (bool, error) {
	return s.payments.UpsertOverdue(ctx, payment)
}

func (s *Store) MarkPaymentPaid(ctx context.Context, studentID uuid.UUID, paymentRef string) (bool, error) {
	return s.payments.MarkPaid(ctx, studentID, paymentRef)
}

func (s *Store) ListOverduePayments(ctx context.Context) ([]*model.PaymentRecord, error) {
	return s.payments.ListOverdue(ctx)
}

func (s *Store) UpdatePaymentDaysOverdue(ctx context.Context, paymentID uuid.UUID, days int) error {
	return s.payments.UpdateDaysOverdue(ctx, paymentID, days)
}

func (s *Store) PromotePastDuePayments(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	return s.payments.PromotePastDue(ctx, asOf)
}
