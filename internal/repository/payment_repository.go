package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, student_id, payment_reference_id, due_date, status, days_overdue, created_at, updated_at`

type PaymentRepository struct {
	*base.Repository
}

func NewPaymentRepository(db base.DB) *PaymentRepository {
	return &PaymentRepository{Repository: base.NewRepository(db)}
}

// GetLatestByStudent получает последний по сроку платёж студента.
// При одинаковой дате выигрывает запись с более поздним updated_at
func (r *PaymentRepository) GetLatestByStudent(ctx context.Context, studentID uuid.UUID) (*model.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_status
		WHERE student_id = $1
		ORDER BY due_date DESC, updated_at DESC
		LIMIT 1
	`

	payment, err := scanPayment(r.DB().QueryRow(ctx, query, studentID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Платежей нет
		}
		return nil, fmt.Errorf("get latest payment: %w", err)
	}

	return payment, nil
}

// CreateIfAbsent создаёт pending платёж. Если платёж с таким reference уже есть,
// обновляется только срок оплаты, статус не трогаем
func (r *PaymentRepository) CreateIfAbsent(ctx context.Context, payment *model.PaymentRecord) error {
	query := `
		INSERT INTO payment_status (student_id, payment_reference_id, due_date, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, payment_reference_id)
		DO UPDATE SET due_date = EXCLUDED.due_date, updated_at = NOW()
		RETURNING id, status, days_overdue, created_at, updated_at
	`

	var status string
	err := r.DB().QueryRow(ctx, query,
		payment.StudentID,
		payment.PaymentReferenceID,
		payment.DueDate,
		string(model.PaymentStatusPending),
	).Scan(&payment.ID, &status, &payment.DaysOverdue, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	payment.Status = model.PaymentStatus(status)
	return nil
}

// UpsertOverdue помечает платёж просроченным (или создаёт его).
// Оплаченный платёж просроченным не становится: возвращает false
func (r *PaymentRepository) UpsertOverdue(ctx context.Context, payment *model.PaymentRecord) (bool, error) {
	query := `
		INSERT INTO payment_status (student_id, payment_reference_id, due_date, status, days_overdue)
		VALUES ($1, $2, $3, 'overdue', $4)
		ON CONFLICT (student_id, payment_reference_id)
		DO UPDATE SET
			due_date = EXCLUDED.due_date,
			status = 'overdue',
			days_overdue = EXCLUDED.days_overdue,
			updated_at = NOW()
		WHERE payment_status.status <> 'paid'
		RETURNING id, created_at, updated_at
	`

	err := r.DB().QueryRow(ctx, query,
		payment.StudentID,
		payment.PaymentReferenceID,
		payment.DueDate,
		payment.DaysOverdue,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("upsert overdue payment: %w", err)
	}

	payment.Status = model.PaymentStatusOverdue
	return true, nil
}

// MarkPaid помечает платёж оплаченным. Возвращает false если платёж не найден
func (r *PaymentRepository) MarkPaid(ctx context.Context, studentID uuid.UUID, paymentRef string) (bool, error) {
	query := `
		UPDATE payment_status
		SET status = 'paid', days_overdue = NULL, updated_at = NOW()
		WHERE student_id = $1 AND payment_reference_id = $2
	`

	affected, err := r.ExecAffected(ctx, query, studentID, paymentRef)
	if err != nil {
		return false, fmt.Errorf("mark payment paid: %w", err)
	}

	return affected > 0, nil
}

// UpdateDaysOverdue перезаписывает закэшированное количество дней просрочки
func (r *PaymentRepository) UpdateDaysOverdue(ctx context.Context, paymentID uuid.UUID, days int) error {
	query := `
		UPDATE payment_status
		SET days_overdue = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'overdue'
	`

	if _, err := r.DB().Exec(ctx, query, paymentID, days); err != nil {
		return fmt.Errorf("update days overdue: %w", err)
	}

	return nil
}

// ListOverdue получает все просроченные платежи
func (r *PaymentRepository) ListOverdue(ctx context.Context) ([]*model.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_status
		WHERE status = 'overdue'
		ORDER BY student_id, due_date
	`

	rows, err := r.DB().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list overdue payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.PaymentRecord
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}

	return payments, nil
}

// PromotePastDue переводит pending платежи с прошедшим сроком в overdue.
// Возвращает ID студентов, у которых что-то поменялось
func (r *PaymentRepository) PromotePastDue(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE payment_status
		SET status = 'overdue',
			days_overdue = $1::date - due_date,
			updated_at = NOW()
		WHERE status = 'pending' AND due_date < $1::date
		RETURNING student_id
	`

	rows, err := r.DB().Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("promote past due payments: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]struct{})
	var studentIDs []uuid.UUID
	for rows.Next() {
		var studentID uuid.UUID
		if err := rows.Scan(&studentID); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		if _, ok := seen[studentID]; ok {
			continue
		}
		seen[studentID] = struct{}{}
		studentIDs = append(studentIDs, studentID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate student ids: %w", err)
	}

	return studentIDs, nil
}

func scanPayment(row pgx.Row) (*model.PaymentRecord, error) {
	var payment model.PaymentRecord
	var status string
	err := row.Scan(
		&payment.ID,
		&payment.StudentID,
		&payment.PaymentReferenceID,
		&payment.DueDate,
		&status,
		&payment.DaysOverdue,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.Status = model.PaymentStatus(status)
	return &payment, nil
}
