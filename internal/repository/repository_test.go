package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentCols = []string{"id", "student_id", "payment_reference_id", "due_date", "status", "days_overdue", "created_at", "updated_at"}

var accessCols = []string{"id", "student_id", "has_full_access", "restricted_since", "version", "created_at", "updated_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

// --- payments ---

func TestPaymentRepository_GetLatestByStudent(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepository(mock)
	studentID := uuid.New()
	paymentID := uuid.New()
	due := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM payment_status WHERE student_id = \$1 ORDER BY due_date DESC, updated_at DESC`).
		WithArgs(studentID).
		WillReturnRows(pgxmock.NewRows(paymentCols).
			AddRow(paymentID, studentID, strPtr("mp-1"), due, "overdue", intPtr(45), now, now))

	payment, err := repo.GetLatestByStudent(context.Background(), studentID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, paymentID, payment.ID)
	assert.Equal(t, model.PaymentStatusOverdue, payment.Status)
	assert.Equal(t, 45, payment.OverdueDays())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetLatestByStudent_NoHistory(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepository(mock)
	studentID := uuid.New()

	mock.ExpectQuery(`FROM payment_status`).
		WithArgs(studentID).
		WillReturnRows(pgxmock.NewRows(paymentCols))

	payment, err := repo.GetLatestByStudent(context.Background(), studentID)
	require.NoError(t, err)
	assert.Nil(t, payment)
}

func TestPaymentRepository_GetLatestByStudent_Error(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepository(mock)
	studentID := uuid.New()

	mock.ExpectQuery(`FROM payment_status`).
		WithArgs(studentID).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetLatestByStudent(context.Background(), studentID)
	require.Error(t, err)
}

func TestPaymentRepository_UpsertOverdue_PaidIsKept(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepository(mock)
	payment := &model.PaymentRecord{
		StudentID:          uuid.New(),
		PaymentReferenceID: strPtr("mp-1"),
		DueDate:            time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Status:             model.PaymentStatusOverdue,
		DaysOverdue:        intPtr(40),
	}

	// ON CONFLICT ... WHERE status <> 'paid' не возвращает строк
	mock.ExpectQuery(`INSERT INTO payment_status`).
		WithArgs(payment.StudentID, payment.PaymentReferenceID, payment.DueDate, payment.DaysOverdue).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}))

	applied, err := repo.UpsertOverdue(context.Background(), payment)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_MarkPaid(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepository(mock)
	studentID := uuid.New()

	mock.ExpectExec(`UPDATE payment_status SET status = 'paid'`).
		WithArgs(studentID, "mp-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE payment_status SET status = 'paid'`).
		WithArgs(studentID, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	found, err := repo.MarkPaid(context.Background(), studentID, "mp-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.MarkPaid(context.Background(), studentID, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_PromotePastDue_DedupesStudents(t *testing.T) {
	mock := newMock(t)
	repo := NewPaymentRepository(mock)
	a, b := uuid.New(), uuid.New()
	asOf := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE payment_status SET status = 'overdue'`).
		WithArgs(asOf).
		WillReturnRows(pgxmock.NewRows([]string{"student_id"}).AddRow(a).AddRow(b).AddRow(a))

	ids, err := repo.PromotePastDue(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
}

// --- access state ---

func TestAccessRepository_Insert_Conflict(t *testing.T) {
	mock := newMock(t)
	repo := NewAccessRepository(mock)
	state := &model.AccessState{StudentID: uuid.New(), HasFullAccess: true}

	mock.ExpectQuery(`INSERT INTO student_access .+ ON CONFLICT \(student_id\) DO NOTHING`).
		WithArgs(state.StudentID, true, state.RestrictedSince).
		WillReturnRows(pgxmock.NewRows([]string{"id", "version", "created_at", "updated_at"}))

	err := repo.Insert(context.Background(), state)
	require.ErrorIs(t, err, ErrConflict)
}

func TestAccessRepository_Update(t *testing.T) {
	mock := newMock(t)
	repo := NewAccessRepository(mock)
	studentID := uuid.New()
	since := time.Now()
	patch := model.AccessPatch{HasFullAccess: false, RestrictedSince: &since}

	mock.ExpectQuery(`UPDATE student_access .+ WHERE student_id = \$1 AND version = \$4`).
		WithArgs(studentID, false, patch.RestrictedSince, int64(3)).
		WillReturnRows(pgxmock.NewRows(accessCols).
			AddRow(uuid.New(), studentID, false, &since, int64(4), since, since))

	state, err := repo.Update(context.Background(), studentID, patch, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), state.Version)
	assert.False(t, state.HasFullAccess)
	assert.True(t, state.Consistent())
}

func TestAccessRepository_Update_StaleVersion(t *testing.T) {
	mock := newMock(t)
	repo := NewAccessRepository(mock)
	studentID := uuid.New()
	patch := model.AccessPatch{HasFullAccess: true}

	mock.ExpectQuery(`UPDATE student_access`).
		WithArgs(studentID, true, patch.RestrictedSince, int64(1)).
		WillReturnRows(pgxmock.NewRows(accessCols))

	_, err := repo.Update(context.Background(), studentID, patch, 1)
	require.ErrorIs(t, err, ErrConflict)
}

// --- store transactions ---

func TestStore_WithinTx_Commit(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	event := &model.AccessRestrictionEvent{
		StudentID:       uuid.New(),
		RestrictionType: model.RestrictionTypePartial,
		Reason:          model.ReasonOverdueBeyondGrace,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO access_restriction_history`).
		WithArgs(event.StudentID, "partial", model.ReasonOverdueBeyondGrace).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), time.Now()))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx AccessStore) error {
		return tx.AppendRestrictionEvent(context.Background(), event)
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx_RollbackOnError(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	studentID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE student_access`).
		WithArgs(studentID, true, (*time.Time)(nil), int64(2)).
		WillReturnRows(pgxmock.NewRows(accessCols))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx AccessStore) error {
		_, err := tx.UpdateAccessState(context.Background(), studentID, model.AccessPatch{HasFullAccess: true}, 2)
		return err
	})
	require.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- students ---

func TestStudentRepository_LinkTelegram(t *testing.T) {
	mock := newMock(t)
	repo := NewStudentRepository(mock)
	studentID := uuid.New()

	mock.ExpectExec(`UPDATE students SET telegram_chat_id = \$2`).
		WithArgs(studentID, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	found, err := repo.LinkTelegram(context.Background(), studentID, 42)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStudentRepository_GetByTelegramChatID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewStudentRepository(mock)

	mock.ExpectQuery(`FROM students WHERE telegram_chat_id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "full_name", "telegram_chat_id", "created_at"}))

	student, err := repo.GetByTelegramChatID(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, student)
}

func TestStudentRepository_LinkTelegram_KeepsExistingChat(t *testing.T) {
	mock := newMock(t)
	repo := NewStudentRepository(mock)
	studentID := uuid.New()

	mock.ExpectExec(`UPDATE students SET telegram_chat_id = \$2 WHERE id = \$1 AND \(telegram_chat_id IS NULL OR telegram_chat_id = \$2\)`).
		WithArgs(studentID, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(studentID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	found, err := repo.LinkTelegram(context.Background(), studentID, 42)
	require.ErrorIs(t, err, ErrStudentLinked)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepository_LinkTelegram_UnknownStudent(t *testing.T) {
	mock := newMock(t)
	repo := NewStudentRepository(mock)
	studentID := uuid.New()

	mock.ExpectExec(`UPDATE students`).
		WithArgs(studentID, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(studentID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	found, err := repo.LinkTelegram(context.Background(), studentID, 42)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStudentRepository_LinkTelegram_ChatTaken(t *testing.T) {
	mock := newMock(t)
	repo := NewStudentRepository(mock)
	studentID := uuid.New()

	mock.ExpectExec(`UPDATE students`).
		WithArgs(studentID, int64(42)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "students_telegram_chat_id_key"})

	found, err := repo.LinkTelegram(context.Background(), studentID, 42)
	require.ErrorIs(t, err, ErrChatLinked)
	assert.False(t, found)
}

// --- restriction history ---

func TestRestrictionRepository_ListByStudent(t *testing.T) {
	mock := newMock(t)
	repo := NewStore(mock).Restrictions()
	studentID := uuid.New()
	restrictedAt := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	restoredAt := restrictedAt.AddDate(0, 0, 10)

	mock.ExpectQuery(`FROM access_restriction_history WHERE student_id = \$1 ORDER BY created_at DESC`).
		WithArgs(studentID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "student_id", "restriction_type", "reason", "created_at"}).
			AddRow(uuid.New(), studentID, "none", model.ReasonPaymentRegularized, restoredAt).
			AddRow(uuid.New(), studentID, "partial", model.ReasonOverdueBeyondGrace, restrictedAt))

	events, err := repo.ListByStudent(context.Background(), studentID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.RestrictionTypeNone, events[0].RestrictionType)
	assert.Equal(t, model.RestrictionTypePartial, events[1].RestrictionType)
	assert.Equal(t, restrictedAt, events[1].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestrictionRepository_ListByStudent_Empty(t *testing.T) {
	mock := newMock(t)
	repo := NewRestrictionRepository(mock)
	studentID := uuid.New()

	mock.ExpectQuery(`FROM access_restriction_history`).
		WithArgs(studentID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "student_id", "restriction_type", "reason", "created_at"}))

	events, err := repo.ListByStudent(context.Background(), studentID)
	require.NoError(t, err)
	assert.Empty(t, events)
}
