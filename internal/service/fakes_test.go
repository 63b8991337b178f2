package service

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/Freeeeeet/student_portal/internal/repository"
	"github.com/google/uuid"
)

// --- fake access store ---

type fakeAccessStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID][]*model.PaymentRecord
	states   map[uuid.UUID]*model.AccessState
	events   []*model.AccessRestrictionEvent
	writes   int

	// ошибки по имени операции: latest, get, insert, update, append, begin
	errs map[string]error
	// блокировать чтение состояния до отмены контекста
	blockGet bool
}

func newFakeAccessStore() *fakeAccessStore {
	return &fakeAccessStore{
		payments: make(map[uuid.UUID][]*model.PaymentRecord),
		states:   make(map[uuid.UUID]*model.AccessState),
		errs:     make(map[string]error),
	}
}

func (f *fakeAccessStore) addPayment(p *model.PaymentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	f.payments[p.StudentID] = append(f.payments[p.StudentID], p)
}

func (f *fakeAccessStore) setErr(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

func (f *fakeAccessStore) state(studentID uuid.UUID) *model.AccessState {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[studentID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (f *fakeAccessStore) eventsFor(studentID uuid.UUID) []*model.AccessRestrictionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.AccessRestrictionEvent
	for _, e := range f.events {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeAccessStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeAccessStore) GetLatestPaymentRecord(_ context.Context, studentID uuid.UUID) (*model.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["latest"]; err != nil {
		return nil, err
	}

	var latest *model.PaymentRecord
	for _, p := range f.payments[studentID] {
		if latest == nil ||
			p.DueDate.After(latest.DueDate) ||
			(p.DueDate.Equal(latest.DueDate) && p.UpdatedAt.After(latest.UpdatedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeAccessStore) GetAccessState(ctx context.Context, studentID uuid.UUID) (*model.AccessState, error) {
	f.mu.Lock()
	block := f.blockGet
	err := f.errs["get"]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return f.state(studentID), nil
}

func (f *fakeAccessStore) InsertAccessState(_ context.Context, state *model.AccessState) (*model.AccessState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["insert"]; err != nil {
		return nil, err
	}
	if _, exists := f.states[state.StudentID]; exists {
		return nil, repository.ErrConflict
	}

	now := time.Now()
	cp := *state
	cp.ID = uuid.New()
	cp.Version = 1
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.states[state.StudentID] = &cp
	f.writes++

	out := cp
	return &out, nil
}

func (f *fakeAccessStore) UpdateAccessState(_ context.Context, studentID uuid.UUID, patch model.AccessPatch, expectedVersion int64) (*model.AccessState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["update"]; err != nil {
		return nil, err
	}

	current, ok := f.states[studentID]
	if !ok || current.Version != expectedVersion {
		return nil, repository.ErrConflict
	}

	current.HasFullAccess = patch.HasFullAccess
	current.RestrictedSince = patch.RestrictedSince
	current.Version++
	current.UpdatedAt = time.Now()
	f.writes++

	out := *current
	return &out, nil
}

func (f *fakeAccessStore) AppendRestrictionEvent(_ context.Context, event *model.AccessRestrictionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["append"]; err != nil {
		return err
	}

	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	cp := *event
	f.events = append(f.events, &cp)
	return nil
}

// WithinTx откатывает изменения fn при ошибке
func (f *fakeAccessStore) WithinTx(_ context.Context, fn func(tx repository.AccessStore) error) error {
	f.mu.Lock()
	if err := f.errs["begin"]; err != nil {
		f.mu.Unlock()
		return err
	}
	states := make(map[uuid.UUID]*model.AccessState, len(f.states))
	for k, v := range f.states {
		cp := *v
		states[k] = &cp
	}
	events := len(f.events)
	writes := f.writes
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.states = states
		f.events = f.events[:events]
		f.writes = writes
		f.mu.Unlock()
		return err
	}
	return nil
}

// --- fake notifier ---

type fakeNotifier struct {
	mu      sync.Mutex
	changes []*AccessChange
	err     error
}

func (n *fakeNotifier) NotifyAccessChanged(_ context.Context, change *AccessChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.changes)
}

// --- fake clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int {
	return &v
}
