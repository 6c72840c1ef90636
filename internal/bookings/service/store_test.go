package service

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	bookingserrors "medislot/internal/bookings/errors"
	"medislot/pkg/config"
	mongotx "medislot/pkg/db/mongo"
	"medislot/pkg/logger"
	"medislot/pkg/model"
)

// ────────────────────────────────────────────────
// In-memory store with unique-index and abort semantics
// ────────────────────────────────────────────────

type txUndoKey struct{}

type undoLog struct {
	steps []func()
}

type memoryStore struct {
	mu       sync.Mutex
	slots    map[string]*model.Slot
	bookings map[string]*model.Booking
	actors   map[string]model.ActorSummary
	seq      int
	created  map[string]int

	// failMarkBooked, when set, is returned by MarkBooked after the booking insert.
	failMarkBooked error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		slots:    make(map[string]*model.Slot),
		bookings: make(map[string]*model.Booking),
		actors:   make(map[string]model.ActorSummary),
		created:  make(map[string]int),
	}
}

func (m *memoryStore) addSlot(id string, start time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[id] = &model.Slot{ID: id, StartAt: start, EndAt: start.Add(30 * time.Minute)}
}

func (m *memoryStore) addActor(a model.ActorSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actors[a.ID] = a
}

func (m *memoryStore) record(ctx context.Context, undo func()) {
	if log, ok := ctx.Value(txUndoKey{}).(*undoLog); ok {
		log.steps = append(log.steps, undo)
	}
}

func (m *memoryStore) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	log := &undoLog{}
	if err := fn(context.WithValue(ctx, txUndoKey{}, log)); err != nil {
		m.mu.Lock()
		for i := len(log.steps) - 1; i >= 0; i-- {
			log.steps[i]()
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// BookingRepository

func (m *memoryStore) Insert(ctx context.Context, booking *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bookings {
		if b.SlotID == booking.SlotID && b.Confirmed() {
			return bookingserrors.ErrSlotTaken
		}
	}

	m.seq++
	booking.ID = fmt.Sprintf("%024x", m.seq)
	stored := *booking
	m.bookings[booking.ID] = &stored
	m.created[booking.ID] = m.seq

	id := booking.ID
	m.record(ctx, func() { delete(m.bookings, id) })
	return nil
}

func (m *memoryStore) FindByID(_ context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memoryStore) FindConfirmedBySlot(_ context.Context, slotID string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bookings {
		if b.SlotID == slotID && b.Confirmed() {
			cp := *b
			return &cp, nil
		}
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *memoryStore) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok || !b.Confirmed() {
		return bookingserrors.ErrNotFound
	}
	b.Status = model.BookingStatusCancelled
	b.CancelledAt = &at

	m.record(ctx, func() {
		b.Status = model.BookingStatusConfirmed
		b.CancelledAt = nil
	})
	return nil
}

func (m *memoryStore) ListForActor(_ context.Context, actorID string) ([]*model.BookingView, error) {
	return m.list(func(b *model.Booking) bool { return b.ActorID == actorID }, false), nil
}

func (m *memoryStore) ListAll(_ context.Context) ([]*model.BookingView, error) {
	return m.list(func(*model.Booking) bool { return true }, true), nil
}

func (m *memoryStore) list(match func(*model.Booking) bool, withActor bool) []*model.BookingView {
	m.mu.Lock()
	defer m.mu.Unlock()

	var views []*model.BookingView
	for _, b := range m.bookings {
		if !match(b) {
			continue
		}
		view := &model.BookingView{Booking: *b}
		if s, ok := m.slots[b.SlotID]; ok {
			view.Slot = model.SlotWindow{StartAt: s.StartAt, EndAt: s.EndAt}
		}
		if withActor {
			if a, ok := m.actors[b.ActorID]; ok {
				actor := a
				view.Actor = &actor
			}
		}
		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return m.created[views[i].ID] > m.created[views[j].ID]
	})
	return views
}

// SlotStateRepository

func (m *memoryStore) FindSlot(_ context.Context, id string) (*model.Slot, error) {
	// Let concurrent reservations interleave between read and write.
	runtime.Gosched()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, bookingserrors.ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryStore) MarkBooked(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failMarkBooked != nil {
		return m.failMarkBooked
	}

	s, ok := m.slots[id]
	if !ok {
		return bookingserrors.ErrSlotNotFound
	}
	if s.IsBooked {
		return bookingserrors.ErrSlotTaken
	}
	s.IsBooked = true
	m.record(ctx, func() { s.IsBooked = false })
	return nil
}

func (m *memoryStore) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok || !s.IsBooked {
		return bookingserrors.ErrSlotStateDrift
	}
	s.IsBooked = false
	m.record(ctx, func() { s.IsBooked = true })
	return nil
}

// checkInvariant reports slots whose flag disagrees with their confirmed bookings.
func (m *memoryStore) checkInvariant() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	confirmed := make(map[string]int)
	for _, b := range m.bookings {
		if b.Confirmed() {
			confirmed[b.SlotID]++
		}
	}

	var violations []string
	for id, s := range m.slots {
		n := confirmed[id]
		if (s.IsBooked && n != 1) || (!s.IsBooked && n != 0) {
			violations = append(violations, fmt.Sprintf("slot %s: isBooked=%v confirmed=%d", id, s.IsBooked, n))
		}
	}
	return violations
}

func newTestConfig() *config.Config {
	log := logger.New(logger.Config{
		Level:     "error",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	return &config.Config{
		Log:          log,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}
