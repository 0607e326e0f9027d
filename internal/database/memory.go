package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
)

// MemoryBookingRepository keeps bookings in process memory. It backs the
// development server and tests.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]types.Booking
	now      func() time.Time
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[string]types.Booking),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryBookingRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryBookingRepository) ListBookingsBySubject(ctx context.Context, subjectId string) ([]types.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var bookings []types.Booking
	for _, b := range m.bookings {
		if b.SubjectId == subjectId {
			bookings = append(bookings, b)
		}
	}

	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].Id > bookings[j].Id
		}
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
	return bookings, nil
}

func (m *MemoryBookingRepository) GetBooking(ctx context.Context, id string) (types.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return types.Booking{}, types.ErrNotFound
	}
	return b, nil
}

func (m *MemoryBookingRepository) CreateBooking(ctx context.Context, b types.Booking) (types.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bookings[b.Id]; ok {
		return types.Booking{}, fmt.Errorf("booking %q already exists", b.Id)
	}

	if b.Status == "" {
		b.Status = types.StatusPending
	}
	now := m.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	m.bookings[b.Id] = b
	return b, nil
}

func (m *MemoryBookingRepository) UpdateBookingStatus(ctx context.Context, id string, status types.BookingStatus, reason string) (types.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return types.Booking{}, types.ErrNotFound
	}

	if !types.CanTransition(b.Status, status) {
		return types.Booking{}, fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, b.Status, status)
	}
	if b.Status == status {
		return b, nil
	}

	b.Status = status
	b.RejectionReason = ""
	if status == types.StatusRejected {
		b.RejectionReason = reason
	}
	b.UpdatedAt = m.now()

	m.bookings[id] = b
	return b, nil
}
