package database

import (
	"context"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockBookingRepository) ListBookingsBySubject(ctx context.Context, subjectId string) ([]types.Booking, error) {
	args := m.Called(ctx, subjectId)
	if bookings, ok := args.Get(0).([]types.Booking); ok {
		return bookings, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockBookingRepository) GetBooking(ctx context.Context, id string) (types.Booking, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Booking), args.Error(1)
}
func (m *MockBookingRepository) CreateBooking(ctx context.Context, b types.Booking) (types.Booking, error) {
	args := m.Called(ctx, b)
	return args.Get(0).(types.Booking), args.Error(1)
}
func (m *MockBookingRepository) UpdateBookingStatus(ctx context.Context, id string, status types.BookingStatus, reason string) (types.Booking, error) {
	args := m.Called(ctx, id, status, reason)
	return args.Get(0).(types.Booking), args.Error(1)
}
