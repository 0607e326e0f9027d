package database

import (
	"context"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
)

// BookingRepository is the authoritative booking store.
//
// UpdateBookingStatus enforces the booking transitions: re-setting the
// current status returns the stored booking unchanged, any other move out of
// a terminal status fails with types.ErrInvalidTransition. A missing booking
// is reported as types.ErrNotFound.
type BookingRepository interface {
	Ping(ctx context.Context) error
	ListBookingsBySubject(ctx context.Context, subjectId string) ([]types.Booking, error)
	GetBooking(ctx context.Context, id string) (types.Booking, error)
	CreateBooking(ctx context.Context, b types.Booking) (types.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status types.BookingStatus, reason string) (types.Booking, error)
}
