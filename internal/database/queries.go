package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
)

const (
	dateLayout = "2006-01-02"

	bookingColumns = "id, subject_id, service_name, booking_date, time_label, status, rejection_reason, created_at, updated_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (types.Booking, error) {
	var (
		b      types.Booking
		date   time.Time
		reason sql.NullString
	)

	err := row.Scan(
		&b.Id,
		&b.SubjectId,
		&b.ServiceName,
		&date,
		&b.Time,
		&b.Status,
		&reason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return types.Booking{}, err
	}

	b.Date = date.Format(dateLayout)
	b.RejectionReason = reason.String
	return b, nil
}

func (db *PgBookingRepository) ListBookingsBySubject(ctx context.Context, subjectId string) ([]types.Booking, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings "+
			"WHERE subject_id = $1 ORDER BY created_at DESC",
		subjectId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []types.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}

func (db *PgBookingRepository) GetBooking(ctx context.Context, id string) (types.Booking, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = $1",
		id,
	)

	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Booking{}, types.ErrNotFound
	}
	return b, err
}

func (db *PgBookingRepository) CreateBooking(ctx context.Context, b types.Booking) (types.Booking, error) {
	if b.Status == "" {
		b.Status = types.StatusPending
	}
	now := time.Now().UTC()

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO bookings (id, subject_id, service_name, booking_date, time_label, status, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING "+bookingColumns,
		b.Id,
		b.SubjectId,
		b.ServiceName,
		b.Date,
		b.Time,
		b.Status,
		now,
	)

	return scanBooking(row)
}

func (db *PgBookingRepository) UpdateBookingStatus(ctx context.Context, id string, status types.BookingStatus, reason string) (types.Booking, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return types.Booking{}, err
	}
	defer tx.Rollback()

	current, err := scanBooking(tx.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = $1 FOR UPDATE",
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Booking{}, types.ErrNotFound
	}
	if err != nil {
		return types.Booking{}, err
	}

	if !types.CanTransition(current.Status, status) {
		return types.Booking{}, fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, current.Status, status)
	}
	if current.Status == status {
		return current, tx.Commit()
	}

	var rejection sql.NullString
	if status == types.StatusRejected && reason != "" {
		rejection = sql.NullString{String: reason, Valid: true}
	}

	updated, err := scanBooking(tx.QueryRowContext(ctx,
		"UPDATE bookings SET status = $2, rejection_reason = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING "+bookingColumns,
		id,
		status,
		rejection,
		time.Now().UTC(),
	))
	if err != nil {
		return types.Booking{}, err
	}

	return updated, tx.Commit()
}
