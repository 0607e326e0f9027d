package types

import (
	"time"
)

type BookingStatus string

const (
	StatusPending  BookingStatus = "pending"
	StatusApproved BookingStatus = "approved"
	StatusRejected BookingStatus = "rejected"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s BookingStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether a booking in status from may be moved to
// status to. Re-setting the current status is allowed and is a no-op.
func CanTransition(from, to BookingStatus) bool {
	if from == to {
		return true
	}
	return from == StatusPending && to.Terminal()
}

type Role string

const (
	RoleSubject Role = "subject"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleSubject || r == RoleAdmin
}

// Identity is the authenticated principal bound to a connection or request.
type Identity struct {
	SubjectId string `json:"subject_id"`
	Role      Role   `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type Booking struct {
	Id              string        `json:"id"`
	SubjectId       string        `json:"subject_id"`
	ServiceName     string        `json:"service_name"`
	Date            string        `json:"date"`
	Time            string        `json:"time"`
	Status          BookingStatus `json:"status"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// AutoCloseSchedule is derived from booking data and never persisted.
type AutoCloseSchedule struct {
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	AutoCloseAt time.Time `json:"auto_close_at"`
}

type StatusUpdateEvent struct {
	BookingId       string        `json:"booking_id"`
	Status          BookingStatus `json:"status"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	ServiceName     string        `json:"service_name"`
	Date            string        `json:"date"`
	Time            string        `json:"time"`
	SubjectId       string        `json:"subject_id"`
	EmittedAt       time.Time     `json:"emitted_at"`
}

// NewStatusUpdateEvent builds the event announcing b's current status.
func NewStatusUpdateEvent(b Booking, emittedAt time.Time) StatusUpdateEvent {
	return StatusUpdateEvent{
		BookingId:       b.Id,
		Status:          b.Status,
		RejectionReason: b.RejectionReason,
		ServiceName:     b.ServiceName,
		Date:            b.Date,
		Time:            b.Time,
		SubjectId:       b.SubjectId,
		EmittedAt:       emittedAt,
	}
}

type ConnectionStats struct {
	Total        int       `json:"total"`
	AdminCount   int       `json:"admin_count"`
	SubjectCount int       `json:"subject_count"`
	Timestamp    time.Time `json:"timestamp"`
}

type NewBookingNotice struct {
	BookingId   string    `json:"booking_id"`
	SubjectId   string    `json:"subject_id"`
	ServiceName string    `json:"service_name"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewBookingNoticeFor(b Booking) NewBookingNotice {
	return NewBookingNotice{
		BookingId:   b.Id,
		SubjectId:   b.SubjectId,
		ServiceName: b.ServiceName,
		Date:        b.Date,
		Time:        b.Time,
		CreatedAt:   b.CreatedAt,
	}
}
