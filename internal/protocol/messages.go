// Package protocol defines the JSON envelopes exchanged over the booking
// status websocket.
package protocol

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
)

var ErrInvalidMessage = errors.New("invalid message format")

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
	SetStatus   *SetStatus   `json:"set_status,omitempty"`
}

type Subscribe struct {
	BookingId string `json:"booking_id"`
}

type Unsubscribe struct {
	BookingId string `json:"booking_id"`
}

type SetStatus struct {
	BookingId       string              `json:"booking_id"`
	Status          types.BookingStatus `json:"status"`
	RejectionReason string              `json:"rejection_reason,omitempty"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response     `json:"response,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// Notification carries exactly one event.
type Notification struct {
	StatusUpdate    *types.StatusUpdateEvent `json:"status_update,omitempty"`
	ConnectionStats *types.ConnectionStats   `json:"connection_stats,omitempty"`
	NewBooking      *types.NewBookingNotice  `json:"new_booking,omitempty"`
}

// Event is the closed set of payloads a notification can carry. Only the
// types declared in this package implement it.
type Event interface {
	event()
}

type StatusUpdate types.StatusUpdateEvent

type ConnectionStats types.ConnectionStats

type NewBooking types.NewBookingNotice

func (StatusUpdate) event()    {}
func (ConnectionStats) event() {}
func (NewBooking) event()      {}

// NewNotification wraps e in a server notification.
func NewNotification(e Event) *ServerMessage {
	n := &Notification{}
	switch ev := e.(type) {
	case StatusUpdate:
		v := types.StatusUpdateEvent(ev)
		n.StatusUpdate = &v
	case ConnectionStats:
		v := types.ConnectionStats(ev)
		n.ConnectionStats = &v
	case NewBooking:
		v := types.NewBookingNotice(ev)
		n.NewBooking = &v
	default:
		panic(fmt.Sprintf("protocol: unknown event type %T", e))
	}

	return &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: n,
	}
}

// Event returns the single event carried by n.
func (n *Notification) Event() (Event, error) {
	var (
		ev    Event
		count int
	)
	if n.StatusUpdate != nil {
		ev = StatusUpdate(*n.StatusUpdate)
		count++
	}
	if n.ConnectionStats != nil {
		ev = ConnectionStats(*n.ConnectionStats)
		count++
	}
	if n.NewBooking != nil {
		ev = NewBooking(*n.NewBooking)
		count++
	}

	if count != 1 {
		return nil, fmt.Errorf("%w: notification carries %d events", ErrInvalidMessage, count)
	}
	return ev, nil
}

func NoErrOK(id int, data any) *ServerMessage {
	return newResponse(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int) *ServerMessage {
	return newResponse(id, http.StatusAccepted, "", nil)
}

func ErrInvalidMessageFormat(id int) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, ErrInvalidMessage.Error(), nil)
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newResponse(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

// ErrResponse maps a domain error onto a response. Unknown errors become
// an internal error without exposing the cause.
func ErrResponse(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, types.ErrUnauthenticated):
		return newResponse(id, http.StatusUnauthorized, types.ErrUnauthenticated.Error(), nil)
	case errors.Is(err, types.ErrForbidden):
		return newResponse(id, http.StatusForbidden, types.ErrForbidden.Error(), nil)
	case errors.Is(err, types.ErrInvalidStatus):
		return newResponse(id, http.StatusBadRequest, types.ErrInvalidStatus.Error(), nil)
	case errors.Is(err, ErrInvalidMessage):
		return ErrInvalidMessageFormat(id)
	case errors.Is(err, types.ErrNotFound):
		return newResponse(id, http.StatusNotFound, types.ErrNotFound.Error(), nil)
	case errors.Is(err, types.ErrInvalidTransition):
		return newResponse(id, http.StatusConflict, types.ErrInvalidTransition.Error(), nil)
	case errors.Is(err, types.ErrRateLimited):
		return newResponse(id, http.StatusTooManyRequests, types.ErrRateLimited.Error(), nil)
	case errors.Is(err, types.ErrStoreUpdate):
		return newResponse(id, http.StatusInternalServerError, types.ErrStoreUpdate.Error(), nil)
	}
	return ErrInternalError(id)
}

func newResponse(id, code int, errMsg string, data any) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
