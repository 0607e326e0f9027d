package client

import (
	"sync"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
)

// StatusReducer remembers the last applied status per booking. Pushed events
// and polled snapshots both go through Apply, so a status seen on one path is
// not applied again when it arrives on the other.
type StatusReducer struct {
	mu   sync.Mutex
	last map[string]types.BookingStatus
}

func NewStatusReducer() *StatusReducer {
	return &StatusReducer{last: make(map[string]types.BookingStatus)}
}

// Apply records ev and reports whether it moved the booking forward. A status
// equal to the last one applied, or one the booking cannot move to from it
// (pending after approved, for example), is ignored.
func (r *StatusReducer) Apply(ev types.StatusUpdateEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.last[ev.BookingId]; ok && (prev == ev.Status || !types.CanTransition(prev, ev.Status)) {
		return false
	}
	r.last[ev.BookingId] = ev.Status
	return true
}

func (r *StatusReducer) Last(bookingId string) (types.BookingStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.last[bookingId]
	return s, ok
}

func (r *StatusReducer) Forget(bookingId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, bookingId)
}
