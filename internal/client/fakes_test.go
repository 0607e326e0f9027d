package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/clock"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/deadline"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/stretchr/testify/require"
)

var errRefused = errors.New("connection refused")

type fakeChannel struct {
	mu           sync.Mutex
	events       chan types.StatusUpdateEvent
	subscribed   []string
	unsubscribed []string
	closed       bool
	subscribeErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan types.StatusUpdateEvent, 8)}
}

func (c *fakeChannel) Subscribe(ctx context.Context, bookingId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, bookingId)
	return c.subscribeErr
}

func (c *fakeChannel) Unsubscribe(ctx context.Context, bookingId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, bookingId)
	return nil
}

func (c *fakeChannel) Events() <-chan types.StatusUpdateEvent {
	return c.events
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeChannel) push(ev types.StatusUpdateEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.events <- ev
	}
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) unsubscribes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribed...)
}

// fakeDialer fails the first failures dials with err and then hands out
// fake channels. With failFrom set, every dial from that call on fails too.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	failFrom int
	err      error
	calls    int
	channels []*fakeChannel
}

func (d *fakeDialer) Dial(ctx context.Context, target DialTarget) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if d.calls <= d.failures || (d.failFrom > 0 && d.calls >= d.failFrom) {
		return nil, d.err
	}
	ch := newFakeChannel()
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) last() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

type fakeFetcher struct {
	mu       sync.Mutex
	bookings []types.Booking
	err      error
	calls    int
}

func (f *fakeFetcher) ListBookings(ctx context.Context) ([]types.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]types.Booking(nil), f.bookings...), nil
}

func (f *fakeFetcher) setStatus(bookingId string, status types.BookingStatus, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.bookings {
		if f.bookings[i].Id == bookingId {
			f.bookings[i].Status = status
			f.bookings[i].UpdatedAt = updatedAt
		}
	}
}

type hidden struct {
	bookingId string
	reason    CloseReason
}

type recordingObserver struct {
	mu      sync.Mutex
	shown   []types.Booking
	changes []types.StatusUpdateEvent
	hides   []hidden
}

func (o *recordingObserver) Show(b types.Booking) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shown = append(o.shown, b)
}

func (o *recordingObserver) StatusChanged(ev types.StatusUpdateEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, ev)
}

func (o *recordingObserver) Hide(bookingId string, reason CloseReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hides = append(o.hides, hidden{bookingId: bookingId, reason: reason})
}

func (o *recordingObserver) Shown() []types.Booking {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.Booking(nil), o.shown...)
}

func (o *recordingObserver) Changes() []types.StatusUpdateEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.StatusUpdateEvent(nil), o.changes...)
}

func (o *recordingObserver) Hides() []hidden {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]hidden(nil), o.hides...)
}

func kolkata(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

// testBooking is a বিশেষ অর্চনা at সকাল ৯:০০ on 2025-01-10, auto-closing at
// 10:05 Asia/Kolkata.
func testBooking(t *testing.T, id string, status types.BookingStatus) types.Booking {
	created := time.Date(2025, 1, 9, 12, 0, 0, 0, kolkata(t))
	return types.Booking{
		Id:          id,
		SubjectId:   "u1",
		ServiceName: "বিশেষ অর্চনা",
		Date:        "2025-01-10",
		Time:        "সকাল ৯:০০",
		Status:      status,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func testEvent(t *testing.T, id string, status types.BookingStatus) types.StatusUpdateEvent {
	return types.NewStatusUpdateEvent(testBooking(t, id, status), time.Now())
}

func newTestOptions(t *testing.T, clk clock.Clock) ManagerOptions {
	return ManagerOptions{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		Clock:       clk,
		Calculator:  deadline.NewCalculator(kolkata(t), 5),
		Reducer:     NewStatusReducer(),
	}
}

// newFakeClock starts at 08:00 on the day of testBooking.
func newFakeClock(t *testing.T) *clock.Fake {
	return clock.NewFake(time.Date(2025, 1, 10, 8, 0, 0, 0, kolkata(t)))
}

// gatedDialer blocks in Dial until release is closed.
type gatedDialer struct {
	entered chan struct{}
	release chan struct{}
	ch      *fakeChannel
}

func (d *gatedDialer) Dial(ctx context.Context, target DialTarget) (Channel, error) {
	close(d.entered)
	<-d.release
	d.ch = newFakeChannel()
	return d.ch, nil
}
