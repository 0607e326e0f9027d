package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/deadline"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval   = 15 * time.Second
	MinPollInterval       = 15 * time.Second
	MaxPollInterval       = 20 * time.Second
	DefaultRejectedWindow = 24 * time.Hour
)

// ReasonExpired is reported when a displayed booking no longer qualifies
// after a resync.
const ReasonExpired CloseReason = "expired"

// Observer is told what the status surface should show. Callbacks may run on
// the engine's and the manager's goroutines and must not call back into the
// engine synchronously.
type Observer interface {
	Show(b types.Booking)
	StatusChanged(ev types.StatusUpdateEvent)
	// Hide is called when the booking leaves the display. For
	// ReasonRejected the caller offers a new submission.
	Hide(bookingId string, reason CloseReason)
}

type EngineOptions struct {
	PollInterval   time.Duration
	RejectedWindow time.Duration
}

func (o EngineOptions) withDefaults() EngineOptions {
	switch {
	case o.PollInterval <= 0:
		o.PollInterval = DefaultPollInterval
	case o.PollInterval < MinPollInterval:
		o.PollInterval = MinPollInterval
	case o.PollInterval > MaxPollInterval:
		o.PollInterval = MaxPollInterval
	}
	if o.RejectedWindow <= 0 {
		o.RejectedWindow = DefaultRejectedWindow
	}
	return o
}

// Engine recovers the subject's active booking on start, keeps a manager
// open for it and polls the store as a fallback for missed pushes. Pushed
// and polled statuses go through the pool's StatusReducer.
type Engine struct {
	log       zerolog.Logger
	fetcher   Fetcher
	pool      *Pool
	observer  Observer
	subjectId string
	opts      EngineOptions

	mu       sync.Mutex
	active   *types.Booking
	manager  *Manager
	pollOnly bool
	running  bool
	stop     chan struct{}
	loopDone chan struct{}
}

func NewEngine(logger zerolog.Logger, fetcher Fetcher, pool *Pool, observer Observer, subjectId string, opts EngineOptions) *Engine {
	return &Engine{
		log:       logger.With().Str("component", "reconciler").Str("subject_id", subjectId).Logger(),
		fetcher:   fetcher,
		pool:      pool,
		observer:  observer,
		subjectId: subjectId,
		opts:      opts.withDefaults(),
	}
}

// Select returns the most recent booking that should be on display at now:
// pending, approved before its auto-close instant, or rejected less than
// rejectedWindow ago.
func Select(bookings []types.Booking, now time.Time, calc *deadline.Calculator, rejectedWindow time.Duration) (types.Booking, bool) {
	sorted := make([]types.Booking, len(bookings))
	copy(sorted, bookings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	for _, b := range sorted {
		switch b.Status {
		case types.StatusPending:
			return b, true
		case types.StatusApproved:
			schedule, err := calc.ForBooking(b)
			if err == nil && now.Before(schedule.AutoCloseAt) {
				return b, true
			}
		case types.StatusRejected:
			if now.Before(b.UpdatedAt.Add(rejectedWindow)) {
				return b, true
			}
		}
	}
	return types.Booking{}, false
}

// Start recovers the active booking, if any, and begins reconciling it. The
// engine keeps running until the booking closes, Dismiss or Stop is called,
// or ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if running {
		return errors.New("reconciler already running")
	}

	b, ok, err := e.recover(ctx)
	if err != nil || !ok {
		return err
	}
	return e.attach(ctx, b, true)
}

// Resync tears reconciliation down and repeats recovery. The surface is only
// shown again if a different booking now qualifies. Channel reconnects made
// by the engine itself resync without tearing down.
func (e *Engine) Resync(ctx context.Context) error {
	prevId, wasVisible := e.teardown()

	b, ok, err := e.recover(ctx)
	if err != nil {
		if wasVisible {
			e.observer.Hide(prevId, ReasonTransport)
		}
		return err
	}

	switch {
	case !ok:
		if wasVisible {
			e.reducer().Forget(prevId)
			e.observer.Hide(prevId, ReasonExpired)
		}
		return nil
	case wasVisible && b.Id != prevId:
		e.reducer().Forget(prevId)
		e.observer.Hide(prevId, ReasonExpired)
	}

	show := !wasVisible || b.Id != prevId
	if !show {
		ev := types.NewStatusUpdateEvent(b, e.now())
		if e.reducer().Apply(ev) {
			e.observer.StatusChanged(ev)
		}
	}
	return e.attach(ctx, b, show)
}

func (e *Engine) recover(ctx context.Context) (types.Booking, bool, error) {
	bookings, err := e.fetcher.ListBookings(ctx)
	if err != nil {
		return types.Booking{}, false, fmt.Errorf("fetch bookings: %w", err)
	}

	b, ok := Select(bookings, e.now(), e.pool.Options().Calculator, e.opts.RejectedWindow)
	if !ok {
		e.log.Debug().Int("bookings", len(bookings)).Msg("no booking to display")
	}
	return b, ok, nil
}

func (e *Engine) attach(ctx context.Context, b types.Booking, show bool) error {
	if show {
		e.observer.Show(b)
	}

	ev := types.NewStatusUpdateEvent(b, e.now())
	if b.Status == types.StatusRejected {
		e.observer.Hide(b.Id, ReasonRejected)
		return nil
	}
	e.reducer().Apply(ev)

	target := DialTarget{BookingId: b.Id, SubjectId: e.subjectId}
	m, err := e.pool.Open(ctx, target, e.observer.StatusChanged)
	pollOnly := false
	switch {
	case err == nil:
		m.Resume(ev)
	case errors.Is(err, types.ErrTransport), errors.Is(err, types.ErrCapacity):
		e.log.Warn().Err(err).Str("booking_id", b.Id).Msg("push unavailable, polling only")
		m = nil
		pollOnly = true
	default:
		e.reducer().Forget(b.Id)
		e.observer.Hide(b.Id, ReasonTransport)
		return err
	}

	stop := make(chan struct{})
	loopDone := make(chan struct{})

	e.mu.Lock()
	e.active = &b
	e.manager = m
	e.pollOnly = pollOnly
	e.running = true
	e.stop = stop
	e.loopDone = loopDone
	e.mu.Unlock()

	go e.run(ctx, m, stop, loopDone)

	e.log.Info().
		Str("booking_id", b.Id).
		Str("status", string(b.Status)).
		Bool("poll_only", pollOnly).
		Msg("reconciling booking")
	return nil
}

func (e *Engine) run(ctx context.Context, m *Manager, stop <-chan struct{}, loopDone chan<- struct{}) {
	defer close(loopDone)

	ticker := e.pool.Options().Clock.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	var managerDone <-chan struct{}
	if m != nil {
		managerDone = m.Done()
	}

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := e.Poll(ctx); err != nil {
				e.log.Warn().Err(err).Msg("poll failed")
			}
		case <-managerDone:
			managerDone = nil
			if reason := m.Reason(); reason != ReasonTransport {
				e.finish(reason)
				return
			}
			if m = e.reconnect(ctx, stop); m != nil {
				managerDone = m.Done()
				e.resyncChannel(ctx, m)
			}
			select {
			case <-stop:
				// resync finished or replaced this session
				return
			default:
			}
		}
	}
}

// reconnect reopens the channel of the active booking after it dropped. The
// pool retries with backoff; once those attempts are spent the engine stays
// in poll-only mode. Polls keep running on the reducer path meanwhile.
func (e *Engine) reconnect(ctx context.Context, stop <-chan struct{}) *Manager {
	bookingId, ok := e.degrade()
	if !ok {
		return nil
	}

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-rctx.Done():
		}
	}()

	m, err := e.pool.Open(rctx, DialTarget{BookingId: bookingId, SubjectId: e.subjectId}, e.observer.StatusChanged)
	if err != nil {
		e.log.Warn().Err(err).Str("booking_id", bookingId).Msg("reconnect failed, polling only")
		return nil
	}

	e.mu.Lock()
	if !e.running || e.stop != stop {
		e.mu.Unlock()
		m.Close()
		return nil
	}
	e.manager = m
	e.pollOnly = false
	e.mu.Unlock()

	e.log.Info().Str("booking_id", bookingId).Msg("channel reconnected")
	return m
}

// resyncChannel re-runs recovery on a reconnected channel. Changes missed
// while it was down are applied through m; a booking that no longer
// qualifies is hidden and the one that does, if any, is attached. It runs on
// the run loop, so unlike Resync it never waits for the loop.
func (e *Engine) resyncChannel(ctx context.Context, m *Manager) {
	b, ok, err := e.recover(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("resync after reconnect failed")
		return
	}

	if !ok || b.Id != m.BookingId() {
		e.finish(ReasonExpired)
		if ok {
			if err := e.attach(ctx, b, true); err != nil {
				e.log.Warn().Err(err).Str("booking_id", b.Id).Msg("attach after resync failed")
			}
		}
		return
	}

	ev := types.NewStatusUpdateEvent(b, e.now())
	if !m.Apply(ev) {
		m.Resume(ev)
	}
}

// Poll re-fetches the active booking and applies its status when it differs
// from the last one applied. It is what the fallback ticker runs.
func (e *Engine) Poll(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	bookingId := e.active.Id
	m := e.manager
	pollOnly := e.pollOnly
	e.mu.Unlock()

	bookings, err := e.fetcher.ListBookings(ctx)
	if err != nil {
		return fmt.Errorf("fetch bookings: %w", err)
	}

	var current *types.Booking
	for i := range bookings {
		if bookings[i].Id == bookingId {
			current = &bookings[i]
			break
		}
	}
	if current == nil {
		e.log.Debug().Str("booking_id", bookingId).Msg("active booking missing from poll")
		return nil
	}

	now := e.now()
	ev := types.NewStatusUpdateEvent(*current, now)
	if m != nil && !pollOnly {
		m.Apply(ev)
		return nil
	}

	if e.reducer().Apply(ev) {
		e.observer.StatusChanged(ev)
	}
	switch current.Status {
	case types.StatusRejected:
		e.finish(ReasonRejected)
	case types.StatusApproved:
		schedule, err := e.pool.Options().Calculator.ForBooking(*current)
		if err == nil && !now.Before(schedule.AutoCloseAt) {
			e.finish(ReasonAutoClosed)
		}
	}
	return nil
}

// degrade drops the lost manager and switches polls to the reducer path.
func (e *Engine) degrade() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return "", false
	}
	e.manager = nil
	e.pollOnly = true
	e.log.Warn().Str("booking_id", e.active.Id).Msg("channel lost")
	return e.active.Id, true
}

// finish ends reconciliation of the active booking and hides it. It does
// not wait for the run loop, which may be its caller.
func (e *Engine) finish(reason CloseReason) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	bookingId := e.active.Id
	m := e.manager
	close(e.stop)
	e.running = false
	e.active = nil
	e.manager = nil
	e.pollOnly = false
	e.mu.Unlock()

	if m != nil {
		m.Close()
	}
	e.reducer().Forget(bookingId)
	e.observer.Hide(bookingId, reason)

	e.log.Info().Str("booking_id", bookingId).Str("reason", string(reason)).Msg("booking closed")
}

// teardown stops the run loop and closes the manager, returning the id of the
// booking that was displayed.
func (e *Engine) teardown() (string, bool) {
	e.mu.Lock()
	var bookingId string
	visible := e.active != nil
	if visible {
		bookingId = e.active.Id
	}
	if e.running {
		close(e.stop)
		e.running = false
	}
	m := e.manager
	loopDone := e.loopDone
	e.active = nil
	e.manager = nil
	e.pollOnly = false
	e.loopDone = nil
	e.mu.Unlock()

	if m != nil {
		m.Close()
	}
	if loopDone != nil {
		<-loopDone
	}
	return bookingId, visible
}

// Dismiss closes the displayed booking on the user's request.
func (e *Engine) Dismiss() {
	bookingId, visible := e.teardown()
	if !visible {
		return
	}
	e.reducer().Forget(bookingId)
	e.observer.Hide(bookingId, ReasonDismissed)
}

// Stop ends reconciliation without hiding anything.
func (e *Engine) Stop() {
	e.teardown()
}

func (e *Engine) Visible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

func (e *Engine) PollOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pollOnly
}

func (e *Engine) Active() (types.Booking, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return types.Booking{}, false
	}
	return *e.active, true
}

func (e *Engine) reducer() *StatusReducer {
	return e.pool.Options().Reducer
}

func (e *Engine) now() time.Time {
	return e.pool.Options().Clock.Now()
}
