package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/clock"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/deadline"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 500 * time.Millisecond

	unsubscribeWait = 2 * time.Second
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateListening
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateListening:
		return "listening"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type CloseReason string

const (
	ReasonRejected   CloseReason = "rejected"
	ReasonAutoClosed CloseReason = "auto_closed"
	ReasonDismissed  CloseReason = "dismissed"
	ReasonTransport  CloseReason = "transport"
)

// StatusListener observes status changes applied by a manager. It must not
// call Close on the manager it is registered with.
type StatusListener func(types.StatusUpdateEvent)

type ManagerOptions struct {
	MaxAttempts int
	BackoffBase time.Duration
	Clock       clock.Clock
	Calculator  *deadline.Calculator
	Reducer     *StatusReducer
}

func (o ManagerOptions) withDefaults() ManagerOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Calculator == nil {
		o.Calculator = deadline.NewCalculator(nil, deadline.DefaultGraceMinutes)
	}
	if o.Reducer == nil {
		o.Reducer = NewStatusReducer()
	}
	return o
}

// Manager owns the channel and auto-close timer of a single booking.
type Manager struct {
	target DialTarget
	dialer Dialer
	opts   ManagerOptions
	log    zerolog.Logger

	mu       sync.Mutex
	state    State
	ch       Channel
	timer    clock.Timer
	timerGen uint64
	reason   CloseReason
	release  func()

	// notifyLock is held while listeners run so Close can wait out an
	// in-flight delivery before detaching them.
	notifyLock sync.Mutex
	listeners  map[int]StatusListener
	nextListen int

	listenDone chan struct{}
	done       chan struct{}
}

func NewManager(target DialTarget, dialer Dialer, logger zerolog.Logger, opts ManagerOptions) *Manager {
	return &Manager{
		target:    target,
		dialer:    dialer,
		opts:      opts.withDefaults(),
		log:       logger.With().Str("component", "manager").Str("booking_id", target.BookingId).Logger(),
		state:     StateIdle,
		listeners: make(map[int]StatusListener),
		done:      make(chan struct{}),
	}
}

func (m *Manager) BookingId() string {
	return m.target.BookingId
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed once the manager reaches the closed state.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Reason returns why the manager closed, or "" while it is open.
func (m *Manager) Reason() CloseReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// OnStatus registers fn for status changes of the managed booking and returns
// a function removing it.
func (m *Manager) OnStatus(fn StatusListener) func() {
	m.notifyLock.Lock()
	defer m.notifyLock.Unlock()

	id := m.nextListen
	m.nextListen++
	m.listeners[id] = fn
	return func() {
		m.notifyLock.Lock()
		defer m.notifyLock.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) ActiveListeners() int {
	m.notifyLock.Lock()
	defer m.notifyLock.Unlock()
	return len(m.listeners)
}

func (m *Manager) ArmedTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		return 1
	}
	return 0
}

// Connect opens the channel and joins the booking room. It makes at most
// MaxAttempts attempts with exponential backoff; on failure the manager is
// closed and the error wraps types.ErrTransport. Authentication and
// authorization failures are returned at once.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("connect in state %s", state)
	}
	m.state = StateConnecting
	m.mu.Unlock()

	ch, err := m.open(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("could not open channel")
		m.close(ReasonTransport, false)
		return err
	}

	m.mu.Lock()
	if m.state >= StateClosing {
		// Close ran while connecting and has already released the manager.
		m.mu.Unlock()
		ch.Close()
		return fmt.Errorf("%w: manager closed while connecting", types.ErrTransport)
	}
	m.ch = ch
	m.state = StateListening
	m.listenDone = make(chan struct{})
	m.mu.Unlock()

	go m.listen(ch)

	m.log.Debug().Msg("listening")
	return nil
}

func (m *Manager) open(ctx context.Context) (Channel, error) {
	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := m.opts.BackoffBase << (attempt - 2)
			select {
			case <-m.opts.Clock.After(wait):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", types.ErrTransport, ctx.Err())
			}
		}

		ch, err := m.dialer.Dial(ctx, m.target)
		if err == nil {
			m.setState(StateConnected)
			if err = ch.Subscribe(ctx, m.target.BookingId); err == nil {
				return ch, nil
			}
			ch.Close()
			m.setState(StateConnecting)
		}

		if errors.Is(err, types.ErrUnauthenticated) || errors.Is(err, types.ErrForbidden) {
			return nil, err
		}
		lastErr = err
		m.log.Debug().Err(err).Int("attempt", attempt).Msg("channel attempt failed")
	}

	return nil, fmt.Errorf("%w: %d attempts: %w", types.ErrTransport, m.opts.MaxAttempts, lastErr)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state < StateClosing {
		m.state = s
	}
}

func (m *Manager) listen(ch Channel) {
	defer close(m.listenDone)

	for ev := range ch.Events() {
		if ev.BookingId != m.target.BookingId {
			continue
		}
		if m.apply(ev) {
			return
		}
	}

	// channel dropped underneath us
	if m.State() == StateListening {
		m.log.Warn().Msg("channel lost")
		m.close(ReasonTransport, true)
	}
}

// Apply feeds ev through the reducer. It reports whether the status changed
// and was delivered to listeners.
func (m *Manager) Apply(ev types.StatusUpdateEvent) bool {
	if ev.BookingId != m.target.BookingId {
		return false
	}

	m.notifyLock.Lock()
	changed := m.deliver(ev)
	m.notifyLock.Unlock()
	if changed {
		m.afterChange(ev, false)
	}
	return changed
}

// Resume applies the terminal handling of a status that is already on
// display, without notifying listeners. An approved booking gets its
// auto-close timer armed. It does nothing unless ev matches the last status
// the reducer applied.
func (m *Manager) Resume(ev types.StatusUpdateEvent) {
	if ev.BookingId != m.target.BookingId || m.State() != StateListening {
		return
	}
	if last, ok := m.opts.Reducer.Last(ev.BookingId); !ok || last != ev.Status {
		return
	}
	m.afterChange(ev, false)
}

// apply handles ev on the listen goroutine and reports whether the manager
// closed as a result.
func (m *Manager) apply(ev types.StatusUpdateEvent) bool {
	m.notifyLock.Lock()
	changed := m.deliver(ev)
	m.notifyLock.Unlock()
	if !changed {
		return false
	}
	return m.afterChange(ev, true)
}

// deliver runs with notifyLock held.
func (m *Manager) deliver(ev types.StatusUpdateEvent) bool {
	if m.State() != StateListening {
		return false
	}
	if !m.opts.Reducer.Apply(ev) {
		return false
	}
	for _, fn := range m.listeners {
		fn(ev)
	}
	return true
}

func (m *Manager) afterChange(ev types.StatusUpdateEvent, fromListener bool) bool {
	switch ev.Status {
	case types.StatusRejected:
		m.close(ReasonRejected, fromListener)
		return true
	case types.StatusApproved:
		schedule, err := m.opts.Calculator.ForBooking(types.Booking{
			ServiceName: ev.ServiceName,
			Date:        ev.Date,
			Time:        ev.Time,
		})
		if err != nil {
			m.log.Warn().Err(err).Msg("cannot compute auto-close, keeping channel open")
			return false
		}
		return m.arm(schedule.AutoCloseAt, fromListener)
	}
	return false
}

// arm replaces any armed timer with one closing the manager at at. If at has
// already passed the manager closes now.
func (m *Manager) arm(at time.Time, fromListener bool) bool {
	m.mu.Lock()
	if m.state != StateListening {
		m.mu.Unlock()
		return false
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	d := at.Sub(m.opts.Clock.Now())
	if d <= 0 {
		m.mu.Unlock()
		m.close(ReasonAutoClosed, fromListener)
		return true
	}

	m.timerGen++
	gen := m.timerGen
	m.timer = m.opts.Clock.AfterFunc(d, func() { m.expire(gen) })
	m.mu.Unlock()

	m.log.Debug().Time("auto_close_at", at).Msg("auto-close armed")
	return false
}

func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	stale := gen != m.timerGen || m.state != StateListening
	if !stale {
		m.timer = nil
	}
	m.mu.Unlock()

	if !stale {
		m.close(ReasonAutoClosed, false)
	}
}

// Close leaves the booking room, detaches every listener, cancels the timer
// and releases the channel. Calling it again is a no-op.
func (m *Manager) Close() {
	m.close(ReasonDismissed, false)
}

func (m *Manager) close(reason CloseReason, fromListener bool) {
	m.mu.Lock()
	if m.state >= StateClosing {
		m.mu.Unlock()
		return
	}
	m.state = StateClosing
	m.reason = reason
	m.timerGen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	ch := m.ch
	m.ch = nil
	listenDone := m.listenDone
	m.mu.Unlock()

	m.notifyLock.Lock()
	clear(m.listeners)
	m.notifyLock.Unlock()

	if ch != nil {
		if reason != ReasonTransport {
			ctx, cancel := context.WithTimeout(context.Background(), unsubscribeWait)
			if err := ch.Unsubscribe(ctx, m.target.BookingId); err != nil {
				m.log.Debug().Err(err).Msg("unsubscribe failed")
			}
			cancel()
		}
		ch.Close()
	}
	if listenDone != nil && !fromListener {
		<-listenDone
	}

	m.mu.Lock()
	m.state = StateClosed
	release := m.release
	m.release = nil
	m.mu.Unlock()

	if release != nil {
		release()
	}
	close(m.done)

	m.log.Debug().Str("reason", string(reason)).Msg("closed")
}
