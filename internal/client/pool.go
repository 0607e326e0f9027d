package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/rs/zerolog"
)

const DefaultCapacity = 1000

// Pool hands out one Manager per booking and caps how many may be open at
// once.
type Pool struct {
	log      zerolog.Logger
	dialer   Dialer
	opts     ManagerOptions
	capacity int

	mu       sync.Mutex
	managers map[string]*Manager
}

func NewPool(dialer Dialer, logger zerolog.Logger, capacity int, opts ManagerOptions) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		log:      logger.With().Str("component", "pool").Logger(),
		dialer:   dialer,
		opts:     opts.withDefaults(),
		capacity: capacity,
		managers: make(map[string]*Manager),
	}
}

// Open returns a connected manager for target.BookingId, reusing an open one.
// Listeners are registered before the channel is opened. When the pool is
// full it fails with types.ErrCapacity before anything is dialed.
func (p *Pool) Open(ctx context.Context, target DialTarget, listeners ...StatusListener) (*Manager, error) {
	p.mu.Lock()
	if m, ok := p.managers[target.BookingId]; ok {
		p.mu.Unlock()
		for _, fn := range listeners {
			m.OnStatus(fn)
		}
		return m, nil
	}
	if len(p.managers) >= p.capacity {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %d managers open", types.ErrCapacity, p.capacity)
	}

	m := NewManager(target, p.dialer, p.log, p.opts)
	m.release = func() { p.remove(target.BookingId, m) }
	for _, fn := range listeners {
		m.OnStatus(fn)
	}
	p.managers[target.BookingId] = m
	p.mu.Unlock()

	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Pool) remove(bookingId string, m *Manager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.managers[bookingId] == m {
		delete(p.managers, bookingId)
	}
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.managers)
}

func (p *Pool) Options() ManagerOptions {
	return p.opts
}

func (p *Pool) Get(bookingId string) (*Manager, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.managers[bookingId]
	return m, ok
}

// Close closes every open manager.
func (p *Pool) Close() {
	p.mu.Lock()
	managers := make([]*Manager, 0, len(p.managers))
	for _, m := range p.managers {
		managers = append(managers, m)
	}
	p.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
}
