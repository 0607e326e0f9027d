package client

import (
	"context"
	"fmt"
	"testing"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/clock"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/testutil"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_CapacityExceeded(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, testutil.TestLogger(t), DefaultCapacity, newTestOptions(t, clock.Real()))
	t.Cleanup(p.Close)

	for i := 0; i < DefaultCapacity; i++ {
		_, err := p.Open(context.Background(), DialTarget{BookingId: fmt.Sprintf("b%d", i), SubjectId: "u1"})
		require.NoError(t, err)
	}
	require.Equal(t, DefaultCapacity, p.Len())

	m, err := p.Open(context.Background(), DialTarget{BookingId: "one-too-many", SubjectId: "u1"})
	assert.ErrorIs(t, err, types.ErrCapacity)
	assert.Nil(t, m)
	assert.Equal(t, DefaultCapacity, dialer.Calls(), "expected no dial beyond the cap")
	assert.Equal(t, DefaultCapacity, p.Len())
	_, ok := p.Get("one-too-many")
	assert.False(t, ok)
}

func TestPool_ReusesManagerPerBooking(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, testutil.TestLogger(t), 10, newTestOptions(t, clock.Real()))
	t.Cleanup(p.Close)

	first, err := p.Open(context.Background(), target)
	require.NoError(t, err)
	second, err := p.Open(context.Background(), target, func(types.StatusUpdateEvent) {})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dialer.Calls())
	assert.Equal(t, 1, first.ActiveListeners())
}

func TestPool_ReleasesSlots(t *testing.T) {
	t.Run("on close", func(t *testing.T) {
		p := NewPool(&fakeDialer{}, testutil.TestLogger(t), 1, newTestOptions(t, clock.Real()))
		t.Cleanup(p.Close)

		m, err := p.Open(context.Background(), target)
		require.NoError(t, err)
		_, err = p.Open(context.Background(), DialTarget{BookingId: "b2", SubjectId: "u1"})
		require.ErrorIs(t, err, types.ErrCapacity)

		m.Close()
		assert.Zero(t, p.Len())

		_, err = p.Open(context.Background(), DialTarget{BookingId: "b2", SubjectId: "u1"})
		assert.NoError(t, err)
	})

	t.Run("on failed connect", func(t *testing.T) {
		dialer := &fakeDialer{failures: 100, err: errRefused}
		p := NewPool(dialer, testutil.TestLogger(t), 1, newTestOptions(t, clock.Real()))

		_, err := p.Open(context.Background(), target)
		require.ErrorIs(t, err, types.ErrTransport)
		assert.Zero(t, p.Len())
	})
}

func TestPool_Close(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, testutil.TestLogger(t), 10, newTestOptions(t, clock.Real()))

	var managers []*Manager
	for i := 0; i < 3; i++ {
		m, err := p.Open(context.Background(), DialTarget{BookingId: fmt.Sprintf("b%d", i), SubjectId: "u1"})
		require.NoError(t, err)
		managers = append(managers, m)
	}

	p.Close()

	assert.Zero(t, p.Len())
	for _, m := range managers {
		assert.Equal(t, StateClosed, m.State())
	}
}

func TestPool_OpenLeavesManagerListening(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, testutil.TestLogger(t), 10, newTestOptions(t, clock.Real()))
	t.Cleanup(p.Close)

	m, err := p.Open(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, StateListening, m.State())
	assert.Equal(t, []string{"b1"}, dialer.last().subscribed)
	assert.False(t, dialer.last().isClosed())

	again, err := p.Open(context.Background(), target)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Equal(t, StateListening, again.State())
	assert.Equal(t, 1, p.Len())
}

func TestPool_CloseWhileConnecting(t *testing.T) {
	dialer := &gatedDialer{entered: make(chan struct{}), release: make(chan struct{})}
	p := NewPool(dialer, testutil.TestLogger(t), 10, newTestOptions(t, clock.Real()))

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Open(context.Background(), target)
		errCh <- err
	}()

	<-dialer.entered
	m, ok := p.Get("b1")
	require.True(t, ok)
	m.Close()
	close(dialer.release)

	err := <-errCh
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.Zero(t, p.Len())
	assert.Equal(t, StateClosed, m.State())
	assert.True(t, dialer.ch.isClosed(), "expected the late channel to be released")
}
