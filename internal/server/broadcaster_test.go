package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/database"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/protocol"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/testutil"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.StatusUpdateEvent
	err    error
}

func (p *recordingPublisher) PublishStatus(ctx context.Context, ev types.StatusUpdateEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []types.StatusUpdateEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.StatusUpdateEvent(nil), p.events...)
}

// stallingPublisher blocks until its context ends and records why.
type stallingPublisher struct {
	mu  sync.Mutex
	err error
}

func (p *stallingPublisher) PublishStatus(ctx context.Context, ev types.StatusUpdateEvent) error {
	<-ctx.Done()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = ctx.Err()
	return p.err
}

func (p *stallingPublisher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

var (
	testAdmin   = types.Identity{SubjectId: "admin-1", Role: types.RoleAdmin}
	testSubject = types.Identity{SubjectId: "u1", Role: types.RoleSubject}
)

func pendingBooking() types.Booking {
	return types.Booking{
		Id:          "b1",
		SubjectId:   "u1",
		ServiceName: "বিশেষ অর্চনা",
		Date:        "2025-01-10",
		Time:        "সকাল ৯:০০",
		Status:      types.StatusPending,
	}
}

func TestBroadcaster_SetStatus_Refused(t *testing.T) {
	tcases := []struct {
		name     string
		identity types.Identity
		cmd      SetStatusCommand
		storeErr error
		err      error
	}{
		{
			name:     "subject may not set status",
			identity: testSubject,
			cmd:      SetStatusCommand{BookingId: "b1", Status: types.StatusApproved},
			err:      types.ErrForbidden,
		},
		{
			name:     "pending is not a command target",
			identity: testAdmin,
			cmd:      SetStatusCommand{BookingId: "b1", Status: types.StatusPending},
			err:      types.ErrInvalidStatus,
		},
		{
			name:     "unknown status",
			identity: testAdmin,
			cmd:      SetStatusCommand{BookingId: "b1", Status: "cancelled"},
			err:      types.ErrInvalidStatus,
		},
		{
			name:     "missing booking id",
			identity: testAdmin,
			cmd:      SetStatusCommand{Status: types.StatusApproved},
			err:      protocol.ErrInvalidMessage,
		},
		{
			name:     "store failure",
			identity: testAdmin,
			cmd:      SetStatusCommand{BookingId: "b1", Status: types.StatusApproved},
			storeErr: errors.New("connection refused"),
			err:      types.ErrStoreUpdate,
		},
		{
			name:     "invalid transition from store",
			identity: testAdmin,
			cmd:      SetStatusCommand{BookingId: "b1", Status: types.StatusRejected},
			storeErr: types.ErrInvalidTransition,
			err:      types.ErrInvalidTransition,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &database.MockBookingRepository{}
			if tc.storeErr != nil {
				repo.On("UpdateBookingStatus", mock.Anything, tc.cmd.BookingId, tc.cmd.Status, tc.cmd.RejectionReason).
					Return(types.Booking{}, tc.storeErr).Once()
			}
			defer repo.AssertExpectations(t)

			su := newTestStats()
			s := newTestServer(t, su)
			listener := newTestClient(t, s, "c1", testSubject, 8)
			s.admit(listener)
			s.registry.Join("c1", types.BookingRoom("b1"))

			pub := &recordingPublisher{}
			b := NewBroadcaster(testutil.TestLogger(t), s, repo, su, true, pub)

			_, err := b.SetStatus(context.Background(), tc.identity, tc.cmd)
			assert.ErrorIs(t, err, tc.err)
			if tc.storeErr != nil {
				assert.ErrorIs(t, err, types.ErrStoreUpdate, "expected store errors to be wrapped")
			} else {
				repo.AssertNotCalled(t, "UpdateBookingStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}

			assert.Empty(t, statusUpdates(drain(listener)), "expected no event to be emitted")
			assert.Empty(t, pub.Events(), "expected nothing to be published")
		})
	}
}

func TestBroadcaster_SetStatus(t *testing.T) {
	tcases := []struct {
		name         string
		broadcastAll bool
		receivers    []ConnID
	}{
		{name: "broadcast to all connections", broadcastAll: true, receivers: []ConnID{"watcher", "owner", "bystander", "admin"}},
		{name: "rooms only", broadcastAll: false, receivers: []ConnID{"watcher", "owner"}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repo := database.NewMemoryBookingRepository()
			_, err := repo.CreateBooking(ctx, pendingBooking())
			require.NoError(t, err)

			su := newTestStats()
			s := newTestServer(t, su)
			clients := map[ConnID]*Client{
				"watcher":   newTestClient(t, s, "watcher", types.Identity{SubjectId: "u9", Role: types.RoleSubject}, 8),
				"owner":     newTestClient(t, s, "owner", testSubject, 8),
				"bystander": newTestClient(t, s, "bystander", types.Identity{SubjectId: "u2", Role: types.RoleSubject}, 8),
				"admin":     newTestClient(t, s, "admin", testAdmin, 8),
			}
			for _, c := range clients {
				s.admit(c)
			}
			s.registry.Join("watcher", types.BookingRoom("b1"))
			for _, c := range clients {
				drain(c)
			}

			pub := &recordingPublisher{err: errors.New("relay down")}
			b := NewBroadcaster(testutil.TestLogger(t), s, repo, su, tc.broadcastAll, pub)

			ev, err := b.SetStatus(ctx, testAdmin, SetStatusCommand{BookingId: "b1", Status: types.StatusRejected, RejectionReason: "date full"})
			require.NoError(t, err, "expected publisher failure not to fail the command")
			assert.Equal(t, types.StatusRejected, ev.Status)
			assert.Equal(t, "date full", ev.RejectionReason)
			assert.Equal(t, "u1", ev.SubjectId)
			assert.Equal(t, "বিশেষ অর্চনা", ev.ServiceName)

			for id, c := range clients {
				events := statusUpdates(drain(c))
				if containsConn(tc.receivers, id) {
					require.Len(t, events, 1, "expected %s to receive exactly one update", id)
					assert.Equal(t, ev, events[0])
				} else {
					assert.Empty(t, events, "expected %s to receive no update", id)
				}
			}

			assert.Equal(t, []types.StatusUpdateEvent{ev}, pub.Events())

			stored, err := repo.GetBooking(ctx, "b1")
			require.NoError(t, err)
			assert.Equal(t, types.StatusRejected, stored.Status)
		})
	}
}

func containsConn(ids []ConnID, id ConnID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestBroadcaster_NotifyNewBooking(t *testing.T) {
	su := newTestStats()
	s := newTestServer(t, su)
	admin := newTestClient(t, s, "admin", testAdmin, 8)
	subject := newTestClient(t, s, "subject", testSubject, 8)
	s.admit(admin)
	s.admit(subject)
	drain(admin)

	b := NewBroadcaster(testutil.TestLogger(t), s, database.NewMemoryBookingRepository(), su, true)
	n := b.NotifyNewBooking(pendingBooking())
	assert.Equal(t, 1, n)

	msgs := drain(admin)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Notification.NewBooking)
	assert.Equal(t, "b1", msgs[0].Notification.NewBooking.BookingId)
	assert.Empty(t, drain(subject), "expected subjects not to receive new booking notices")
}

func TestBroadcaster_SlowPublisher(t *testing.T) {
	repo := database.NewMemoryBookingRepository()
	_, err := repo.CreateBooking(context.Background(), pendingBooking())
	require.NoError(t, err)

	su := newTestStats()
	slow := &stallingPublisher{}
	fast := &recordingPublisher{}
	b := NewBroadcaster(testutil.TestLogger(t), newTestServer(t, su), repo, su, true, slow, fast)
	b.publishTimeout = 50 * time.Millisecond

	// the admin's request may end right after the commit
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = b.SetStatus(ctx, testAdmin, SetStatusCommand{BookingId: "b1", Status: types.StatusApproved})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second, "expected a stalled publisher to be cut off")
	assert.ErrorIs(t, slow.Err(), context.DeadlineExceeded, "expected the publish timeout, not the caller's cancellation")
	assert.Len(t, fast.Events(), 1)
}
