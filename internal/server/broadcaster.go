package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/database"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/protocol"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/stats"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/rs/zerolog"
)

const defaultPublishTimeout = 2 * time.Second

type SetStatusCommand struct {
	BookingId       string
	Status          types.BookingStatus
	RejectionReason string
}

// EventPublisher forwards committed status events beyond this process.
type EventPublisher interface {
	PublishStatus(ctx context.Context, ev types.StatusUpdateEvent) error
}

// Broadcaster applies admin status commands to the booking store and fans
// the resulting events out to connected clients.
type Broadcaster struct {
	log          zerolog.Logger
	server       *Server
	repo         database.BookingRepository
	stats        stats.StatsProvider
	publishers   []EventPublisher
	broadcastAll bool

	publishTimeout time.Duration
}

// NewBroadcaster creates a broadcaster. With broadcastAll set every status
// event reaches every connection; otherwise only members of the booking and
// owner rooms receive it.
func NewBroadcaster(logger zerolog.Logger, s *Server, repo database.BookingRepository, su stats.StatsProvider, broadcastAll bool, publishers ...EventPublisher) *Broadcaster {
	su.RegisterMetric(stats.NumStatusBroadcasts)

	return &Broadcaster{
		log:          logger.With().Str("component", "broadcaster").Logger(),
		server:       s,
		repo:         repo,
		stats:        su,
		publishers:   publishers,
		broadcastAll: broadcastAll,

		publishTimeout: defaultPublishTimeout,
	}
}

// SetStatus moves a booking to an approved or rejected status on behalf of
// an admin. On any error no event is emitted.
func (b *Broadcaster) SetStatus(ctx context.Context, id types.Identity, cmd SetStatusCommand) (types.StatusUpdateEvent, error) {
	if !id.IsAdmin() {
		return types.StatusUpdateEvent{}, fmt.Errorf("%w: role %q may not set booking status", types.ErrForbidden, id.Role)
	}
	if cmd.BookingId == "" {
		return types.StatusUpdateEvent{}, fmt.Errorf("%w: missing booking id", protocol.ErrInvalidMessage)
	}
	if !cmd.Status.Terminal() {
		return types.StatusUpdateEvent{}, fmt.Errorf("%w: %q", types.ErrInvalidStatus, cmd.Status)
	}

	booking, err := b.repo.UpdateBookingStatus(ctx, cmd.BookingId, cmd.Status, cmd.RejectionReason)
	if err != nil {
		b.log.Error().Err(err).Str("booking_id", cmd.BookingId).Msg("booking status update failed")
		return types.StatusUpdateEvent{}, fmt.Errorf("%w: %w", types.ErrStoreUpdate, err)
	}

	ev := types.NewStatusUpdateEvent(booking, protocol.Now())
	b.log.Info().
		Str("booking_id", ev.BookingId).
		Str("status", string(ev.Status)).
		Str("admin_id", id.SubjectId).
		Msg("booking status updated")

	b.Fanout(ev)
	b.publish(ctx, ev)

	return ev, nil
}

// Fanout delivers ev to local connections only. Events relayed from other
// instances enter here.
func (b *Broadcaster) Fanout(ev types.StatusUpdateEvent) int {
	msg := protocol.NewNotification(protocol.StatusUpdate(ev))

	var delivered int
	if b.broadcastAll {
		delivered = b.server.DeliverToAll(msg)
	} else {
		delivered = b.server.DeliverToRooms(msg, types.BookingRoom(ev.BookingId), types.SubjectRoom(ev.SubjectId))
	}
	b.stats.Incr(stats.NumStatusBroadcasts)

	b.log.Debug().
		Str("booking_id", ev.BookingId).
		Int("recipients", delivered).
		Msg("status update delivered")
	return delivered
}

// publish hands ev to every publisher concurrently. Each gets publishTimeout,
// detached from the caller's cancellation since the status is already
// committed.
func (b *Broadcaster) publish(ctx context.Context, ev types.StatusUpdateEvent) {
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, p := range b.publishers {
		wg.Add(1)
		go func(p EventPublisher) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, b.publishTimeout)
			defer cancel()
			if err := p.PublishStatus(pctx, ev); err != nil {
				b.log.Warn().Err(err).Str("booking_id", ev.BookingId).Msg("failed to publish status event")
			}
		}(p)
	}
	wg.Wait()
}

// NotifyNewBooking tells admins about a new submission.
func (b *Broadcaster) NotifyNewBooking(booking types.Booking) int {
	notice := types.NewBookingNoticeFor(booking)
	return b.server.DeliverToRooms(protocol.NewNotification(protocol.NewBooking(notice)), types.AdminRoom)
}
