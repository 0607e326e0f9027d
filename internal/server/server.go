package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/protocol"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/stats"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var ErrServerStopped = errors.New("server stopped")

const (
	defaultSendQueueSize = 256
	defaultCommandRate   = 5
	defaultCommandBurst  = 10
)

type Options struct {
	// SendQueueSize bounds each connection's outbound queue. A full queue
	// drops messages for that connection only.
	SendQueueSize int
	// CommandRate and CommandBurst limit inbound messages per connection.
	CommandRate  rate.Limit
	CommandBurst int
}

func (o Options) withDefaults() Options {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = defaultSendQueueSize
	}
	if o.CommandRate <= 0 {
		o.CommandRate = defaultCommandRate
	}
	if o.CommandBurst <= 0 {
		o.CommandBurst = defaultCommandBurst
	}
	return o
}

// CommandHandler executes status commands received over websocket.
type CommandHandler interface {
	SetStatus(ctx context.Context, id types.Identity, cmd SetStatusCommand) (types.StatusUpdateEvent, error)
}

// Server admits websocket connections, tracks their room membership and
// fans messages out to them.
type Server struct {
	log            zerolog.Logger
	registry       *Registry
	stats          stats.StatsProvider
	opts           Options
	commands       CommandHandler
	clients        map[ConnID]*Client
	clientsLock    sync.RWMutex
	registerChan   chan *Client
	deregisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
	now            func() time.Time
}

type stopReq struct {
	done chan struct{}
}

func NewServer(logger zerolog.Logger, registry *Registry, su stats.StatsProvider, opts Options) *Server {
	s := &Server{
		log:            logger.With().Str("component", "hub").Logger(),
		registry:       registry,
		stats:          su,
		opts:           opts.withDefaults(),
		clients:        make(map[ConnID]*Client),
		registerChan:   make(chan *Client),
		deregisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
		now:            protocol.Now,
	}
	s.initMetrics()

	return s
}

func (s *Server) initMetrics() {
	s.stats.RegisterMetric(stats.NumActiveConnections)
	s.stats.RegisterMetric(stats.NumAdminConnections)
	s.stats.RegisterMetric(stats.NumActiveRooms)
	s.stats.RegisterMetric(stats.NumDroppedMessages)
}

// UseCommandHandler sets the handler for set_status messages.
func (s *Server) UseCommandHandler(h CommandHandler) {
	s.commands = h
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) Run() {
	defer close(s.done)

	for {
		select {
		case c := <-s.registerChan:
			s.admit(c)
		case c := <-s.deregisterChan:
			s.release(c)
		case req := <-s.stop:
			s.log.Info().Msg("stopping connections")
			for _, c := range s.snapshotClients() {
				c.stopClient()
			}
			close(req.done)
			return
		}
	}
}

// Register hands an authenticated client to the run loop for admission.
func (s *Server) Register(c *Client) error {
	select {
	case s.registerChan <- c:
		return nil
	case <-s.done:
		return ErrServerStopped
	}
}

func (s *Server) deregister(c *Client) {
	select {
	case s.deregisterChan <- c:
	case <-s.done:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case s.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// admit stores the client and joins it to the rooms implied by its role.
func (s *Server) admit(c *Client) {
	s.clientsLock.Lock()
	s.clients[c.id] = c
	s.clientsLock.Unlock()

	s.registry.Join(c.id, types.SubjectRoom(c.identity.SubjectId))
	if c.identity.IsAdmin() {
		s.registry.Join(c.id, types.AdminRoom)
	}

	s.log.Info().
		Str("conn_id", string(c.id)).
		Str("subject_id", c.identity.SubjectId).
		Str("role", string(c.identity.Role)).
		Msg("connection admitted")

	s.publishStats()
}

func (s *Server) release(c *Client) {
	s.clientsLock.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	s.clientsLock.Unlock()

	if !ok {
		return
	}

	left := s.registry.RemoveConnection(c.id)
	s.log.Info().
		Str("conn_id", string(c.id)).
		Int("rooms_left", len(left)).
		Msg("connection released")

	s.publishStats()
}

func (s *Server) getClient(id ConnID) (*Client, bool) {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()

	c, ok := s.clients[id]
	return c, ok
}

func (s *Server) snapshotClients() []*Client {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	return clients
}

// DeliverToRooms queues msg once for every connection joined to any of keys
// and returns the number of connections it was queued for.
func (s *Server) DeliverToRooms(msg *protocol.ServerMessage, keys ...types.RoomKey) int {
	seen := make(map[ConnID]struct{})
	delivered := 0
	for _, key := range keys {
		for _, id := range s.registry.MembersOf(key) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			if c, ok := s.getClient(id); ok && s.deliver(c, msg) {
				delivered++
			}
		}
	}
	return delivered
}

// DeliverToAll queues msg for every admitted connection.
func (s *Server) DeliverToAll(msg *protocol.ServerMessage) int {
	delivered := 0
	for _, c := range s.snapshotClients() {
		if s.deliver(c, msg) {
			delivered++
		}
	}
	return delivered
}

func (s *Server) deliver(c *Client, msg *protocol.ServerMessage) bool {
	if c.queueMessage(msg) {
		return true
	}
	s.stats.Incr(stats.NumDroppedMessages)
	return false
}

// ConnectionStats derives the current connection counts from the registry.
func (s *Server) ConnectionStats() types.ConnectionStats {
	total := s.registry.Connections()
	admins := s.registry.Count(types.AdminRoom)

	return types.ConnectionStats{
		Total:        total,
		AdminCount:   admins,
		SubjectCount: total - admins,
		Timestamp:    s.now(),
	}
}

// publishStats pushes the connection counts to the admin room and mirrors
// them into the metrics.
func (s *Server) publishStats() {
	st := s.ConnectionStats()

	s.stats.Set(stats.NumActiveConnections, float64(st.Total))
	s.stats.Set(stats.NumAdminConnections, float64(st.AdminCount))
	s.stats.Set(stats.NumActiveRooms, float64(s.registry.Rooms()))

	s.DeliverToRooms(protocol.NewNotification(protocol.ConnectionStats(st)), types.AdminRoom)
}
