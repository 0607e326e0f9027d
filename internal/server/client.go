package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/protocol"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/stats"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	commandTimeout = 10 * time.Second
)

// Client is one admitted websocket connection. Its identity is fixed for
// the lifetime of the connection.
type Client struct {
	id       ConnID
	identity types.Identity
	conn     *websocket.Conn
	server   *Server
	log      zerolog.Logger
	send     chan *protocol.ServerMessage
	limiter  *rate.Limiter
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(identity types.Identity, conn *websocket.Conn, s *Server, l zerolog.Logger) *Client {
	id := ConnID(uuid.NewString())
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		server:   s,
		log:      l.With().Str("conn_id", string(id)).Str("subject_id", identity.SubjectId).Logger(),
		send:     make(chan *protocol.ServerMessage, s.opts.SendQueueSize),
		limiter:  rate.NewLimiter(s.opts.CommandRate, s.opts.CommandBurst),
		stop:     make(chan struct{}),
	}
}

func (c *Client) Id() ConnID {
	return c.id
}

func (c *Client) Identity() types.Identity {
	return c.identity
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error().Err(err).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			return
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug().Err(err).Msg("error parsing message")
			c.queueMessage(protocol.ErrInvalidMessageFormat(-1))
			continue
		}

		if !c.limiter.Allow() {
			c.queueMessage(protocol.ErrResponse(msg.Id, types.ErrRateLimited))
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *protocol.ClientMessage) {
	switch {
	case msg.Subscribe != nil:
		c.subscribe(msg.Id, msg.Subscribe.BookingId)
	case msg.Unsubscribe != nil:
		c.unsubscribe(msg.Id, msg.Unsubscribe.BookingId)
	case msg.SetStatus != nil:
		c.setStatus(msg.Id, msg.SetStatus)
	default:
		c.queueMessage(protocol.ErrInvalidMessageFormat(msg.Id))
	}
}

func (c *Client) subscribe(id int, bookingId string) {
	if bookingId == "" {
		c.queueMessage(protocol.ErrInvalidMessageFormat(id))
		return
	}

	if c.server.registry.Join(c.id, types.BookingRoom(bookingId)) {
		c.log.Debug().Str("booking_id", bookingId).Msg("joined booking room")
		c.server.stats.Set(stats.NumActiveRooms, float64(c.server.registry.Rooms()))
	}
	c.queueMessage(protocol.NoErrOK(id, nil))
}

func (c *Client) unsubscribe(id int, bookingId string) {
	if bookingId == "" {
		c.queueMessage(protocol.ErrInvalidMessageFormat(id))
		return
	}

	if c.server.registry.Leave(c.id, types.BookingRoom(bookingId)) {
		c.log.Debug().Str("booking_id", bookingId).Msg("left booking room")
		c.server.stats.Set(stats.NumActiveRooms, float64(c.server.registry.Rooms()))
	}
	c.queueMessage(protocol.NoErrOK(id, nil))
}

func (c *Client) setStatus(id int, cmd *protocol.SetStatus) {
	if c.server.commands == nil {
		c.queueMessage(protocol.ErrServiceUnavailable(id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	ev, err := c.server.commands.SetStatus(ctx, c.identity, SetStatusCommand{
		BookingId:       cmd.BookingId,
		Status:          cmd.Status,
		RejectionReason: cmd.RejectionReason,
	})
	if err != nil {
		c.log.Info().Err(err).Str("booking_id", cmd.BookingId).Msg("set status refused")
		c.queueMessage(protocol.ErrResponse(id, err))
		return
	}

	c.queueMessage(protocol.NoErrOK(id, ev))
}

// queueMessage never blocks; it reports false when the send queue is full.
func (c *Client) queueMessage(msg *protocol.ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *protocol.ServerMessage) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal server message: %w", err)
	}
	return b, nil
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.server.deregister(c)
	c.stopClient()
}
