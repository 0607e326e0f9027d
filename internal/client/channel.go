// Package client is the consuming side of the booking status websocket: a
// per-booking connection manager, a capped pool of managers and the engine
// reconciling pushed updates with periodic polls.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/protocol"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	handshakeWait  = 10 * time.Second
	eventQueueSize = 16
)

// Channel is one open connection to the status service.
type Channel interface {
	Subscribe(ctx context.Context, bookingId string) error
	Unsubscribe(ctx context.Context, bookingId string) error
	// Events yields the status updates received on the channel. It is
	// closed when the channel is closed or the connection drops.
	Events() <-chan types.StatusUpdateEvent
	Close() error
}

// DialTarget is the connection context attached when a channel is opened.
type DialTarget struct {
	BookingId string
	SubjectId string
}

type Dialer interface {
	Dial(ctx context.Context, target DialTarget) (Channel, error)
}

// WSDialer opens websocket channels against a status service base URL,
// presenting token as a bearer credential.
type WSDialer struct {
	baseURL *url.URL
	token   string
	dialer  *websocket.Dialer
	log     zerolog.Logger
}

func NewWSDialer(baseURL, token string, logger zerolog.Logger) (*WSDialer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return &WSDialer{
		baseURL: u,
		token:   token,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeWait},
		log:     logger.With().Str("component", "ws_dialer").Logger(),
	}, nil
}

func (d *WSDialer) endpoint(target DialTarget) string {
	u := *d.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := url.Values{}
	q.Set("booking_id", target.BookingId)
	q.Set("subject_id", target.SubjectId)
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *WSDialer) Dial(ctx context.Context, target DialTarget) (Channel, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.token)

	conn, resp, err := d.dialer.DialContext(ctx, d.endpoint(target), header)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return nil, fmt.Errorf("%w: handshake refused", types.ErrUnauthenticated)
			case http.StatusForbidden:
				return nil, fmt.Errorf("%w: handshake refused", types.ErrForbidden)
			}
		}
		return nil, err
	}

	return newWSChannel(conn, d.log), nil
}

type wsChannel struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeLock sync.Mutex
	nextId    atomic.Int64

	pendingLock sync.Mutex
	pending     map[int]chan *protocol.Response

	events    chan types.StatusUpdateEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newWSChannel(conn *websocket.Conn, logger zerolog.Logger) *wsChannel {
	c := &wsChannel{
		conn:    conn,
		log:     logger,
		pending: make(map[int]chan *protocol.Response),
		events:  make(chan types.StatusUpdateEvent, eventQueueSize),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *wsChannel) readLoop() {
	defer close(c.events)
	defer c.Close()

	for {
		var msg protocol.ServerMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("channel read failed")
			}
			return
		}

		if msg.Response != nil {
			c.resolve(msg.Id, msg.Response)
			continue
		}

		if msg.Notification == nil || msg.Notification.StatusUpdate == nil {
			continue
		}
		select {
		case c.events <- *msg.Notification.StatusUpdate:
		case <-c.done:
			return
		}
	}
}

func (c *wsChannel) resolve(id int, resp *protocol.Response) {
	c.pendingLock.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingLock.Unlock()

	if ok {
		ch <- resp
	}
}

func (c *wsChannel) request(ctx context.Context, msg *protocol.ClientMessage) error {
	id := int(c.nextId.Add(1))
	msg.Id = id
	msg.Timestamp = protocol.Now()

	respCh := make(chan *protocol.Response, 1)
	c.pendingLock.Lock()
	c.pending[id] = respCh
	c.pendingLock.Unlock()
	defer func() {
		c.pendingLock.Lock()
		delete(c.pending, id)
		c.pendingLock.Unlock()
	}()

	c.writeLock.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(msg)
	c.writeLock.Unlock()
	if err != nil {
		return err
	}

	select {
	case resp := <-respCh:
		return responseError(resp)
	case <-c.done:
		return errors.New("channel closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// responseError maps a non-success response code back onto the error
// taxonomy.
func responseError(resp *protocol.Response) error {
	if resp.ResponseCode < http.StatusMultipleChoices {
		return nil
	}

	var base error
	switch resp.ResponseCode {
	case http.StatusUnauthorized:
		base = types.ErrUnauthenticated
	case http.StatusForbidden:
		base = types.ErrForbidden
	case http.StatusNotFound:
		base = types.ErrNotFound
	case http.StatusTooManyRequests:
		base = types.ErrRateLimited
	default:
		return fmt.Errorf("response code %d: %s", resp.ResponseCode, resp.Error)
	}
	return fmt.Errorf("%w: %s", base, resp.Error)
}

func (c *wsChannel) Subscribe(ctx context.Context, bookingId string) error {
	return c.request(ctx, &protocol.ClientMessage{Subscribe: &protocol.Subscribe{BookingId: bookingId}})
}

func (c *wsChannel) Unsubscribe(ctx context.Context, bookingId string) error {
	return c.request(ctx, &protocol.ClientMessage{Unsubscribe: &protocol.Unsubscribe{BookingId: bookingId}})
}

func (c *wsChannel) Events() <-chan types.StatusUpdateEvent {
	return c.events
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeLock.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeLock.Unlock()

		err = c.conn.Close()
	})
	return err
}
