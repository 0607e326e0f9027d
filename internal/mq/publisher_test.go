package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published []published
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRoutingKey(t *testing.T) {
	tcases := []struct {
		status   types.BookingStatus
		expected string
	}{
		{status: types.StatusApproved, expected: "booking.status.approved"},
		{status: types.StatusRejected, expected: "booking.status.rejected"},
		{status: types.StatusPending, expected: "booking.status.pending"},
	}

	for _, tc := range tcases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, RoutingKey(tc.status))
		})
	}
}

func TestPublisher_PublishStatus(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: DefaultExchange}

	ev := types.StatusUpdateEvent{
		BookingId:       "b1",
		Status:          types.StatusRejected,
		RejectionReason: "date full",
		SubjectId:       "u1",
		EmittedAt:       time.Date(2025, 1, 10, 3, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishStatus(context.Background(), ev))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, "booking.status.rejected", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), got.msg.DeliveryMode)
	assert.Equal(t, "b1", got.msg.MessageId)

	var decoded types.StatusUpdateEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, ev, decoded)

	assert.NoError(t, p.Close())
	assert.True(t, ch.closed, "expected channel to be closed")
}

func TestPublisher_PublishError(t *testing.T) {
	p := &Publisher{ch: &fakeChannel{err: amqp.ErrClosed}, exchange: DefaultExchange}

	err := p.PublishStatus(context.Background(), types.StatusUpdateEvent{BookingId: "b1", Status: types.StatusApproved})
	assert.True(t, errors.Is(err, amqp.ErrClosed), "expected channel error to be returned, got %v", err)
}
