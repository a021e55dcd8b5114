package transport_test

import (
	"context"
	"testing"

	"github.com/adalundhe/relay/core/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelTransport_DeliverToSubscriber(t *testing.T) {
	tr := transport.NewChannelTransport(transport.DefaultChannelTransportConfig())
	defer tr.Close()

	deliveries, cancel := tr.Subscribe("user-1")
	defer cancel()

	err := tr.Deliver(context.Background(), "user-1", map[string]any{"text": "hello"})
	require.NoError(t, err)

	delivery := <-deliveries
	assert.Equal(t, "user-1", delivery.Recipient)
	assert.Equal(t, "hello", delivery.Payload["text"])
}

func TestChannelTransport_NoSubscriber(t *testing.T) {
	tr := transport.NewChannelTransport(transport.DefaultChannelTransportConfig())
	defer tr.Close()

	err := tr.Deliver(context.Background(), "nobody", map[string]any{})
	assert.ErrorIs(t, err, transport.ErrNoSubscriber)
}

func TestChannelTransport_CancelledSubscriberIgnored(t *testing.T) {
	tr := transport.NewChannelTransport(transport.DefaultChannelTransportConfig())
	defer tr.Close()

	_, cancel := tr.Subscribe("user-1")
	cancel()

	err := tr.Deliver(context.Background(), "user-1", map[string]any{})
	assert.ErrorIs(t, err, transport.ErrNoSubscriber)
}

func TestChannelTransport_FullBufferDrops(t *testing.T) {
	tr := transport.NewChannelTransport(transport.ChannelTransportConfig{BufferSize: 1})
	defer tr.Close()

	_, cancel := tr.Subscribe("user-1")
	defer cancel()

	require.NoError(t, tr.Deliver(context.Background(), "user-1", map[string]any{"n": 1}))
	// Second delivery cannot fit anywhere, so nothing accepted it.
	err := tr.Deliver(context.Background(), "user-1", map[string]any{"n": 2})
	assert.ErrorIs(t, err, transport.ErrNoSubscriber)
	assert.EqualValues(t, 1, tr.Dropped())
}

func TestChannelTransport_Closed(t *testing.T) {
	tr := transport.NewChannelTransport(transport.DefaultChannelTransportConfig())
	require.NoError(t, tr.Close())

	err := tr.Deliver(context.Background(), "user-1", map[string]any{})
	assert.ErrorIs(t, err, transport.ErrTransportClosed)
}
