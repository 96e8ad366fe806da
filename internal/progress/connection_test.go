package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObserver(t *testing.T) {
	conn := &fakeConn{}
	o := NewObserver("obs-1", conn)

	require.NotNil(t, o)
	assert.Equal(t, "obs-1", o.ID)
	assert.NotNil(t, o.Subscriptions)
	assert.Empty(t, o.Subscriptions)
}

func TestObserverSubscriptions(t *testing.T) {
	o := NewObserver("obs-1", &fakeConn{})

	channel := ChannelForJob("job-1")
	assert.False(t, o.IsSubscribed(channel))

	o.Subscribe(channel)
	assert.True(t, o.IsSubscribed(channel))

	// Subscribing twice is idempotent.
	o.Subscribe(channel)
	assert.Len(t, o.Subscriptions, 1)

	o.Unsubscribe(channel)
	assert.False(t, o.IsSubscribed(channel))

	// Unsubscribing an unknown channel is a no-op.
	o.Unsubscribe("progress:never-subscribed")
}

func TestObserverSend(t *testing.T) {
	conn := &fakeConn{}
	o := NewObserver("obs-1", conn)

	msg := ServerMessage{Type: MessageTypeAck, Channel: ChannelForJob("job-1")}
	require.NoError(t, o.Send(msg))

	got := conn.received()
	require.Len(t, got, 1)
	assert.Equal(t, MessageTypeAck, got[0].Type)
}

func TestObserverClose(t *testing.T) {
	conn := &fakeConn{}
	o := NewObserver("obs-1", conn)

	require.NoError(t, o.Close())
	assert.True(t, conn.isClosed())
}
