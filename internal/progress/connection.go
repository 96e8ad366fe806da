package progress

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// wsConn is the slice of the WebSocket connection the observer needs.
// Narrowed to an interface so delivery failure can be exercised in tests.
type wsConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Observer represents one connected progress subscriber.
type Observer struct {
	ID            string
	Conn          wsConn
	Subscriptions map[string]bool // channel -> subscribed
	mu            sync.RWMutex
}

// NewObserver creates an observer around a WebSocket connection.
func NewObserver(id string, conn wsConn) *Observer {
	return &Observer{
		ID:            id,
		Conn:          conn,
		Subscriptions: make(map[string]bool),
	}
}

// Subscribe adds a channel subscription for this observer.
func (o *Observer) Subscribe(channel string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Subscriptions[channel] = true
	log.Debug().
		Str("observer_id", o.ID).
		Str("channel", channel).
		Msg("Subscribed to progress channel")
}

// Unsubscribe removes a channel subscription for this observer.
func (o *Observer) Unsubscribe(channel string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.Subscriptions, channel)
	log.Debug().
		Str("observer_id", o.ID).
		Str("channel", channel).
		Msg("Unsubscribed from progress channel")
}

// IsSubscribed checks if the observer is subscribed to a channel.
func (o *Observer) IsSubscribed(channel string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.Subscriptions[channel]
}

// Send writes a message to the observer's connection.
func (o *Observer) Send(msg interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Conn.WriteJSON(msg)
}

// Close closes the underlying connection.
func (o *Observer) Close() error {
	return o.Conn.Close()
}
