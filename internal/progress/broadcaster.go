package progress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wordlens/wordlens/internal/pubsub"
)

// DeliveryObserver is notified about broadcast activity for metrics.
type DeliveryObserver interface {
	ProgressDelivered(channel string)
	ProgressDeliveryFailed(reason string)
	ProgressObservers(count int)
}

// Broadcaster fans progress events out to every registered observer whose
// subscription matches. Delivery is best-effort and at-most-once: an
// observer whose delivery fails is pruned immediately and never retried.
type Broadcaster struct {
	observers map[string]*Observer
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	ps        pubsub.PubSub
	metrics   DeliveryObserver
}

// envelope carries an event across instances through pub/sub.
type envelope struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
}

// NewBroadcaster creates a progress broadcaster.
func NewBroadcaster(ctx context.Context) *Broadcaster {
	ctx, cancel := context.WithCancel(ctx)
	return &Broadcaster{
		observers: make(map[string]*Observer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetMetrics registers a delivery observer for instrumentation.
func (b *Broadcaster) SetMetrics(m DeliveryObserver) {
	b.metrics = m
}

// SetPubSub enables cross-instance delivery. When set, Broadcast publishes
// to the pub/sub channel and this broadcaster subscribes to deliver events
// published by other instances.
func (b *Broadcaster) SetPubSub(ps pubsub.PubSub) {
	b.ps = ps
	if ps != nil {
		go b.consumePubSub()
	}
}

// consumePubSub delivers events published by any instance to local observers.
func (b *Broadcaster) consumePubSub() {
	ch, err := b.ps.Subscribe(b.ctx, pubsub.ProgressChannel)
	if err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to progress pub/sub channel")
		return
	}

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				log.Error().Err(err).Msg("Failed to unmarshal progress envelope")
				continue
			}
			b.deliverLocal(env.Channel, env.Event)
		}
	}
}

// Register adds an observer.
func (b *Broadcaster) Register(o *Observer) {
	b.mu.Lock()
	b.observers[o.ID] = o
	count := len(b.observers)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.ProgressObservers(count)
	}
	log.Info().Str("observer_id", o.ID).Msg("Progress observer registered")
}

// Unregister removes and closes an observer.
func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	o, exists := b.observers[id]
	if exists {
		delete(b.observers, id)
	}
	count := len(b.observers)
	b.mu.Unlock()

	if !exists {
		return
	}
	_ = o.Close()

	if b.metrics != nil {
		b.metrics.ProgressObservers(count)
	}
	log.Info().Str("observer_id", id).Msg("Progress observer removed")
}

// ObserverCount returns the number of registered observers.
func (b *Broadcaster) ObserverCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// Broadcast publishes an event on a job channel. With a pub/sub backend the
// event goes through it so every instance (including this one) delivers to
// its local observers; without one delivery is local only.
func (b *Broadcaster) Broadcast(channel string, ev Event) {
	if b.ps == nil {
		b.deliverLocal(channel, ev)
		return
	}

	payload, err := json.Marshal(envelope{Channel: channel, Event: ev})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal progress envelope")
		return
	}
	if err := b.ps.Publish(b.ctx, pubsub.ProgressChannel, payload); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to publish progress event")
		// Degrade to local delivery so in-process observers still see it.
		b.deliverLocal(channel, ev)
	}
}

// deliverLocal sends the event to local observers subscribed to the job
// channel or to the firehose. Observers whose delivery fails are removed so
// a dead connection never blocks or delays the others again.
func (b *Broadcaster) deliverLocal(channel string, ev Event) {
	b.mu.RLock()
	targets := make([]*Observer, 0, len(b.observers))
	for _, o := range b.observers {
		if o.IsSubscribed(channel) || o.IsSubscribed(FirehoseChannel) {
			targets = append(targets, o)
		}
	}
	b.mu.RUnlock()

	msg := ServerMessage{
		Type:    MessageTypeEvent,
		Channel: channel,
		Payload: ev,
	}

	for _, o := range targets {
		if err := o.Send(msg); err != nil {
			log.Warn().
				Err(err).
				Str("observer_id", o.ID).
				Str("channel", channel).
				Msg("Progress delivery failed, pruning observer")
			if b.metrics != nil {
				b.metrics.ProgressDeliveryFailed("send_failed")
			}
			b.Unregister(o.ID)
			continue
		}
		if b.metrics != nil {
			b.metrics.ProgressDelivered(channel)
		}
	}
}

// Sink returns a per-job progress sink feeding this broadcaster. It
// satisfies the engine's ProgressSink contract.
func (b *Broadcaster) Sink(jobID string) SinkFunc {
	channel := ChannelForJob(jobID)
	return func(message string, percent int) {
		b.Broadcast(channel, Event{Message: message, Percent: percent})
	}
}

// SinkFunc adapts a function to the progress-sink contract.
type SinkFunc func(message string, percent int)

// Progress implements the engine ProgressSink interface.
func (f SinkFunc) Progress(message string, percent int) {
	f(message, percent)
}

// Shutdown closes every observer and stops pub/sub consumption.
func (b *Broadcaster) Shutdown() {
	b.cancel()

	b.mu.Lock()
	toClose := make([]*Observer, 0, len(b.observers))
	for _, o := range b.observers {
		toClose = append(toClose, o)
	}
	b.observers = make(map[string]*Observer)
	b.mu.Unlock()

	for _, o := range toClose {
		_ = o.Close()
		log.Info().Str("observer_id", o.ID).Msg("Closed progress observer during shutdown")
	}
}
