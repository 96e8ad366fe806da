package progress

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler upgrades HTTP requests to WebSocket progress observers.
type Handler struct {
	broadcaster  *Broadcaster
	pingInterval time.Duration
}

// NewHandler creates a progress WebSocket handler.
func NewHandler(b *Broadcaster, pingInterval time.Duration) *Handler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Handler{broadcaster: b, pingInterval: pingInterval}
}

// HandleWebSocket handles the WebSocket upgrade. A `job` query parameter
// subscribes the observer to that submission's channel; without one the
// observer joins the firehose and sees every event, which is what passive
// dashboards want.
func (h *Handler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	c.Locals("job_id", c.Query("job"))
	return websocket.New(h.handleConnection)(c)
}

// handleConnection runs one observer's read loop.
func (h *Handler) handleConnection(c *websocket.Conn) {
	observerID := uuid.New().String()
	observer := NewObserver(observerID, c)

	if job, _ := c.Locals("job_id").(string); job != "" {
		observer.Subscribe(ChannelForJob(job))
	} else {
		observer.Subscribe(FirehoseChannel)
	}

	h.broadcaster.Register(observer)
	defer h.broadcaster.Unregister(observerID)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := observer.Send(ServerMessage{Type: MessageTypeHeartbeat}); err != nil {
				log.Debug().Err(err).Str("observer_id", observerID).Msg("Heartbeat failed")
				return
			}

		default:
			var msg ClientMessage
			if err := c.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Error().Err(err).Str("observer_id", observerID).Msg("WebSocket error")
				}
				return
			}
			h.handleMessage(observer, msg)
		}
	}
}

// handleMessage processes a client control message.
func (h *Handler) handleMessage(o *Observer, msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.Channel == "" {
			_ = o.Send(ServerMessage{
				Type:  MessageTypeError,
				Error: "channel is required for subscribe",
			})
			return
		}
		o.Subscribe(msg.Channel)
		_ = o.Send(ServerMessage{
			Type:    MessageTypeAck,
			Channel: msg.Channel,
			Payload: map[string]interface{}{"subscribed": true},
		})

	case MessageTypeUnsubscribe:
		if msg.Channel == "" {
			_ = o.Send(ServerMessage{
				Type:  MessageTypeError,
				Error: "channel is required for unsubscribe",
			})
			return
		}
		o.Unsubscribe(msg.Channel)
		_ = o.Send(ServerMessage{
			Type:    MessageTypeAck,
			Channel: msg.Channel,
			Payload: map[string]interface{}{"subscribed": false},
		})

	case MessageTypeHeartbeat:
		_ = o.Send(ServerMessage{Type: MessageTypeHeartbeat})

	default:
		_ = o.Send(ServerMessage{
			Type:  MessageTypeError,
			Error: "unknown message type",
		})
	}
}
