// Package progress fans out extraction progress milestones to WebSocket
// observers. Events are scoped to one submission through a per-job channel;
// a firehose channel keeps the observe-everything behavior available for
// dashboards.
package progress

import "fmt"

// Event is one progress milestone. Percent is 0-100 and non-decreasing
// within a single extraction attempt.
type Event struct {
	Message string `json:"message"`
	Percent int    `json:"progress"`
}

// FirehoseChannel receives every progress event regardless of job.
const FirehoseChannel = "progress:*"

// ChannelForJob returns the channel name carrying one submission's events.
func ChannelForJob(jobID string) string {
	return fmt.Sprintf("progress:%s", jobID)
}

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeHeartbeat   MessageType = "heartbeat"
	MessageTypeEvent       MessageType = "event"
	MessageTypeError       MessageType = "error"
	MessageTypeAck         MessageType = "ack"
)

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type    MessageType `json:"type"`
	Channel string      `json:"channel,omitempty"`
}

// ServerMessage represents a message to the client
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}
