package adapter

import "github.com/sameehj/gatekeeper/pkg/chat"

// Relay frame types.
const (
	FrameReady   = "ready"
	FrameMessage = "message"
	FrameReply   = "reply"
	FrameDelete  = "delete"
)

// Frame is one JSON message on the relay websocket.
type Frame struct {
	Type      string        `json:"type"`
	SelfID    string        `json:"self_id,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	ChannelID string        `json:"channel_id,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Content   string        `json:"content,omitempty"`
}
