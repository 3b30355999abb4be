package realtime

import (
	"encoding/json"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
)

const (
	FrameJoin  = "join"
	FrameLeave = "leave"
	FramePing  = "ping"

	FrameJoined       = "joined"
	FrameNotification = "notification"
	FrameError        = "error"
	FramePong         = "pong"
)

const (
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeForbidden         = "FORBIDDEN"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
)

// Frame is the envelope of every message on the channel, in both directions.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	Recipient string `json:"recipient"`
}

type JoinedPayload struct {
	Recipient string `json:"recipient"`
	ChannelID string `json:"channel_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func notificationFrame(n notification.Notification) Frame {
	return Frame{Type: FrameNotification, Payload: mustJSON(n)}
}

func errorFrame(requestID, code, msg string) Frame {
	return Frame{Type: FrameError, RequestID: requestID, Payload: mustJSON(ErrorPayload{Code: code, Message: msg})}
}
