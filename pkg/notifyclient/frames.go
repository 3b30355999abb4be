package notifyclient

import "encoding/json"

const (
	frameJoin         = "join"
	frameLeave        = "leave"
	frameJoined       = "joined"
	frameNotification = "notification"
	frameError        = "error"

	codeForbidden = "FORBIDDEN"
)

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	Recipient string `json:"recipient,omitempty"`
}

type joinedPayload struct {
	Recipient string `json:"recipient"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
