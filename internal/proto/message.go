package proto

import "encoding/json"

// Inbound is the envelope for messages coming from a bus client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypePublish = "publish"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// PublishData asks the bus to fan a payload out on a channel. Persist
// requests session-level persistence so late joiners receive the last value.
type PublishData struct {
	Channel string `json:"channel"`
	Payload string `json:"payload"`
	Persist bool   `json:"persist,omitempty"`
}

// Outbound is the envelope for messages sent to a bus client.
type Outbound struct {
	Type  string     `json:"type"`
	Event *EventData `json:"event,omitempty"`
	Error *Error     `json:"error,omitempty"`
}

// EventData is a delivered channel message.
type EventData struct {
	Channel string `json:"channel"`
	Sender  string `json:"sender"`
	Payload string `json:"payload"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
