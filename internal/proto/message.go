package proto

import "encoding/json"

// Inbound is the envelope for messages going from the client to the server.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello = "hello"
	InboundTypeJoin  = "join"
	InboundTypeLeave = "leave"
	InboundTypeMsg   = "msg"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"

	EventTypeMessage = "message"
)

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	User     string `json:"user"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinData requests to join or leave a specific room.
type JoinData struct {
	Room string `json:"room"`
}

// MsgData is a chat message from the client. Timestamps travel as unix
// milliseconds.
type MsgData struct {
	MessageID string `json:"message_id"`
	Room      string `json:"room"`
	User      string `json:"user"`
	Content   string `json:"content"`
	TS        int64  `json:"ts"`
}

// Outbound is the envelope for messages going from the server to the client.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// EventMessage notifies subscribers about a chat message in a room. The
// server relays every message, including the sender's own, back to every
// subscriber of the room.
type EventMessage struct {
	MessageID string `json:"message_id"`
	Room      string `json:"room"`
	User      string `json:"user"`
	Content   string `json:"content"`
	TS        int64  `json:"ts"`
}

// AckData confirms delivery of a client message. A non-nil Error means the
// server rejected the message.
type AckData struct {
	MessageID string `json:"message_id"`
	Error     *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}
