package core

import (
	"time"

	"github.com/google/uuid"
)

// Message is the domain model for a chat message. Messages are immutable
// once created: the client fills every field when sending, the server
// fills them for messages arriving over the live stream.
type Message struct {
	ID      string
	Room    string
	User    string
	Content string
	SentAt  time.Time
}

// NewMessage builds a message for sending, with a fresh ID and timestamp.
func NewMessage(content, room, user string) Message {
	return Message{
		ID:      uuid.NewString(),
		Room:    room,
		User:    user,
		Content: content,
		SentAt:  time.Now(),
	}
}

// AlignedMessage pairs a message with its presentation alignment. Own is
// true when the message was written by the session's current user.
type AlignedMessage struct {
	Message Message
	Own     bool
}
