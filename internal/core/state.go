package core

// SessionMode tracks which screen of the session the user is on.
type SessionMode int

const (
	// ModeRoomSelection means no room is active and the room picker is shown.
	ModeRoomSelection SessionMode = iota
	// ModeInRoom means the session is attached to a live room stream.
	ModeInRoom
)

// String returns the string representation of a SessionMode.
func (m SessionMode) String() string {
	switch m {
	case ModeRoomSelection:
		return "room_selection"
	case ModeInRoom:
		return "in_room"
	default:
		return "unknown"
	}
}

// SessionState is the view model exposed to the presentation layer.
type SessionState struct {
	RoomID         string
	UserID         string
	ShowRoomPicker bool
}
