package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatroom-client/internal/core"
)

// Session is the state machine behind the presentation layer: it is either
// in room selection or attached to exactly one live room stream, and it
// publishes every accumulated snapshot as display-ready aligned messages.
type Session struct {
	repo   *Repository
	sender Sender
	log    *zerolog.Logger

	// pubMu serializes callback delivery with generation transitions: a
	// snapshot that passed its staleness check must reach the callback
	// before the next join or exit can reset the view. Always acquired
	// before mu.
	pubMu sync.Mutex

	mu         sync.Mutex
	mode       core.SessionMode
	state      core.SessionState
	generation int
	cancelLive func()

	onSnapshot func([]core.AlignedMessage)
	onError    func(error)
}

// NewSession builds a session in room selection.
func NewSession(repo *Repository, sender Sender, logger *zerolog.Logger) *Session {
	return &Session{
		repo:   repo,
		sender: sender,
		log:    logger,
		mode:   core.ModeRoomSelection,
		state:  core.SessionState{ShowRoomPicker: true},
	}
}

// OnSnapshot registers the callback receiving the aligned message list.
// Register before the first JoinRoom.
func (s *Session) OnSnapshot(fn func([]core.AlignedMessage)) { s.onSnapshot = fn }

// OnError registers the callback for terminal stream errors.
func (s *Session) OnError(fn func(error)) { s.onError = fn }

// State returns the current view model.
func (s *Session) State() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the current session mode.
func (s *Session) Mode() core.SessionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// JoinRoom resets the message view, switches to the in-room state and
// attaches to the shared stream for the room. Joining while already in a
// room detaches from the previous one first; no messages from the old
// room reach the new view.
func (s *Session) JoinRoom(ctx context.Context, room, user string) error {
	if room == "" || user == "" {
		return core.NewError(core.ErrCodeBadRequest, "room and user are required")
	}

	s.pubMu.Lock()
	s.mu.Lock()
	if s.cancelLive != nil {
		s.cancelLive()
		s.cancelLive = nil
	}
	s.generation++
	gen := s.generation
	s.mode = core.ModeInRoom
	s.state = core.SessionState{RoomID: room, UserID: user}
	s.mu.Unlock()
	s.deliver(nil)
	s.pubMu.Unlock()

	liveCtx, cancel := context.WithCancel(ctx)
	stream, err := s.repo.LiveChat(liveCtx, room)
	if err != nil {
		cancel()
		s.mu.Lock()
		if s.generation == gen {
			s.mode = core.ModeRoomSelection
			s.state = core.SessionState{ShowRoomPicker: true}
		}
		s.mu.Unlock()
		return err
	}

	snapshots, detach := stream.Observe()

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		cancel()
		detach()
		return nil
	}
	s.cancelLive = func() {
		cancel()
		detach()
	}
	s.mu.Unlock()

	go s.consume(liveCtx, gen, user, stream, snapshots)

	s.log.Info().Str("room", stream.Room()).Str("user", user).Msg("joined room")
	return nil
}

// SendMessage builds a fresh message and submits it for delivery. It does
// not wait for the message to reappear on the live stream; the echo is
// the server's business. Valid only while in a room.
func (s *Session) SendMessage(ctx context.Context, content, room, user string) error {
	if content == "" {
		return core.NewError(core.ErrCodeBadRequest, "content is required")
	}

	s.mu.Lock()
	inRoom := s.mode == core.ModeInRoom
	s.mu.Unlock()
	if !inRoom {
		return core.WrapError(core.ErrCodeNotInRoom, "join a room before sending", core.ErrNotInRoom)
	}

	msg := core.NewMessage(content, room, user)
	return s.sender.Send(ctx, msg)
}

// ExitRoom detaches from the live stream and returns to room selection.
// The underlying subscription stays cached for the next join.
func (s *Session) ExitRoom() {
	s.pubMu.Lock()
	s.mu.Lock()
	if s.cancelLive != nil {
		s.cancelLive()
		s.cancelLive = nil
	}
	s.generation++
	s.mode = core.ModeRoomSelection
	s.state = core.SessionState{ShowRoomPicker: true}
	s.mu.Unlock()
	s.deliver(nil)
	s.pubMu.Unlock()

	s.log.Info().Msg("exited room")
}

func (s *Session) consume(ctx context.Context, gen int, user string, stream *RoomStream, snapshots <-chan []core.Message) {
	for {
		select {
		case snapshot, ok := <-snapshots:
			if !ok {
				if err := stream.Err(); err != nil {
					s.fireError(gen, err)
				}
				return
			}
			aligned := make([]core.AlignedMessage, len(snapshot))
			for i, msg := range snapshot {
				aligned[i] = core.AlignedMessage{Message: msg, Own: msg.User == user}
			}
			s.publish(gen, aligned)
		case <-ctx.Done():
			return
		}
	}
}

// publish delivers a snapshot to the presentation callback unless the
// membership that produced it has already ended. pubMu stays held through
// the callback so a transition cannot slip between the staleness check and
// the delivery.
func (s *Session) publish(gen int, items []core.AlignedMessage) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	stale := s.generation != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.deliver(items)
}

// deliver invokes the snapshot callback. Callers hold pubMu.
func (s *Session) deliver(items []core.AlignedMessage) {
	if s.onSnapshot == nil {
		return
	}
	if items == nil {
		items = []core.AlignedMessage{}
	}
	s.onSnapshot(items)
}

func (s *Session) fireError(gen int, err error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	stale := s.generation != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.log.Warn().Err(err).Msg("live stream failed")
	if s.onError != nil {
		s.onError(err)
	}
}
