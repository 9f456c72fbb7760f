package ws

import (
	"sync"

	"github.com/vovakirdan/chatroom-client/internal/core"
)

// Subscription is one live server-side event stream for a room. Messages
// arrive in server-send order and the channel closes only when the stream
// terminates: server close, connection failure, or Cancel.
type Subscription struct {
	room   string
	ch     chan core.Message
	done   chan struct{}
	stop   sync.Once
	detach func()

	mu  sync.Mutex
	err error
}

// Room returns the room this subscription is scoped to.
func (s *Subscription) Room() string { return s.room }

// Messages returns the stream of incoming messages.
func (s *Subscription) Messages() <-chan core.Message { return s.ch }

// Err reports the terminal error after the stream ended. It is nil while
// the stream is live, after Cancel, and after a clean server close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel detaches the subscription from the connection and tells the
// server to stop streaming this room. It does not close Messages; callers
// observing the stream are expected to stop on their own context.
func (s *Subscription) Cancel() {
	s.stop.Do(func() {
		close(s.done)
		if s.detach != nil {
			s.detach()
		}
	})
}

// fail terminates the stream. Only the connection's read loop calls it,
// which keeps a single closer for the message channel.
func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.stop.Do(func() { close(s.done) })
	close(s.ch)
}
