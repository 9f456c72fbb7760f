package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/chatroom-client/internal/core"
	"github.com/vovakirdan/chatroom-client/internal/log"
)

type fakeEvents struct {
	ch chan core.Message

	mu       sync.Mutex
	err      error
	canceled bool
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{ch: make(chan core.Message, 16)}
}

func (f *fakeEvents) Messages() <-chan core.Message { return f.ch }

func (f *fakeEvents) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeEvents) Cancel() {
	f.mu.Lock()
	f.canceled = true
	f.mu.Unlock()
}

func (f *fakeEvents) wasCanceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

func (f *fakeEvents) emit(content, room, user string) core.Message {
	msg := core.NewMessage(content, room, user)
	f.ch <- msg
	return msg
}

// fail terminates the stream the way a broken connection would.
func (f *fakeEvents) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	close(f.ch)
}

type fakeSource struct {
	mu      sync.Mutex
	calls   map[string]int
	streams map[string]*fakeEvents
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:   make(map[string]int),
		streams: make(map[string]*fakeEvents),
	}
}

func (f *fakeSource) Subscribe(ctx context.Context, room string) (RoomEvents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[room]++
	ev := newFakeEvents()
	f.streams[room] = ev
	return ev, nil
}

func (f *fakeSource) callCount(room string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[room]
}

func (f *fakeSource) stream(room string) *fakeEvents {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[room]
}

func mustSnapshot(t *testing.T, ch <-chan []core.Message) []core.Message {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("observer channel closed")
		}
		return snap
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return nil
}

func mustClosed(t *testing.T, ch <-chan []core.Message) {
	t.Helper()
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for observer channel to close")
		}
	}
}

func TestLiveChatOpensOneSubscription(t *testing.T) {
	source := newFakeSource()
	repo := NewRepository(source, log.Nop())
	ctx := context.Background()

	const callers = 8
	streams := make([]*RoomStream, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stream, err := repo.LiveChat(ctx, "lobby")
			if err != nil {
				t.Errorf("live chat %d: %v", i, err)
				return
			}
			streams[i] = stream
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if streams[i] != streams[0] {
			t.Fatalf("caller %d got a different stream", i)
		}
	}
	if got := source.callCount("lobby"); got != 1 {
		t.Fatalf("expected 1 subscription, got %d", got)
	}
}

func TestSnapshotsAccumulateInArrivalOrder(t *testing.T) {
	source := newFakeSource()
	repo := NewRepository(source, log.Nop())

	stream, err := repo.LiveChat(context.Background(), "lobby")
	if err != nil {
		t.Fatalf("live chat: %v", err)
	}
	snapshots, detach := stream.Observe()
	defer detach()
	events := source.stream("lobby")

	first := events.emit("one", "lobby", "alice")
	snap := mustSnapshot(t, snapshots)
	if len(snap) != 1 || snap[0].ID != first.ID {
		t.Fatalf("unexpected first snapshot: %+v", snap)
	}

	second := events.emit("two", "lobby", "bob")
	snap = mustSnapshot(t, snapshots)
	if len(snap) != 2 || snap[0].ID != first.ID || snap[1].ID != second.ID {
		t.Fatalf("unexpected second snapshot: %+v", snap)
	}
}

func TestObserversShareOneStream(t *testing.T) {
	source := newFakeSource()
	repo := NewRepository(source, log.Nop())

	stream, err := repo.LiveChat(context.Background(), "lobby")
	if err != nil {
		t.Fatalf("live chat: %v", err)
	}
	firstObs, detachFirst := stream.Observe()
	secondObs, detachSecond := stream.Observe()
	defer detachSecond()
	events := source.stream("lobby")

	events.emit("hi", "lobby", "alice")
	if got := mustSnapshot(t, firstObs); len(got) != 1 {
		t.Fatalf("first observer snapshot: %+v", got)
	}
	if got := mustSnapshot(t, secondObs); len(got) != 1 {
		t.Fatalf("second observer snapshot: %+v", got)
	}
	if got := source.callCount("lobby"); got != 1 {
		t.Fatalf("expected shared subscription, got %d", got)
	}

	detachFirst()
	events.emit("again", "lobby", "alice")
	if got := mustSnapshot(t, secondObs); len(got) != 2 {
		t.Fatalf("second observer after detach: %+v", got)
	}
	select {
	case snap, ok := <-firstObs:
		if ok {
			t.Fatalf("detached observer received snapshot: %+v", snap)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTerminalFailureInvalidatesCache(t *testing.T) {
	source := newFakeSource()
	repo := NewRepository(source, log.Nop())
	ctx := context.Background()

	stream, err := repo.LiveChat(ctx, "lobby")
	if err != nil {
		t.Fatalf("live chat: %v", err)
	}
	snapshots, detach := stream.Observe()
	defer detach()

	boom := errors.New("connection reset")
	source.stream("lobby").fail(boom)

	mustClosed(t, snapshots)
	if !errors.Is(stream.Err(), boom) {
		t.Fatalf("expected terminal error, got %v", stream.Err())
	}

	fresh, err := repo.LiveChat(ctx, "lobby")
	if err != nil {
		t.Fatalf("live chat after failure: %v", err)
	}
	if fresh == stream {
		t.Fatal("expected a fresh stream after terminal failure")
	}
	if got := source.callCount("lobby"); got != 2 {
		t.Fatalf("expected a new subscription, got %d calls", got)
	}

	// the fresh stream starts from an empty history
	obs, od := fresh.Observe()
	defer od()
	source.stream("lobby").emit("fresh", "lobby", "alice")
	if snap := mustSnapshot(t, obs); len(snap) != 1 || snap[0].Content != "fresh" {
		t.Fatalf("unexpected fresh snapshot: %+v", snap)
	}
}

func TestSubscribeFailurePropagatesToAllCallers(t *testing.T) {
	boom := core.NewError(core.ErrCodeConnection, "no route")
	repo := NewRepository(failingSource{err: boom}, log.Nop())

	if _, err := repo.LiveChat(context.Background(), "lobby"); !core.HasCode(err, core.ErrCodeConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	// entry must not stay cached as permanently broken
	if _, err := repo.LiveChat(context.Background(), "lobby"); !core.HasCode(err, core.ErrCodeConnection) {
		t.Fatalf("expected connection error on retry, got %v", err)
	}
}

type failingSource struct{ err error }

func (f failingSource) Subscribe(ctx context.Context, room string) (RoomEvents, error) {
	return nil, f.err
}

func TestRepositoryCloseCancelsStreams(t *testing.T) {
	source := newFakeSource()
	repo := NewRepository(source, log.Nop())

	stream, err := repo.LiveChat(context.Background(), "lobby")
	if err != nil {
		t.Fatalf("live chat: %v", err)
	}
	snapshots, detach := stream.Observe()
	defer detach()

	repo.Close()

	mustClosed(t, snapshots)
	if !source.stream("lobby").wasCanceled() {
		t.Fatal("expected underlying subscription to be canceled")
	}
	if stream.Err() != nil {
		t.Fatalf("clean shutdown should not report an error: %v", stream.Err())
	}
}
