package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatroom-client/internal/core"
)

// Repository is the room stream cache: at most one live subscription per
// room, shared by any number of local observers. Entries are removed when
// their stream terminates, so a later LiveChat for the same room opens a
// fresh subscription instead of reusing a dead one.
type Repository struct {
	source Subscriber
	log    *zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*RoomStream
}

// NewRepository builds an empty cache over the given stream source.
func NewRepository(source Subscriber, logger *zerolog.Logger) *Repository {
	return &Repository{
		source: source,
		log:    logger,
		rooms:  make(map[string]*RoomStream),
	}
}

// LiveChat returns the shared stream for a room, opening the underlying
// subscription on first use. Concurrent calls for the same room observe a
// single subscription.
func (r *Repository) LiveChat(ctx context.Context, room string) (*RoomStream, error) {
	if room == "" {
		return nil, core.NewError(core.ErrCodeBadRequest, "room is required")
	}

	r.mu.Lock()
	stream, ok := r.rooms[room]
	if !ok {
		stream = newRoomStream(room, r.log)
		s := stream
		stream.onTerminate = func() { r.remove(room, s) }
		r.rooms[room] = stream
	}
	r.mu.Unlock()

	if err := stream.start(ctx, r.source); err != nil {
		r.remove(room, stream)
		return nil, err
	}
	return stream, nil
}

// Close shuts down every cached stream. Used at application teardown.
func (r *Repository) Close() {
	r.mu.Lock()
	streams := make([]*RoomStream, 0, len(r.rooms))
	for _, stream := range r.rooms {
		streams = append(streams, stream)
	}
	r.mu.Unlock()

	for _, stream := range streams {
		stream.shutdown()
	}
}

func (r *Repository) remove(room string, stream *RoomStream) {
	r.mu.Lock()
	if current, ok := r.rooms[room]; ok && current == stream {
		delete(r.rooms, room)
	}
	r.mu.Unlock()
}

// RoomStream owns one room subscription and fans its accumulated
// snapshots out to observers. Every incoming message is appended to the
// history and the whole ordered history, not the delta, is re-emitted.
type RoomStream struct {
	room        string
	log         *zerolog.Logger
	onTerminate func()

	startOnce sync.Once
	startErr  error
	events    RoomEvents
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	mu        sync.Mutex
	history   []core.Message
	observers map[*observer]struct{}
	err       error
}

type observer struct {
	ch   chan []core.Message
	done chan struct{}
	once sync.Once
}

func newRoomStream(room string, logger *zerolog.Logger) *RoomStream {
	return &RoomStream{
		room:      room,
		log:       logger,
		done:      make(chan struct{}),
		observers: make(map[*observer]struct{}),
	}
}

// start opens the underlying subscription exactly once. Concurrent callers
// block until the first attempt finishes and share its result.
func (rs *RoomStream) start(ctx context.Context, source Subscriber) error {
	rs.startOnce.Do(func() {
		events, err := source.Subscribe(ctx, rs.room)
		if err != nil {
			rs.startErr = err
			close(rs.done)
			return
		}
		// The stream deliberately outlives the joining call: an exited
		// room stays warm in the cache for the next join.
		rs.ctx, rs.cancel = context.WithCancel(context.Background())
		rs.events = events
		go rs.run()
	})
	return rs.startErr
}

// Observe attaches a new observer. It receives every snapshot emitted
// after attaching; the returned func detaches it without touching the
// underlying subscription.
func (rs *RoomStream) Observe() (<-chan []core.Message, func()) {
	o := &observer{ch: make(chan []core.Message, 1), done: make(chan struct{})}

	rs.mu.Lock()
	if rs.observers == nil {
		rs.mu.Unlock()
		close(o.ch)
		return o.ch, func() {}
	}
	rs.observers[o] = struct{}{}
	rs.mu.Unlock()

	detach := func() {
		o.once.Do(func() { close(o.done) })
		rs.mu.Lock()
		if rs.observers != nil {
			delete(rs.observers, o)
		}
		rs.mu.Unlock()
	}
	return o.ch, detach
}

// Err reports why the stream terminated. Nil while live or after a clean
// shutdown.
func (rs *RoomStream) Err() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.err
}

// Room returns the room this stream is scoped to.
func (rs *RoomStream) Room() string { return rs.room }

func (rs *RoomStream) shutdown() {
	rs.startOnce.Do(func() {
		rs.startErr = core.ErrNotConnected
		close(rs.done)
	})
	if rs.cancel != nil {
		rs.cancel()
		<-rs.done
	}
}

func (rs *RoomStream) run() {
	defer rs.terminate()
	for {
		select {
		case msg, ok := <-rs.events.Messages():
			if !ok {
				return
			}
			rs.deliver(msg)
		case <-rs.ctx.Done():
			rs.events.Cancel()
			return
		}
	}
}

func (rs *RoomStream) deliver(msg core.Message) {
	rs.mu.Lock()
	rs.history = append(rs.history, msg)
	snapshot := make([]core.Message, len(rs.history))
	copy(snapshot, rs.history)
	targets := make([]*observer, 0, len(rs.observers))
	for o := range rs.observers {
		targets = append(targets, o)
	}
	rs.mu.Unlock()

	for _, o := range targets {
		select {
		case o.ch <- snapshot:
		case <-o.done:
		case <-rs.ctx.Done():
		}
	}
}

func (rs *RoomStream) terminate() {
	err := rs.events.Err()

	rs.mu.Lock()
	rs.err = err
	remaining := rs.observers
	rs.observers = nil
	rs.mu.Unlock()

	// Invalidate the cache entry first: by the time observers see their
	// channel close, a fresh LiveChat already opens a new subscription.
	if rs.onTerminate != nil {
		rs.onTerminate()
	}
	for o := range remaining {
		close(o.ch)
	}
	close(rs.done)
	if err != nil {
		rs.log.Warn().Err(err).Str("room", rs.room).Msg("room stream terminated")
	}
}
