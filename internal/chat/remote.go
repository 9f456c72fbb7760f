package chat

import (
	"context"

	"github.com/vovakirdan/chatroom-client/internal/core"
	"github.com/vovakirdan/chatroom-client/internal/transport/ws"
)

// RoomEvents is one live event stream for a room as seen by this package.
type RoomEvents interface {
	Messages() <-chan core.Message
	Err() error
	Cancel()
}

// Subscriber opens room streams.
type Subscriber interface {
	Subscribe(ctx context.Context, room string) (RoomEvents, error)
}

// Sender submits single messages for delivery.
type Sender interface {
	Send(ctx context.Context, msg core.Message) error
}

// RemoteDataSource adapts the lazily-connecting transport channel to the
// Subscriber and Sender contracts. Every operation awaits the shared
// connection first, so the first room join or send is what actually
// triggers the dial.
type RemoteDataSource struct {
	channel *ws.Channel
}

// NewRemoteDataSource wraps a transport channel.
func NewRemoteDataSource(channel *ws.Channel) *RemoteDataSource {
	return &RemoteDataSource{channel: channel}
}

// Subscribe opens the live stream for a room on the shared connection.
func (r *RemoteDataSource) Subscribe(ctx context.Context, room string) (RoomEvents, error) {
	client, err := r.channel.Await(ctx)
	if err != nil {
		return nil, err
	}
	return client.Subscribe(ctx, room)
}

// Send submits one message on the shared connection. A connection that
// never came up surfaces as a send failure to the caller.
func (r *RemoteDataSource) Send(ctx context.Context, msg core.Message) error {
	client, err := r.channel.Await(ctx)
	if err != nil {
		return core.WrapError(core.ErrCodeSend, "no connection", err)
	}
	return client.Send(ctx, msg)
}
