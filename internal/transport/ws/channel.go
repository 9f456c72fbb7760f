package ws

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatroom-client/internal/config"
	"github.com/vovakirdan/chatroom-client/internal/core"
	"github.com/vovakirdan/chatroom-client/internal/proto"
)

// Channel owns the one connection to the chat service for the lifetime of
// the process. The first Await starts establishment in the background;
// every caller, first or later, concurrent or sequential, observes the
// same in-flight-or-completed result. A failed establishment is remembered
// and returned to all callers; there is no retry at this layer.
type Channel struct {
	cfg config.Config
	log *zerolog.Logger

	once   sync.Once
	ready  chan struct{}
	cancel context.CancelFunc
	client *Client
	err    error
}

// NewChannel prepares a lazy connection. No network activity happens until
// the first Await.
func NewChannel(cfg config.Config, logger *zerolog.Logger) *Channel {
	return &Channel{cfg: cfg, log: logger, ready: make(chan struct{})}
}

// Await returns the service client once the connection is established,
// triggering establishment on first use.
func (ch *Channel) Await(ctx context.Context) (*Client, error) {
	ch.once.Do(func() { go ch.establish() })

	select {
	case <-ch.ready:
		return ch.client, ch.err
	case <-ctx.Done():
		return nil, core.WrapError(core.ErrCodeConnection, "awaiting connection", ctx.Err())
	}
}

// Close tears down the connection, or marks the channel dead if it was
// never established.
func (ch *Channel) Close() error {
	ch.once.Do(func() {
		ch.err = core.WrapError(core.ErrCodeConnection, "channel closed", core.ErrNotConnected)
		close(ch.ready)
	})
	<-ch.ready
	if ch.cancel != nil {
		ch.cancel()
	}
	if ch.client != nil {
		return ch.client.Close()
	}
	return nil
}

func (ch *Channel) establish() {
	defer close(ch.ready)

	if _, err := url.Parse(ch.cfg.ServerURL); err != nil || ch.cfg.ServerURL == "" {
		ch.err = core.WrapError(core.ErrCodeConnection, "invalid server url "+ch.cfg.ServerURL, err)
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ch.cancel = cancel

	dialCtx := runCtx
	if ch.cfg.DialTimeout > 0 {
		var dialCancel context.CancelFunc
		dialCtx, dialCancel = context.WithTimeout(runCtx, ch.cfg.DialTimeout)
		defer dialCancel()
	}

	wsConn, _, err := websocket.Dial(dialCtx, ch.cfg.ServerURL, nil)
	if err != nil {
		ch.err = core.WrapError(core.ErrCodeConnection, "dial "+ch.cfg.ServerURL, err)
		return
	}

	c := newConn(wsConn, ch.cfg.ReadTimeout, ch.cfg.WriteTimeout)

	hello, err := json.Marshal(proto.HelloData{
		User:     ch.cfg.User,
		Token:    ch.cfg.Token,
		Protocol: proto.ProtocolVersion,
	})
	if err != nil {
		ch.err = core.WrapError(core.ErrCodeConnection, "marshal hello", err)
		_ = c.Close(websocket.StatusInternalError, "handshake error")
		return
	}
	if err := c.Write(dialCtx, proto.Inbound{Type: proto.InboundTypeHello, Data: hello}); err != nil {
		ch.err = core.WrapError(core.ErrCodeConnection, "hello handshake", err)
		_ = c.Close(websocket.StatusInternalError, "handshake error")
		return
	}

	ch.client = newClient(c, ch.log, ch.cfg.SendTimeout)
	ch.client.run(runCtx)
	ch.log.Info().Str("url", ch.cfg.ServerURL).Str("user", ch.cfg.User).Msg("connected")
}
