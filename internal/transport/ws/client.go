package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatroom-client/internal/core"
	"github.com/vovakirdan/chatroom-client/internal/proto"
)

// Client is the service client speaking the chat wire protocol over an
// established connection. It owns the read/write loops and is the only
// place translating between wire envelopes and core.Message.
type Client struct {
	conn        *conn
	log         *zerolog.Logger
	sendTimeout time.Duration

	writeCh chan proto.Inbound
	done    chan struct{}
	failed  sync.Once

	mu       sync.Mutex
	closed   bool
	closeErr error
	subs     map[string]*Subscription
	pending  map[string]chan error
}

func newClient(c *conn, logger *zerolog.Logger, sendTimeout time.Duration) *Client {
	return &Client{
		conn:        c,
		log:         logger,
		sendTimeout: sendTimeout,
		writeCh:     make(chan proto.Inbound, 16),
		done:        make(chan struct{}),
		subs:        make(map[string]*Subscription),
		pending:     make(map[string]chan error),
	}
}

// run starts the read and write loops. Called once by the Channel after
// the handshake.
func (c *Client) run(ctx context.Context) {
	go c.readLoop(ctx)
	go c.writeLoop(ctx)
}

// Subscribe opens the server-side event stream for a room. Exactly one
// live subscription may exist per room; the multiplexing of several local
// observers onto it happens a layer above.
func (c *Client) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	if room == "" {
		return nil, core.NewError(core.ErrCodeBadRequest, "room is required")
	}

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, core.WrapError(core.ErrCodeConnection, "connection closed", err)
	}
	if _, exists := c.subs[room]; exists {
		c.mu.Unlock()
		return nil, core.NewError(core.ErrCodeAlreadySubscribed, "room already has a live subscription: "+room)
	}
	sub := &Subscription{
		room: room,
		ch:   make(chan core.Message, 16),
		done: make(chan struct{}),
	}
	sub.detach = func() { c.unsubscribe(room, sub) }
	c.subs[room] = sub
	c.mu.Unlock()

	data, err := json.Marshal(proto.JoinData{Room: room})
	if err != nil {
		c.dropSub(room, sub)
		return nil, core.WrapError(core.ErrCodeSubscription, "marshal join", err)
	}
	if err := c.enqueue(ctx, proto.Inbound{Type: proto.InboundTypeJoin, Data: data}); err != nil {
		c.dropSub(room, sub)
		return nil, core.WrapError(core.ErrCodeSubscription, "join room "+room, err)
	}
	return sub, nil
}

// Send submits one message and waits for the server acknowledgment,
// correlated by message ID. Failures surface as send_error; there is no
// automatic retry.
func (c *Client) Send(ctx context.Context, msg core.Message) error {
	if msg.Room == "" || msg.Content == "" {
		return core.NewError(core.ErrCodeBadRequest, "room and content are required")
	}

	ackCh := make(chan error, 1)
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return core.WrapError(core.ErrCodeSend, "connection closed", err)
	}
	c.pending[msg.ID] = ackCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(messageToWire(msg))
	if err != nil {
		return core.WrapError(core.ErrCodeSend, "marshal message", err)
	}
	if err := c.enqueue(ctx, proto.Inbound{Type: proto.InboundTypeMsg, Data: data}); err != nil {
		return core.WrapError(core.ErrCodeSend, "submit message", err)
	}

	var timeout <-chan time.Time
	if c.sendTimeout > 0 {
		timer := time.NewTimer(c.sendTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ackErr := <-ackCh:
		return ackErr
	case <-ctx.Done():
		return core.WrapError(core.ErrCodeSend, "canceled waiting for ack", ctx.Err())
	case <-timeout:
		return core.NewError(core.ErrCodeSend, "timed out waiting for ack")
	case <-c.done:
		return core.WrapError(core.ErrCodeSend, "connection lost", c.terminalErr())
	}
}

// Close tears the websocket down. The read loop observes the closure and
// terminates every live subscription and pending send.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client close")
}

func (c *Client) enqueue(ctx context.Context, in proto.Inbound) error {
	select {
	case c.writeCh <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return core.ErrNotConnected
	}
}

func (c *Client) unsubscribe(room string, sub *Subscription) {
	c.mu.Lock()
	if current, ok := c.subs[room]; ok && current == sub {
		delete(c.subs, room)
	}
	c.mu.Unlock()

	data, err := json.Marshal(proto.JoinData{Room: room})
	if err != nil {
		return
	}
	// Best effort: a full write queue means the connection is on its way
	// down anyway.
	select {
	case c.writeCh <- proto.Inbound{Type: proto.InboundTypeLeave, Data: data}:
	default:
	}
}

func (c *Client) dropSub(room string, sub *Subscription) {
	c.mu.Lock()
	if current, ok := c.subs[room]; ok && current == sub {
		delete(c.subs, room)
	}
	c.mu.Unlock()
}

func (c *Client) terminalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		var out proto.Outbound
		if err := c.conn.Read(ctx, &out); err != nil {
			if isExpectedDisconnect(ctx, err) {
				c.fail(nil)
			} else {
				c.log.Warn().Err(err).Msg("read loop exit")
				c.fail(core.WrapError(core.ErrCodeConnection, "stream read failed", err))
			}
			return
		}
		c.handle(ctx, out)
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	for {
		select {
		case in := <-c.writeCh:
			if err := c.conn.Write(ctx, in); err != nil {
				c.log.Warn().Err(err).Msg("write loop exit")
				// Closing the socket makes the read loop fail and run the
				// single teardown path.
				_ = c.conn.Close(websocket.StatusInternalError, "write error")
				return
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) handle(ctx context.Context, out proto.Outbound) {
	switch out.Type {
	case proto.OutboundTypeAck:
		var ack proto.AckData
		if err := json.Unmarshal(out.Data, &ack); err != nil {
			c.log.Warn().Err(err).Msg("malformed ack")
			return
		}
		c.mu.Lock()
		ackCh, ok := c.pending[ack.MessageID]
		if ok {
			delete(c.pending, ack.MessageID)
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		if ack.Error != nil {
			ackCh <- core.WrapError(core.ErrCodeSend, "rejected by server", ack.Error)
		} else {
			ackCh <- nil
		}
	case proto.OutboundTypeEvent:
		if out.Event != proto.EventTypeMessage {
			return
		}
		var ev proto.EventMessage
		if err := json.Unmarshal(out.Data, &ev); err != nil {
			c.log.Warn().Err(err).Msg("malformed message event")
			return
		}
		c.mu.Lock()
		sub := c.subs[ev.Room]
		c.mu.Unlock()
		if sub == nil {
			return
		}
		select {
		case sub.ch <- messageFromWire(ev):
		case <-sub.done:
		case <-ctx.Done():
		}
	case proto.OutboundTypeError:
		if out.Error != nil {
			c.log.Warn().Str("code", out.Error.Code).Str("msg", out.Error.Msg).Msg("server error")
		}
	}
}

// fail runs the single teardown path: it is only ever invoked from the
// read loop goroutine, which is also the sole sender on subscription
// channels, so closing them here is safe.
func (c *Client) fail(err error) {
	c.failed.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.closeErr = err
		subs := c.subs
		pending := c.pending
		c.subs = make(map[string]*Subscription)
		c.pending = make(map[string]chan error)
		c.mu.Unlock()

		close(c.done)
		for _, sub := range subs {
			c.log.Debug().Str("room", sub.Room()).Msg("closing subscription")
			if err != nil {
				sub.fail(core.WrapError(core.ErrCodeSubscription, "stream terminated", err))
			} else {
				sub.fail(nil)
			}
		}
		for _, ackCh := range pending {
			ackCh <- core.WrapError(core.ErrCodeSend, "connection lost", err)
		}
		_ = c.conn.Close(websocket.StatusNormalClosure, "teardown")
	})
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}

// messageToWire and messageFromWire are the only wire<->domain mapping in
// the codebase; everything above this layer is wire-format-agnostic.
func messageToWire(msg core.Message) proto.MsgData {
	return proto.MsgData{
		MessageID: msg.ID,
		Room:      msg.Room,
		User:      msg.User,
		Content:   msg.Content,
		TS:        msg.SentAt.UnixMilli(),
	}
}

func messageFromWire(ev proto.EventMessage) core.Message {
	return core.Message{
		ID:      ev.MessageID,
		Room:    ev.Room,
		User:    ev.User,
		Content: ev.Content,
		SentAt:  time.UnixMilli(ev.TS),
	}
}
