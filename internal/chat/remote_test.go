package chat

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/chatroom-client/internal/config"
	"github.com/vovakirdan/chatroom-client/internal/core"
	"github.com/vovakirdan/chatroom-client/internal/log"
	"github.com/vovakirdan/chatroom-client/internal/transport/ws"
)

func deadChannel() *ws.Channel {
	cfg := config.Default()
	cfg.ServerURL = "ws://127.0.0.1:1/ws"
	cfg.DialTimeout = 300 * time.Millisecond
	return ws.NewChannel(cfg, log.Nop())
}

func TestSendWithoutConnectionIsSendError(t *testing.T) {
	remote := NewRemoteDataSource(deadChannel())

	err := remote.Send(context.Background(), core.NewMessage("hi", "lobby", "alice"))
	if !core.HasCode(err, core.ErrCodeSend) {
		t.Fatalf("expected send_error, got %v", err)
	}
}

func TestSubscribeWithoutConnectionIsConnectionError(t *testing.T) {
	remote := NewRemoteDataSource(deadChannel())

	_, err := remote.Subscribe(context.Background(), "lobby")
	if !core.HasCode(err, core.ErrCodeConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestSessionSurvivesSendFailure(t *testing.T) {
	source := newFakeSource()
	repo := NewRepository(source, log.Nop())
	t.Cleanup(repo.Close)
	session := NewSession(repo, NewRemoteDataSource(deadChannel()), log.Nop())

	if err := session.JoinRoom(context.Background(), "lobby", "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	err := session.SendMessage(context.Background(), "hi", "lobby", "alice")
	if !core.HasCode(err, core.ErrCodeSend) {
		t.Fatalf("expected send_error, got %v", err)
	}
	// the failed send leaves the session mode intact
	if session.Mode() != core.ModeInRoom {
		t.Fatalf("unexpected mode after failed send: %v", session.Mode())
	}
}
