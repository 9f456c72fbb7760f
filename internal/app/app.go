package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatroom-client/internal/chat"
	"github.com/vovakirdan/chatroom-client/internal/config"
	"github.com/vovakirdan/chatroom-client/internal/transport/ws"
)

// App wires the transport channel, room stream cache and session together.
// The connection itself is lazy: nothing is dialed until the session first
// needs the network.
type App struct {
	channel *ws.Channel
	repo    *chat.Repository
	session *chat.Session
	log     *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	channel := ws.NewChannel(cfg, logger)
	remote := chat.NewRemoteDataSource(channel)
	repo := chat.NewRepository(remote, logger)
	session := chat.NewSession(repo, remote, logger)

	return &App{
		channel: channel,
		repo:    repo,
		session: session,
		log:     logger,
	}
}

// Session exposes the presentation boundary.
func (a *App) Session() *chat.Session {
	return a.session
}

// Run blocks until context cancellation, then releases resources.
func (a *App) Run(ctx context.Context) error {
	<-ctx.Done()
	a.Close()
	return nil
}

// Close shuts down room streams first, then the connection under them.
func (a *App) Close() {
	a.repo.Close()
	if err := a.channel.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close channel")
	} else {
		a.log.Info().Msg("channel closed")
	}
}
