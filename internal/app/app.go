// Package app assembles the client: config, credential store, session
// manager, room roster, and the realtime channel, with a defined lifecycle so
// tests can build fresh instances instead of sharing globals.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/medihub/medihub-go/internal/api"
	"github.com/medihub/medihub-go/internal/chat"
	"github.com/medihub/medihub-go/internal/config"
	"github.com/medihub/medihub-go/internal/realtime"
	"github.com/medihub/medihub-go/internal/session"
	"github.com/medihub/medihub-go/internal/storage"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   storage.Store
	Session *session.Manager
	Roster  *chat.Roster
	Channel *realtime.Channel
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	httpClient := api.NewHTTPClient(cfg.HTTPTimeout, nil)
	sess := session.NewManager(cfg.APIBaseURL, httpClient, store, logger)
	roster := chat.NewRoster(sess.APIClient(), logger)
	channel := realtime.NewChannel(cfg.WSURL, sess, sess.APIClient(), roster, logger, realtime.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectDelay:    cfg.ReconnectDelay,
	})
	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Session: sess,
		Roster:  roster,
		Channel: channel,
	}, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return storage.NewRedisStore(client, ""), nil
	}
	store, err := storage.NewGormStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.StorePath, err)
	}
	return store, nil
}

// Close disconnects the realtime channel and releases the store.
func (a *App) Close(_ context.Context) error {
	a.Channel.Disconnect()
	return a.Store.Close()
}
