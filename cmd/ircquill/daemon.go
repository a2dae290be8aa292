package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/matt0x6f/ircquill/internal/config"
	"github.com/matt0x6f/ircquill/internal/core"
	"github.com/matt0x6f/ircquill/internal/irc"
	"github.com/matt0x6f/ircquill/internal/logger"
	"github.com/matt0x6f/ircquill/internal/server"
	"github.com/matt0x6f/ircquill/internal/storage"
)

const (
	reconnectBase = 5 * time.Second
	reconnectMax  = 5 * time.Minute
)

func runDaemon(ctx context.Context, cfgPath, listenOverride, dataDirOverride string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if listenOverride != "" {
		cfg.Listen = listenOverride
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := core.New(cfg, store)
	for _, name := range c.Users() {
		user, _ := c.User(name)
		for id, ncfg := range user.NetworkConfigs() {
			go dialLoop(ctx, user, id, ncfg)
		}
	}

	go c.Run(ctx)
	return server.New(c, cfg.Listen).ListenAndServe(ctx)
}

// dialLoop keeps one network connected, redialing with capped
// exponential backoff whenever the connection dies.
func dialLoop(ctx context.Context, user *core.User, networkID string, ncfg config.Network) {
	backoff := reconnectBase
	for {
		conn, err := irc.Dial(ctx, networkID, ncfg.Server)
		if err != nil {
			logger.Log.Error().
				Err(err).
				Str("network", networkID).
				Dur("retry_in", backoff).
				Msg("Failed to connect to IRC server")
		} else {
			backoff = reconnectBase
			user.Enqueue(func() { user.RegisterConn(networkID, conn) })
			conn.Run(func(msg ircmsg.Message) {
				user.Enqueue(func() { user.HandleIRCEvent(networkID, msg) })
			})
			user.Enqueue(func() { user.HandleDisconnect(networkID) })
			logger.Log.Info().
				Str("network", networkID).
				Dur("retry_in", backoff).
				Msg("Connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}
