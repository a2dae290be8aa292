// Package core ties the bouncer together: it owns one User per
// configured account, each running a single goroutine that serializes
// every mutation of that user's networks and buffers.
package core

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/matt0x6f/ircquill/internal/config"
	"github.com/matt0x6f/ircquill/internal/storage"
)

// Core is the root of the running bouncer.
type Core struct {
	users map[string]*User
}

// New builds the core from configuration, recreating each user's
// cataloged buffers so their history is pageable immediately.
func New(cfg *config.Config, store *storage.Storage) *Core {
	users := make(map[string]*User, len(cfg.Users))
	for name, ucfg := range cfg.Users {
		dataDir := filepath.Join(cfg.DataDir, name)
		users[name] = newUser(name, ucfg, dataDir, store)
	}
	return &Core{users: users}
}

// User returns the named user's state.
func (c *Core) User(name string) (*User, error) {
	u, ok := c.users[name]
	if !ok {
		return nil, fmt.Errorf("unknown user %q", name)
	}
	return u, nil
}

// Run starts every user's owner goroutine and blocks until the
// context is canceled.
func (c *Core) Run(ctx context.Context) {
	for _, u := range c.users {
		go u.Run(ctx)
	}
	<-ctx.Done()
}

// Users returns the names of all configured users.
func (c *Core) Users() []string {
	names := make([]string, 0, len(c.users))
	for name := range c.users {
		names = append(names, name)
	}
	return names
}
