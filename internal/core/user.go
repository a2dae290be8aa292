package core

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/gen2brain/beeep"
	"golang.org/x/crypto/bcrypt"

	"github.com/matt0x6f/ircquill/internal/config"
	"github.com/matt0x6f/ircquill/internal/irc"
	"github.com/matt0x6f/ircquill/internal/logger"
	"github.com/matt0x6f/ircquill/internal/proto"
	"github.com/matt0x6f/ircquill/internal/storage"
	"github.com/matt0x6f/ircquill/internal/update"
)

// eventQueueDepth bounds how much work can be pending on a user's
// goroutine before enqueuers block.
const eventQueueDepth = 256

// User is one bouncer account: its networks, its attached clients,
// and the single goroutine that owns all of them. Everything that
// mutates a network or buffer runs as a closure on the events queue.
type User struct {
	name     string
	cfg      config.User
	store    *storage.Storage
	networks map[string]*irc.Network
	clients  map[*ClientSession]struct{}
	events   chan func()
}

// userCatalog scopes the shared buffer catalog to one user.
type userCatalog struct {
	store *storage.Storage
	user  string
}

func (c userCatalog) RememberBuffer(networkID string, target proto.Target) {
	c.store.RememberBuffer(c.user, networkID, target)
}

func newUser(name string, cfg config.User, dataDir string, store *storage.Storage) *User {
	u := &User{
		name:     name,
		cfg:      cfg,
		store:    store,
		networks: make(map[string]*irc.Network, len(cfg.Networks)),
		clients:  make(map[*ClientSession]struct{}),
		events:   make(chan func(), eventQueueDepth),
	}
	catalog := userCatalog{store: store, user: name}
	for id, ncfg := range cfg.Networks {
		logRoot := filepath.Join(dataDir, id)
		net := irc.NewNetwork(id, ncfg, logRoot, catalog)
		for _, target := range store.Buffers(name, id) {
			net.RestoreBuffer(target)
		}
		u.networks[id] = net
	}
	return u
}

// Name returns the account name.
func (u *User) Name() string {
	return u.name
}

// NetworkConfigs returns the user's configured networks, keyed by
// network id. The dialer uses this to establish connections.
func (u *User) NetworkConfigs() map[string]config.Network {
	return u.cfg.Networks
}

// Authenticate checks a client password against the stored hash.
func (u *User) Authenticate(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.cfg.Password), []byte(password))
	return err == nil
}

// Run processes the user's event queue until the context is canceled.
// This goroutine is the only one allowed to touch the user's networks,
// buffers, and client set.
func (u *User) Run(ctx context.Context) {
	logger.Log.Info().Str("user", u.name).Msg("User loop started")
	for {
		select {
		case fn := <-u.events:
			fn()
		case <-ctx.Done():
			logger.Log.Info().Str("user", u.name).Msg("User loop stopped")
			return
		}
	}
}

// Enqueue schedules fn to run on the user's goroutine.
func (u *User) Enqueue(fn func()) {
	u.events <- fn
}

// RegisterConn hands a freshly dialed connection to a network. Must
// run on the user's goroutine.
func (u *User) RegisterConn(networkID string, sender irc.Sender) {
	net, ok := u.networks[networkID]
	if !ok {
		logger.Log.Error().
			Str("user", u.name).
			Str("network", networkID).
			Msg("Connection registered for unknown network")
		return
	}
	h := update.NewBaseHandle[proto.CoreMsg]()
	net.RegisterConn(sender, netHandle(h, networkID))
	u.flush(h)
}

// HandleDisconnect records a dropped connection. Must run on the
// user's goroutine.
func (u *User) HandleDisconnect(networkID string) {
	net, ok := u.networks[networkID]
	if !ok || !net.Connected() {
		return
	}
	h := update.NewBaseHandle[proto.CoreMsg]()
	net.Disconnect(netHandle(h, networkID))
	u.flush(h)
}

// HandleIRCEvent processes one decoded server message. Must run on
// the user's goroutine.
func (u *User) HandleIRCEvent(networkID string, msg ircmsg.Message) {
	net, ok := u.networks[networkID]
	if !ok {
		return
	}
	h := update.NewBaseHandle[proto.CoreMsg]()
	net.HandleMessage(msg, netHandle(h, networkID))
	u.flush(h)
}

// netHandle wraps a core-level handle into the network-level handle a
// network emits events through.
func netHandle(h update.Handle[proto.CoreMsg], networkID string) update.Handle[proto.CoreNetMsg] {
	return update.Wrap(h, func(msg proto.CoreNetMsg) proto.CoreMsg {
		return proto.NetMsg(networkID, msg)
	})
}

// flush delivers everything an update pass produced: events broadcast
// to all attached clients, alerts through the alert chain. New-buffer
// announcements also seed scrollback cursors for attached clients.
func (u *User) flush(h *update.BaseHandle[proto.CoreMsg]) {
	for _, msg := range h.TakeMessages() {
		u.seedCursors(msg)
		for c := range u.clients {
			c.deliver(msg)
		}
	}
	for _, alert := range h.TakeAlerts() {
		u.postAlert(alert)
	}
}

// seedCursors creates scrollback cursors when a message tells clients
// about buffers they have not seen yet. Buffer announcements are only
// emitted at creation, when the front is still empty, so the cursor
// starts at zero; lines pushed later in the same update pass reach the
// client as live broadcasts, not as scrollback.
func (u *User) seedCursors(msg proto.CoreMsg) {
	if msg.Type != proto.CoreNet || msg.Net == nil || msg.Net.Type != proto.NetBuffers {
		return
	}
	for _, info := range msg.Net.Buffers {
		for c := range u.clients {
			c.seedCursor(msg.NetworkID, info.Target, 0)
		}
	}
}

// postAlert routes one alert: attached clients receive it directly;
// otherwise it is queued for the next attach and surfaced on the
// desktop, through the user's alert command when one is configured.
func (u *User) postAlert(alert proto.Alert) {
	if len(u.clients) > 0 {
		msg := proto.CoreMsg{Type: proto.CoreAlerts, Alerts: []proto.Alert{alert}}
		for c := range u.clients {
			c.deliver(msg)
		}
		return
	}

	u.store.QueueAlert(u.name, alert)
	if u.cfg.AlertCmd != "" {
		u.runAlertCmd(alert)
		return
	}
	if err := beeep.Notify("ircquill", alert.Message, ""); err != nil {
		logger.Log.Warn().
			Err(err).
			Str("user", u.name).
			Msg("Desktop notification failed")
	}
}

// runAlertCmd runs the user's alert command with %m replaced by the
// alert text. The command runs detached so a slow notifier cannot
// stall the user loop.
func (u *User) runAlertCmd(alert proto.Alert) {
	cmdLine := strings.ReplaceAll(u.cfg.AlertCmd, "%m", alert.Message)
	cmd := exec.Command("/bin/sh", "-c", cmdLine)
	go func() {
		if err := cmd.Run(); err != nil {
			logger.Log.Warn().
				Err(err).
				Str("user", u.name).
				Msg("Alert command failed")
		}
	}()
}

// Attach registers a client, tells it about the user's networks, and
// drains any alerts queued while no client was attached. Must run on
// the user's goroutine.
func (u *User) Attach(c *ClientSession) {
	u.clients[c] = struct{}{}
	logger.Log.Info().
		Str("user", u.name).
		Int("clients", len(u.clients)).
		Msg("Client attached")

	infos := make([]proto.NetInfo, 0, len(u.networks))
	for id, net := range u.networks {
		info := net.Info()
		infos = append(infos, info)
		for _, binfo := range info.Buffers {
			if buf, ok := net.GetBuffer(binfo.Target); ok {
				c.seedCursor(id, binfo.Target, buf.FrontLen())
			}
		}
	}
	c.deliver(proto.CoreMsg{Type: proto.CoreNetworks, Networks: infos})

	if queued := u.store.TakeAlerts(u.name); len(queued) > 0 {
		c.deliver(proto.CoreMsg{Type: proto.CoreAlerts, Alerts: queued})
	}
}

// Detach unregisters a client. Must run on the user's goroutine.
func (u *User) Detach(c *ClientSession) {
	delete(u.clients, c)
	logger.Log.Info().
		Str("user", u.name).
		Int("clients", len(u.clients)).
		Msg("Client detached")
}

// HandleClientMsg processes one request from an attached client. Must
// run on the user's goroutine. Failures are reported back to the
// requesting client only.
func (u *User) HandleClientMsg(c *ClientSession, msg proto.ClientMsg) {
	switch msg.Type {
	case proto.ClientListNets:
		infos := make([]proto.NetInfo, 0, len(u.networks))
		for _, net := range u.networks {
			infos = append(infos, net.Info())
		}
		c.deliver(proto.CoreMsg{Type: proto.CoreNetworks, Networks: infos})

	case proto.ClientListGlobalBufs:
		// No global buffers exist yet; every buffer belongs to a network.
		c.deliver(proto.CoreMsg{Type: proto.CoreGlobalBufs, GlobalBufs: []proto.BufInfo{}})

	case proto.ClientNet:
		if msg.Net == nil {
			logger.Log.Warn().Str("user", u.name).Msg("Network request with no body")
			return
		}
		net, ok := u.networks[msg.NetworkID]
		if !ok {
			c.deliver(proto.StatusMsg("unknown network " + msg.NetworkID))
			return
		}
		u.handleNetRequest(c, net, *msg.Net)

	default:
		logger.Log.Warn().
			Str("user", u.name).
			Str("type", msg.Type).
			Msg("Unknown client request")
	}
}

func (u *User) handleNetRequest(c *ClientSession, net *irc.Network, msg proto.ClientNetMsg) {
	h := update.NewBaseHandle[proto.CoreMsg]()
	nh := netHandle(h, net.ID())

	var err error
	switch msg.Type {
	case proto.ClientJoin:
		err = net.SendJoinChannel(msg.Channel, nh)
	case proto.ClientPart:
		err = net.SendPartChannel(msg.Channel, msg.Message, nh)
	case proto.ClientNick:
		err = net.SendChangeNick(msg.Nick, nh)
	case proto.ClientBuf:
		if msg.Target == nil || msg.Buf == nil {
			logger.Log.Warn().Str("user", u.name).Msg("Buffer request with no target or body")
			return
		}
		u.handleBufRequest(c, net, *msg.Target, *msg.Buf, nh)
	default:
		logger.Log.Warn().
			Str("user", u.name).
			Str("type", msg.Type).
			Msg("Unknown network request")
	}
	if err != nil {
		c.deliver(proto.StatusMsg(err.Error()))
	}
	u.flush(h)
}

func (u *User) handleBufRequest(c *ClientSession, net *irc.Network, target proto.Target, msg proto.ClientBufMsg, nh update.Handle[proto.CoreNetMsg]) {
	switch msg.Type {
	case proto.ClientSend:
		if err := net.SendChatMessage(target, msg.Body, msg.Kind, nh); err != nil {
			c.deliver(proto.StatusMsg(err.Error()))
		}
	case proto.ClientFetchLogs:
		u.fetchLogs(c, net, target, msg.Count)
	default:
		logger.Log.Warn().
			Str("user", u.name).
			Str("type", msg.Type).
			Msg("Unknown buffer request")
	}
}

// fetchLogs sends the requesting client up to count lines of history
// older than what it has already been sent, newest first, advancing
// its scrollback cursor past them.
func (u *User) fetchLogs(c *ClientSession, net *irc.Network, target proto.Target, count int) {
	if count <= 0 {
		return
	}
	buf, ok := net.GetBuffer(target)
	if !ok {
		c.deliver(proto.StatusMsg("unknown buffer " + target.DisplayName()))
		return
	}

	cursor := c.cursor(net.ID(), target, buf.FrontLen())
	lines := make([]proto.Line, 0, count)
	index := cursor.lastSentIndex
	for len(lines) < count {
		line, ok := buf.GetLine(index - 1)
		if !ok {
			break
		}
		lines = append(lines, line)
		index--
	}
	cursor.lastSentIndex = index
	c.deliver(proto.NetMsg(net.ID(), proto.BufMsg(target, proto.ScrollbackMsg(lines))))
}
