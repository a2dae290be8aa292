package irc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/matt0x6f/ircquill/internal/buffer"
	"github.com/matt0x6f/ircquill/internal/config"
	"github.com/matt0x6f/ircquill/internal/logger"
	"github.com/matt0x6f/ircquill/internal/proto"
	"github.com/matt0x6f/ircquill/internal/update"
)

// version is reported in CTCP VERSION replies.
const version = "0.1.0"

// Errors returned by the outbound send API.
var (
	// ErrUnavailable means the target buffer does not exist.
	ErrUnavailable = errors.New("target buffer is unavailable")
	// ErrBadTarget means the target cannot be addressed on IRC, such
	// as the network's own status buffer.
	ErrBadTarget = errors.New("invalid target")
	// ErrDisconnected means there is no live connection to send on.
	ErrDisconnected = errors.New("not connected to IRC")
)

// Sender is the outbound handle a connection registers with its
// network. Send fails once the connection is gone.
type Sender interface {
	Send(msg ircmsg.Message) error
}

// Catalog records buffers as they are created so they can be restored
// after a restart.
type Catalog interface {
	RememberBuffer(networkID string, target proto.Target)
}

// ConnState tracks the connection lifecycle of a network.
type ConnState int

const (
	StateDisconnected ConnState = iota
	// StateIdentifying: USER/NICK sent, waiting for the welcome reply.
	StateIdentifying
	// StateAuthing: waiting for NickServ to respond to identify.
	StateAuthing
	StateConnected
)

// Network owns one IRC network's buffers, its current nick, and the
// connection lifecycle. All methods must be called from the owning
// user's goroutine.
type Network struct {
	id      string
	cfg     config.Network
	nick    string
	altIdx  int
	bufs    map[proto.Target]*buffer.Buffer
	sender  Sender
	state   ConnState
	logRoot string
	catalog Catalog
}

// NewNetwork creates a network from its configuration. The network's
// own status buffer always exists; conversation buffers are created on
// first reference.
func NewNetwork(id string, cfg config.Network, logRoot string, catalog Catalog) *Network {
	n := &Network{
		id:      id,
		cfg:     cfg,
		nick:    cfg.Nick,
		bufs:    make(map[proto.Target]*buffer.Buffer),
		logRoot: logRoot,
		catalog: catalog,
	}
	n.bufs[proto.NetworkTarget()] = buffer.New(id, proto.NetworkTarget(), logRoot)
	return n
}

// ID returns the network's identifier.
func (n *Network) ID() string {
	return n.id
}

// Nick returns the connection's current nickname.
func (n *Network) Nick() string {
	return n.nick
}

// Connected reports whether the network has a live outbound handle.
func (n *Network) Connected() bool {
	return n.sender != nil
}

// State returns the connection lifecycle state.
func (n *Network) State() ConnState {
	return n.state
}

// GetBuffer returns the buffer for a target if it exists.
func (n *Network) GetBuffer(target proto.Target) (*buffer.Buffer, bool) {
	buf, ok := n.bufs[target]
	return buf, ok
}

// RestoreBuffer recreates a remembered buffer at startup. Its history
// stays pageable from disk; no event is emitted because no client is
// attached yet.
func (n *Network) RestoreBuffer(target proto.Target) {
	if _, ok := n.bufs[target]; ok {
		return
	}
	n.bufs[target] = buffer.New(n.id, target, n.logRoot)
}

// Info returns the summary clients are told about this network.
func (n *Network) Info() proto.NetInfo {
	bufs := make([]proto.BufInfo, 0, len(n.bufs))
	for _, buf := range n.bufs {
		bufs = append(bufs, buf.Info())
	}
	return proto.NetInfo{
		ID:        n.id,
		Nick:      n.nick,
		Connected: n.Connected(),
		Buffers:   bufs,
	}
}

// RegisterConn installs a new connection's outbound handle, begins
// registration by sending USER and NICK, and announces the connection
// to clients. Registering over a live connection is a caller
// sequencing bug.
func (n *Network) RegisterConn(sender Sender, u update.Handle[proto.CoreNetMsg]) {
	if n.sender != nil {
		panic(fmt.Sprintf("two connections registered for network %s", n.id))
	}
	n.sender = sender
	n.state = StateIdentifying
	n.altIdx = 0
	n.nick = n.cfg.Nick
	u.SendToClients(proto.CoreNetMsg{Type: proto.NetConnection, Connected: true})

	n.send(ircmsg.MakeMessage(nil, "", "USER", n.cfg.UserName(), "0", "*", n.cfg.RealName()), u)
	n.send(ircmsg.MakeMessage(nil, "", "NICK", n.nick), u)
}

// Disconnect drops the outbound handle and announces the disconnect.
// Reconnection is the dialer's concern, not the network's.
func (n *Network) Disconnect(u update.Handle[proto.CoreNetMsg]) {
	n.sender = nil
	n.state = StateDisconnected
	u.SendToClients(proto.CoreNetMsg{Type: proto.NetConnection, Connected: false})
}

// HandleMessage processes one decoded protocol event: PING is answered
// directly, everything else is routed to buffers or the network
// handler, and the lifecycle state machine advances. Events are routed
// in every lifecycle state so history is captured even while still
// identifying.
func (n *Network) HandleMessage(msg ircmsg.Message, u update.Handle[proto.CoreNetMsg]) {
	if msg.Command == "PING" {
		n.send(ircmsg.MakeMessage(nil, "", "PONG", msg.Params...), u)
		return
	}

	if routed := Route(msg, n.nick); routed != nil {
		n.dispatch(routed, u)
	}
	n.stepLifecycle(msg, u)
}

// stepLifecycle advances the Identifying → Authing → Connected state
// machine.
func (n *Network) stepLifecycle(msg ircmsg.Message, u update.Handle[proto.CoreNetMsg]) {
	switch n.state {
	case StateIdentifying:
		switch msg.Command {
		case "001": // RPL_WELCOME: the server confirms our nick.
			if len(msg.Params) > 0 && msg.Params[0] != "" {
				n.setNick(msg.Params[0], u)
			}
			if n.cfg.NickServPass != "" {
				logger.Log.Info().Str("network", n.id).Msg("Authenticating with NickServ")
				n.send(ircmsg.MakeMessage(nil, "", "PRIVMSG", "NickServ",
					"identify "+n.cfg.NickServPass), u)
				n.state = StateAuthing
			} else {
				logger.Log.Info().Str("network", n.id).Msg("No NickServ auth configured, joining channels")
				n.joinConfiguredChannels(u)
				n.state = StateConnected
			}
		case "433": // ERR_NICKNAMEINUSE: fall back to the alt nicks.
			if n.altIdx < len(n.cfg.AltNicks) {
				alt := n.cfg.AltNicks[n.altIdx]
				n.altIdx++
				logger.Log.Warn().
					Str("network", n.id).
					Str("nick", alt).
					Msg("Nick in use, trying alternate")
				n.setNick(alt, u)
				n.send(ircmsg.MakeMessage(nil, "", "NICK", alt), u)
			} else {
				logger.Log.Error().Str("network", n.id).Msg("All nicks in use")
			}
		}
	case StateAuthing:
		// Any NOTICE concludes authentication; success and failure are
		// not distinguished. Log the body so operators can tell which.
		if msg.Command == "NOTICE" {
			logger.Log.Info().
				Str("network", n.id).
				Str("reply", param(msg, 1)).
				Msg("NickServ authentication finished")
			n.joinConfiguredChannels(u)
			n.state = StateConnected
		}
	}
}

func (n *Network) joinConfiguredChannels(u update.Handle[proto.CoreNetMsg]) {
	if len(n.cfg.Channels) == 0 {
		return
	}
	n.send(ircmsg.MakeMessage(nil, "", "JOIN", strings.Join(n.cfg.Channels, ",")), u)
}

func (n *Network) setNick(nick string, u update.Handle[proto.CoreNetMsg]) {
	n.nick = nick
	u.SendToClients(proto.CoreNetMsg{Type: proto.NetNickChange, Nick: nick})
}

// dispatch applies a routed message to its destination.
func (n *Network) dispatch(routed *RoutedMsg, u update.Handle[proto.CoreNetMsg]) {
	switch routed.Kind {
	case RouteChannel:
		target := proto.ChannelTarget(routed.Channel)
		n.postAlerts(target, routed.Buf, u)
		n.applyBufferCmd(n.getCreateBuf(target, u), routed.Buf, u)
	case RoutePrivate:
		target := proto.PrivateTarget(routed.User.Nick)
		n.postAlerts(target, routed.Buf, u)
		n.applyBufferCmd(n.getCreateBuf(target, u), routed.Buf, u)
	case RouteNetBuffer:
		n.applyBufferCmd(n.getCreateBuf(proto.NetworkTarget(), u), routed.Buf, u)
	case RouteNetwork:
		n.handleNetCmd(routed.Net, u)
	}
}

// postAlerts posts an alert for a channel message that mentions the
// current nick, and for any private chat message. Alerts go out
// before the line itself is pushed.
func (n *Network) postAlerts(target proto.Target, cmd *BufferCmd, u update.Handle[proto.CoreNetMsg]) {
	if cmd.Kind != CmdPrivMsg && cmd.Kind != CmdAction {
		return
	}
	switch target.Kind {
	case proto.TargetChannel:
		if strings.Contains(cmd.Body, n.nick) {
			u.PostAlert(proto.Alert{
				NetworkID: n.id,
				Target:    target,
				Message:   fmt.Sprintf("%s in %s: %s", cmd.User.Nick, target.Name, cmd.Body),
			})
		}
	case proto.TargetPrivate:
		u.PostAlert(proto.Alert{
			NetworkID: n.id,
			Target:    target,
			Message:   fmt.Sprintf("%s: %s", cmd.User.Nick, cmd.Body),
		})
	}
}

// bufHandle wraps a network-level handle into the buffer-level handle
// a buffer emits events through.
func bufHandle(target proto.Target, u update.Handle[proto.CoreNetMsg]) update.Handle[proto.CoreBufMsg] {
	return update.Wrap(u, func(msg proto.CoreBufMsg) proto.CoreNetMsg {
		return proto.BufMsg(target, msg)
	})
}

// applyBufferCmd turns a routed buffer command into buffer mutations.
func (n *Network) applyBufferCmd(buf *buffer.Buffer, cmd *BufferCmd, u update.Handle[proto.CoreNetMsg]) {
	target := buf.Target()
	bu := bufHandle(target, u)

	switch cmd.Kind {
	case CmdJoin:
		if cmd.User.Nick == n.nick {
			logger.Log.Info().
				Str("network", n.id).
				Str("channel", target.Name).
				Msg("Joined channel")
			buf.SetJoined(true, bu)
		} else {
			buf.AddUser(cmd.User.Nick)
		}
		buf.PushLine(proto.JoinLine(cmd.User), bu)

	case CmdPart:
		if cmd.User.Nick == n.nick {
			logger.Log.Info().
				Str("network", n.id).
				Str("channel", target.Name).
				Msg("Parted channel")
			buf.SetJoined(false, bu)
			buf.ClearUsers()
		} else {
			buf.RemoveUser(cmd.User.Nick)
		}
		buf.PushLine(proto.PartLine(cmd.User, cmd.Body), bu)

	case CmdKick:
		if cmd.Target == n.nick {
			logger.Log.Info().
				Str("network", n.id).
				Str("channel", target.Name).
				Str("by", cmd.User.Nick).
				Msg("Kicked from channel")
			buf.SetJoined(false, bu)
			buf.ClearUsers()
		} else {
			buf.RemoveUser(cmd.Target)
		}
		buf.PushLine(proto.KickLine(cmd.User, cmd.Target, cmd.Body), bu)

	case CmdPrivMsg, CmdNotice, CmdAction:
		kind := proto.MsgPrivMsg
		switch cmd.Kind {
		case CmdNotice:
			kind = proto.MsgNotice
		case CmdAction:
			kind = proto.MsgAction
		}
		data := proto.MessageLine(kind, cmd.User.Nick, cmd.Body)
		if target.Kind == proto.TargetChannel && cmd.Kind != CmdNotice {
			data.Ping = strings.Contains(cmd.Body, n.nick)
		}
		buf.PushLine(data, bu)

	case CmdTopic:
		buf.SetTopic(cmd.Body)
		buf.PushLine(proto.TopicLine(cmd.User.Nick, cmd.Body), bu)

	case CmdNamReply:
		buf.HandleNames(cmd.Body)

	case CmdEndOfNames:
		buf.EndNames()

	case CmdNumeric:
		buf.PushLine(proto.MessageLine(proto.MsgResponse, "*", cmd.Body), bu)
	}
}

// handleNetCmd handles network-routed commands: events whose fan-out
// depends on presence, CTCP exchanges, and unknown reply codes.
func (n *Network) handleNetCmd(cmd *NetworkCmd, u update.Handle[proto.CoreNetMsg]) {
	switch cmd.Kind {
	case NetQuit:
		for target, buf := range n.bufs {
			if buf.HasUser(cmd.User.Nick) {
				buf.RemoveUser(cmd.User.Nick)
				buf.PushLine(proto.QuitLine(cmd.User, cmd.Arg), bufHandle(target, u))
			}
		}

	case NetNick:
		if cmd.User.Nick == n.nick {
			logger.Log.Debug().
				Str("network", n.id).
				Str("nick", cmd.Arg).
				Msg("Nick changed")
			n.setNick(cmd.Arg, u)
		}
		for target, buf := range n.bufs {
			if buf.HasUser(cmd.User.Nick) {
				buf.RenameUser(cmd.User.Nick, cmd.Arg)
				buf.PushLine(proto.NickLine(cmd.User, cmd.Arg), bufHandle(target, u))
			}
		}

	case NetCtcpQuery:
		if strings.EqualFold(cmd.Ctcp.Tag, "VERSION") {
			logger.Log.Info().
				Str("network", n.id).
				Str("from", cmd.User.Nick).
				Msg("Received CTCP VERSION request")
			netBuf := n.bufs[proto.NetworkTarget()]
			netBuf.PushLine(
				proto.MessageLine(proto.MsgStatus, cmd.User.Nick, "*CTCP VERSION request*"),
				bufHandle(proto.NetworkTarget(), u))
			// Failing to answer CTCP is harmless.
			_ = n.send(ircmsg.MakeMessage(nil, "", "NOTICE", cmd.User.Nick,
				fmt.Sprintf("%sVERSION ircquill %s%s", ctcpDelim, version, ctcpDelim)), u)
			return
		}
		logger.Log.Info().
			Str("network", n.id).
			Str("tag", cmd.Ctcp.Tag).
			Msg("Ignoring unsupported CTCP query")

	case NetCtcpReply:
		logger.Log.Info().
			Str("network", n.id).
			Str("tag", cmd.Ctcp.Tag).
			Msg("Ignoring unsupported CTCP reply")

	case NetUnknownCode:
		logger.Log.Warn().
			Str("network", n.id).
			Str("code", cmd.Code).
			Strs("params", cmd.Params).
			Msg("Unknown reply code")
	}
}

// getCreateBuf returns the buffer for a target, creating it and
// announcing it to clients when it is first referenced.
func (n *Network) getCreateBuf(target proto.Target, u update.Handle[proto.CoreNetMsg]) *buffer.Buffer {
	if buf, ok := n.bufs[target]; ok {
		return buf
	}
	buf := buffer.New(n.id, target, n.logRoot)
	n.bufs[target] = buf
	u.SendToClients(proto.CoreNetMsg{
		Type:    proto.NetBuffers,
		Buffers: []proto.BufInfo{buf.Info()},
	})
	if n.catalog != nil {
		n.catalog.RememberBuffer(n.id, target)
	}
	return buf
}

// send transmits one message on the live connection. A send failure
// means the connection is gone: the network drops its handle and
// announces the disconnect.
func (n *Network) send(msg ircmsg.Message, u update.Handle[proto.CoreNetMsg]) error {
	if n.sender == nil {
		logger.Log.Error().
			Str("network", n.id).
			Str("command", msg.Command).
			Msg("Tried to send while disconnected")
		return ErrDisconnected
	}
	if err := n.sender.Send(msg); err != nil {
		logger.Log.Error().
			Err(err).
			Str("network", n.id).
			Str("command", msg.Command).
			Msg("Connection dropped while sending")
		n.Disconnect(u)
		return ErrDisconnected
	}
	return nil
}

// SendJoinChannel asks the server to join the given channel.
func (n *Network) SendJoinChannel(channel string, u update.Handle[proto.CoreNetMsg]) error {
	return n.send(ircmsg.MakeMessage(nil, "", "JOIN", channel), u)
}

// SendPartChannel asks the server to part the given channel, with an
// optional message.
func (n *Network) SendPartChannel(channel, message string, u update.Handle[proto.CoreNetMsg]) error {
	if message == "" {
		return n.send(ircmsg.MakeMessage(nil, "", "PART", channel), u)
	}
	return n.send(ircmsg.MakeMessage(nil, "", "PART", channel, message), u)
}

// SendChangeNick asks the server for a new nickname. The network's own
// nick is updated when the server echoes the NICK back.
func (n *Network) SendChangeNick(nick string, u update.Handle[proto.CoreNetMsg]) error {
	return n.send(ircmsg.MakeMessage(nil, "", "NICK", nick), u)
}

// SendChatMessage sends a chat message to the named buffer and, on
// success, echoes it into the buffer locally; the server does not send
// our own PRIVMSG back to us.
func (n *Network) SendChatMessage(target proto.Target, body string, kind proto.MsgKind, u update.Handle[proto.CoreNetMsg]) error {
	buf, ok := n.bufs[target]
	if !ok {
		return ErrUnavailable
	}
	if target.Kind == proto.TargetNetwork {
		logger.Log.Warn().Str("network", n.id).Msg("Can't send a chat message to the network buffer")
		return ErrBadTarget
	}

	var msg ircmsg.Message
	switch kind {
	case proto.MsgNotice:
		msg = ircmsg.MakeMessage(nil, "", "NOTICE", target.Name, body)
	case proto.MsgAction:
		msg = ircmsg.MakeMessage(nil, "", "PRIVMSG", target.Name,
			fmt.Sprintf("%sACTION %s%s", ctcpDelim, body, ctcpDelim))
	default:
		kind = proto.MsgPrivMsg
		msg = ircmsg.MakeMessage(nil, "", "PRIVMSG", target.Name, body)
	}

	if err := n.send(msg, u); err != nil {
		return err
	}
	buf.PushLine(proto.MessageLine(kind, n.nick, body), bufHandle(target, u))
	return nil
}
