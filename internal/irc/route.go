// Package irc implements the core's IRC layer: classifying decoded
// protocol events onto conversation buffers, the per-network dispatch
// and connection lifecycle, and the outbound message path.
package irc

import (
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/matt0x6f/ircquill/internal/logger"
	"github.com/matt0x6f/ircquill/internal/proto"
)

// ctcpDelim delimits CTCP sub-messages inside PRIVMSG/NOTICE bodies.
const ctcpDelim = "\x01"

// BufferCmdKind enumerates the cleaned-up forms of buffer-addressed
// IRC commands and replies.
type BufferCmdKind string

const (
	CmdJoin       BufferCmdKind = "JOIN"
	CmdPart       BufferCmdKind = "PART"
	CmdKick       BufferCmdKind = "KICK"
	CmdPrivMsg    BufferCmdKind = "PRIVMSG"
	CmdNotice     BufferCmdKind = "NOTICE"
	CmdAction     BufferCmdKind = "ACTION"
	CmdTopic      BufferCmdKind = "TOPIC"
	CmdNamReply   BufferCmdKind = "RPL_NAMREPLY"
	CmdEndOfNames BufferCmdKind = "RPL_ENDOFNAMES"
	// CmdNumeric carries a numeric reply destined for the network's
	// own status buffer.
	CmdNumeric BufferCmdKind = "NUMERIC"
)

// BufferCmd is an IRC command addressed to a single buffer.
type BufferCmd struct {
	Kind BufferCmdKind
	// User is the sending user, when the command has one.
	User proto.User
	// Target is the kicked nick for CmdKick.
	Target string
	// Body is the message text, part/kick reason, topic, NAMES body,
	// or numeric reply text, depending on Kind.
	Body string
	// Code is set for CmdNumeric.
	Code string
}

// NetworkCmdKind enumerates commands handled by the network object
// itself rather than a single buffer.
type NetworkCmdKind string

const (
	NetQuit NetworkCmdKind = "QUIT"
	NetNick NetworkCmdKind = "NICK"
	// NetCtcpQuery and NetCtcpReply are CTCP sub-messages other than
	// ACTION. They are network-level because some CTCP exchanges name
	// a destination that is not a real conversation.
	NetCtcpQuery NetworkCmdKind = "CTCP_QUERY"
	NetCtcpReply NetworkCmdKind = "CTCP_REPLY"
	// NetUnknownCode surfaces a numeric reply the router does not
	// recognize, preserving its raw arguments.
	NetUnknownCode NetworkCmdKind = "UNKNOWN_CODE"
)

// Ctcp is a parsed CTCP sub-message.
type Ctcp struct {
	Tag  string
	Args string
	// Dest is the original destination string of the carrying
	// PRIVMSG/NOTICE.
	Dest string
}

// NetworkCmd is an IRC command routed to the network object.
type NetworkCmd struct {
	Kind NetworkCmdKind
	User proto.User
	// Arg is the quit reason or the new nick, depending on Kind.
	Arg  string
	Ctcp *Ctcp
	// Code and Params preserve an unknown numeric reply verbatim.
	Code   string
	Params []string
}

// RoutedKind enumerates the destinations a routed message can have.
type RoutedKind int

const (
	// RouteChannel addresses the channel buffer named by Channel.
	RouteChannel RoutedKind = iota
	// RoutePrivate addresses the private buffer for User.
	RoutePrivate
	// RouteNetBuffer addresses the network's own status buffer.
	RouteNetBuffer
	// RouteNetwork addresses the network object itself.
	RouteNetwork
)

// RoutedMsg is a classified protocol event addressed to its handler.
type RoutedMsg struct {
	Kind    RoutedKind
	Channel string
	User    proto.User
	Buf     *BufferCmd
	Net     *NetworkCmd
}

// motdFamily is the set of numeric replies shown in the network's own
// buffer rather than surfaced as unknown codes.
var motdFamily = map[string]struct{}{
	"001": {}, "002": {}, "003": {}, "004": {},
	"251": {}, "252": {}, "253": {}, "254": {}, "255": {},
	"265": {}, "266": {},
	"372": {}, "375": {}, "376": {}, "422": {},
}

// Route classifies a decoded IRC event into a command addressed to a
// channel buffer, a private buffer, the network's status buffer, or
// the network's own handler. It returns nil for events that should be
// dropped; malformed events are logged and dropped, never panicked on.
func Route(msg ircmsg.Message, currentNick string) *RoutedMsg {
	switch msg.Command {
	case "JOIN":
		user, ok := requireUser(msg, "JOIN")
		if !ok || !requireParams(msg, 1) {
			return nil
		}
		return routeTarget(msg.Params[0], user, currentNick,
			&BufferCmd{Kind: CmdJoin, User: user})

	case "PART":
		user, ok := requireUser(msg, "PART")
		if !ok || !requireParams(msg, 1) {
			return nil
		}
		return routeTarget(msg.Params[0], user, currentNick,
			&BufferCmd{Kind: CmdPart, User: user, Body: param(msg, 1)})

	case "KICK":
		user, ok := requireUser(msg, "KICK")
		if !ok || !requireParams(msg, 2) {
			return nil
		}
		return routeTarget(msg.Params[0], user, currentNick, &BufferCmd{
			Kind:   CmdKick,
			User:   user,
			Target: msg.Params[1],
			Body:   param(msg, 2),
		})

	case "PRIVMSG", "NOTICE":
		user, ok := requireUser(msg, msg.Command)
		if !ok || !requireParams(msg, 2) {
			return nil
		}
		dest, body := msg.Params[0], msg.Params[1]
		if strings.HasPrefix(body, ctcpDelim) {
			return routeCtcp(msg.Command, dest, body, user, currentNick)
		}
		kind := CmdPrivMsg
		if msg.Command == "NOTICE" {
			kind = CmdNotice
		}
		return routeTarget(dest, user, currentNick,
			&BufferCmd{Kind: kind, User: user, Body: body})

	case "QUIT":
		user, ok := requireUser(msg, "QUIT")
		if !ok {
			return nil
		}
		// QUIT fans out to every buffer the user is present in, so the
		// network has to route it.
		return &RoutedMsg{Kind: RouteNetwork, Net: &NetworkCmd{
			Kind: NetQuit, User: user, Arg: param(msg, 0),
		}}

	case "NICK":
		user, ok := requireUser(msg, "NICK")
		if !ok || !requireParams(msg, 1) {
			return nil
		}
		// Same fan-out situation as QUIT.
		return &RoutedMsg{Kind: RouteNetwork, Net: &NetworkCmd{
			Kind: NetNick, User: user, Arg: msg.Params[0],
		}}

	case "TOPIC":
		user, ok := requireUser(msg, "TOPIC")
		if !ok || !requireParams(msg, 1) {
			return nil
		}
		return &RoutedMsg{
			Kind:    RouteChannel,
			Channel: msg.Params[0],
			Buf:     &BufferCmd{Kind: CmdTopic, User: user, Body: param(msg, 1)},
		}

	case "353": // RPL_NAMREPLY: <me> <symbol> <channel> <names>
		if !requireParams(msg, 4) {
			return nil
		}
		return &RoutedMsg{
			Kind:    RouteChannel,
			Channel: msg.Params[2],
			Buf:     &BufferCmd{Kind: CmdNamReply, Body: msg.Params[3]},
		}

	case "366": // RPL_ENDOFNAMES: <me> <channel> <text>
		if !requireParams(msg, 2) {
			return nil
		}
		return &RoutedMsg{
			Kind:    RouteChannel,
			Channel: msg.Params[1],
			Buf:     &BufferCmd{Kind: CmdEndOfNames},
		}

	case "332": // RPL_TOPIC: <me> <channel> <topic>
		if !requireParams(msg, 3) {
			return nil
		}
		return &RoutedMsg{
			Kind:    RouteChannel,
			Channel: msg.Params[1],
			Buf:     &BufferCmd{Kind: CmdTopic, Body: msg.Params[2]},
		}
	}

	if isNumeric(msg.Command) {
		if _, ok := motdFamily[msg.Command]; ok {
			return &RoutedMsg{Kind: RouteNetBuffer, Buf: &BufferCmd{
				Kind: CmdNumeric,
				Code: msg.Command,
				Body: param(msg, len(msg.Params)-1),
			}}
		}
		// Never drop data we can't interpret; surface it for ad-hoc
		// handling instead.
		return &RoutedMsg{Kind: RouteNetwork, Net: &NetworkCmd{
			Kind:   NetUnknownCode,
			Code:   msg.Command,
			Params: msg.Params,
		}}
	}

	logger.Log.Debug().Str("command", msg.Command).Msg("Ignoring unrouted message")
	return nil
}

// routeTarget routes a buffer command to a private or channel buffer
// based on the destination string. A message whose destination is our
// own nick belongs to a conversation with its sender, not to a channel
// named after us.
func routeTarget(target string, user proto.User, currentNick string, cmd *BufferCmd) *RoutedMsg {
	if target == currentNick {
		return &RoutedMsg{Kind: RoutePrivate, User: user, Buf: cmd}
	}
	return &RoutedMsg{Kind: RouteChannel, Channel: target, Buf: cmd}
}

// routeCtcp classifies a CTCP-delimited PRIVMSG/NOTICE body. ACTION is
// a buffer-level message; everything else goes to the network handler
// with the original destination preserved.
func routeCtcp(command, dest, body string, user proto.User, currentNick string) *RoutedMsg {
	tag, args := parseCtcp(body)
	if strings.EqualFold(tag, "ACTION") {
		return routeTarget(dest, user, currentNick,
			&BufferCmd{Kind: CmdAction, User: user, Body: args})
	}
	kind := NetCtcpQuery
	if command == "NOTICE" {
		kind = NetCtcpReply
	}
	return &RoutedMsg{Kind: RouteNetwork, Net: &NetworkCmd{
		Kind: kind,
		User: user,
		Ctcp: &Ctcp{Tag: tag, Args: args, Dest: dest},
	}}
}

// parseCtcp splits a CTCP body into its tag and argument string.
func parseCtcp(body string) (tag, args string) {
	inner := strings.TrimPrefix(body, ctcpDelim)
	inner = strings.TrimSuffix(inner, ctcpDelim)
	tag, args, _ = strings.Cut(inner, " ")
	return tag, args
}

// requireUser parses the event's prefix as a user, logging and failing
// when the event has a server prefix or none at all.
func requireUser(msg ircmsg.Message, name string) (proto.User, bool) {
	user, ok := proto.ParsePrefix(msg.Source)
	if !ok {
		logger.Log.Error().
			Str("command", name).
			Str("prefix", msg.Source).
			Msg("Expected user prefix")
		return proto.User{}, false
	}
	return user, true
}

// requireParams checks an event's arity, logging and failing short
// events instead of letting the caller index out of range.
func requireParams(msg ircmsg.Message, n int) bool {
	if len(msg.Params) < n {
		logger.Log.Error().
			Str("command", msg.Command).
			Int("want", n).
			Int("got", len(msg.Params)).
			Msg("Malformed message: missing parameters")
		return false
	}
	return true
}

// param returns the i'th parameter or the empty string.
func param(msg ircmsg.Message, i int) string {
	if i < 0 || i >= len(msg.Params) {
		return ""
	}
	return msg.Params[i]
}

func isNumeric(command string) bool {
	if len(command) != 3 {
		return false
	}
	for _, c := range command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
