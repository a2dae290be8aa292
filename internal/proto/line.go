package proto

import (
	"fmt"
	"strings"
	"time"
)

// LineKind discriminates the payload variants of a buffer line.
type LineKind string

const (
	LineMessage LineKind = "message"
	LineTopic   LineKind = "topic"
	LineJoin    LineKind = "join"
	LinePart    LineKind = "part"
	LineKick    LineKind = "kick"
	LineQuit    LineKind = "quit"
	LineNick    LineKind = "nick"
)

// MsgKind discriminates the flavors of LineMessage lines.
type MsgKind string

const (
	MsgPrivMsg MsgKind = "privmsg"
	MsgNotice  MsgKind = "notice"
	MsgAction  MsgKind = "action"
	// MsgStatus is for special status messages generated by the core.
	MsgStatus MsgKind = "status"
	// MsgResponse is for numeric reply lines shown in the network buffer.
	MsgResponse MsgKind = "response"
)

// User identifies the sender of an IRC message by the parts of its
// nick!ident@host prefix.
type User struct {
	Nick  string `json:"nick"`
	Ident string `json:"ident,omitempty"`
	Host  string `json:"host,omitempty"`
}

// String formats the user as a nick!ident@host prefix.
func (u User) String() string {
	return fmt.Sprintf("%s!%s@%s", u.Nick, u.Ident, u.Host)
}

// ParsePrefix parses an IRC message prefix. The second return value is
// false when the prefix names a server rather than a user, or is empty.
func ParsePrefix(prefix string) (User, bool) {
	bang := strings.Index(prefix, "!")
	if bang < 0 {
		return User{}, false
	}
	at := strings.Index(prefix, "@")
	if at < bang {
		return User{}, false
	}
	return User{
		Nick:  prefix[:bang],
		Ident: prefix[bang+1 : at],
		Host:  prefix[at+1:],
	}, true
}

// LineData is the payload of a buffer line. Kind selects the variant;
// the remaining fields are populated per kind:
//
//	message: MsgKind, From, Body (and Ping for highlight messages)
//	topic:   From (who set it, may be empty), Body (the topic)
//	join:    User
//	part:    User, Body (reason)
//	kick:    User (the kicker), Target (who was kicked), Body (reason)
//	quit:    User, Body (reason)
//	nick:    User, Target (the new nick)
type LineData struct {
	Kind    LineKind `json:"kind"`
	MsgKind MsgKind  `json:"msg_kind,omitempty"`
	From    string   `json:"from,omitempty"`
	User    *User    `json:"user,omitempty"`
	Target  string   `json:"target,omitempty"`
	Body    string   `json:"body,omitempty"`
	Ping    bool     `json:"ping,omitempty"`
}

// MessageLine builds a chat message payload.
func MessageLine(kind MsgKind, from, body string) LineData {
	return LineData{Kind: LineMessage, MsgKind: kind, From: from, Body: body}
}

// TopicLine builds a topic change payload.
func TopicLine(by, topic string) LineData {
	return LineData{Kind: LineTopic, From: by, Body: topic}
}

// JoinLine builds a channel join payload.
func JoinLine(user User) LineData {
	return LineData{Kind: LineJoin, User: &user}
}

// PartLine builds a channel part payload.
func PartLine(user User, reason string) LineData {
	return LineData{Kind: LinePart, User: &user, Body: reason}
}

// KickLine builds a kick payload.
func KickLine(by User, target, reason string) LineData {
	return LineData{Kind: LineKick, User: &by, Target: target, Body: reason}
}

// QuitLine builds a quit payload.
func QuitLine(user User, reason string) LineData {
	return LineData{Kind: LineQuit, User: &user, Body: reason}
}

// NickLine builds a nick change payload.
func NickLine(user User, newNick string) LineData {
	return LineData{Kind: LineNick, User: &user, Target: newNick}
}

// Line is one immutable buffer line: a per-buffer sequence id, a
// timestamp, and a payload. Lines are never mutated once created.
type Line struct {
	ID   int64     `json:"id"`
	Time time.Time `json:"time"`
	Data LineData  `json:"data"`
}
