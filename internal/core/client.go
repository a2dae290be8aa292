package core

import (
	"github.com/matt0x6f/ircquill/internal/logger"
	"github.com/matt0x6f/ircquill/internal/proto"
)

// sendQueueDepth bounds how far a slow client may fall behind before
// it is dropped rather than stalling the user loop.
const sendQueueDepth = 128

// bufKey addresses one buffer across all of a user's networks.
type bufKey struct {
	networkID string
	target    proto.Target
}

// clientBuf is a client's scrollback cursor into one buffer: the
// index of the oldest line already sent, so each fetch continues
// where the previous one stopped.
type clientBuf struct {
	lastSentIndex int
}

// ClientSession is the core-side state of one attached client. The
// send channel is drained by the client's transport; everything else
// is owned by the user goroutine.
type ClientSession struct {
	user    *User
	send    chan proto.CoreMsg
	cursors map[bufKey]*clientBuf
	dropped func()
}

// NewClientSession creates the session for a client that has
// authenticated as the given user. dropped is called from the user
// goroutine if the client falls too far behind.
func NewClientSession(user *User, dropped func()) *ClientSession {
	return &ClientSession{
		user:    user,
		send:    make(chan proto.CoreMsg, sendQueueDepth),
		cursors: make(map[bufKey]*clientBuf),
		dropped: dropped,
	}
}

// Messages is the stream the transport writes out to the client.
func (c *ClientSession) Messages() <-chan proto.CoreMsg {
	return c.send
}

// deliver queues one message for the transport. A full queue means
// the client is not keeping up and is disconnected.
func (c *ClientSession) deliver(msg proto.CoreMsg) {
	select {
	case c.send <- msg:
	default:
		logger.Log.Warn().
			Str("user", c.user.Name()).
			Msg("Client too slow, dropping connection")
		if c.dropped != nil {
			c.dropped()
		}
	}
}

// seedCursor creates the scrollback cursor for a buffer the client
// has just been told about. Live lines from here on arrive as
// broadcasts, so the cursor starts at the current end of the buffer.
func (c *ClientSession) seedCursor(networkID string, target proto.Target, frontLen int) {
	key := bufKey{networkID: networkID, target: target}
	if _, ok := c.cursors[key]; ok {
		return
	}
	c.cursors[key] = &clientBuf{lastSentIndex: frontLen}
}

// cursor returns the client's cursor for a buffer. A missing cursor
// means bookkeeping went wrong somewhere; recover by starting a fresh
// one at the end of the buffer.
func (c *ClientSession) cursor(networkID string, target proto.Target, frontLen int) *clientBuf {
	key := bufKey{networkID: networkID, target: target}
	if cb, ok := c.cursors[key]; ok {
		return cb
	}
	logger.Log.Warn().
		Str("user", c.user.Name()).
		Str("network", networkID).
		Str("buffer", target.DisplayName()).
		Msg("Client had no cursor for buffer, starting a new one")
	cb := &clientBuf{lastSentIndex: frontLen}
	c.cursors[key] = cb
	return cb
}
