package irc

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/matt0x6f/ircquill/internal/logger"
)

const (
	dialTimeout  = 30 * time.Second
	writeTimeout = 30 * time.Second
	// outboundDepth bounds how far the writer may fall behind before
	// sends start failing instead of blocking the owner goroutine.
	outboundDepth = 64
	// maxLineLen covers message-tags plus the 512-byte message body.
	maxLineLen = 8704
)

// Conn is one live connection to an IRC server. It owns the socket:
// a reader goroutine decodes inbound lines and hands them to the
// events callback, and a writer goroutine drains the outbound queue.
// Conn itself never touches network state; it only moves messages.
type Conn struct {
	networkID string
	sock      net.Conn
	outbound  chan ircmsg.Message
	done      chan struct{}
}

// Dial connects to an IRC server.
func Dial(ctx context.Context, networkID, addr string) (*Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	sock, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	logger.Log.Info().
		Str("network", networkID).
		Str("addr", addr).
		Msg("Connected to IRC server")

	return &Conn{
		networkID: networkID,
		sock:      sock,
		outbound:  make(chan ircmsg.Message, outboundDepth),
		done:      make(chan struct{}),
	}, nil
}

// Send queues one message for the writer. It implements Sender and
// must not block the caller: a full queue or a closed connection is a
// send failure.
func (c *Conn) Send(msg ircmsg.Message) error {
	select {
	case <-c.done:
		return ErrDisconnected
	default:
	}
	select {
	case c.outbound <- msg:
		return nil
	case <-c.done:
		return ErrDisconnected
	default:
		logger.Log.Error().
			Str("network", c.networkID).
			Msg("Outbound queue full, dropping connection")
		c.Close()
		return ErrDisconnected
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.done)
	c.sock.Close()
}

// Done is closed once the connection is gone, whichever side ended it.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Run pumps the connection until it dies: the writer drains the
// outbound queue on this goroutine's sibling, and the reader decodes
// lines and hands each to events, which must enqueue onto the owning
// user's goroutine. Run returns when the socket is closed or errors.
func (c *Conn) Run(events func(ircmsg.Message)) {
	go c.writeLoop()
	defer c.Close()

	scanner := bufio.NewScanner(c.sock)
	scanner.Buffer(make([]byte, 0, 1024), maxLineLen)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		msg, err := ircmsg.ParseLine(line)
		if err != nil {
			logger.Log.Warn().
				Err(err).
				Str("network", c.networkID).
				Str("line", line).
				Msg("Dropping unparseable line")
			continue
		}
		events(msg)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Log.Error().
			Err(err).
			Str("network", c.networkID).
			Msg("Connection read failed")
	} else {
		logger.Log.Info().Str("network", c.networkID).Msg("Connection closed")
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.outbound:
			line, err := msg.LineBytes()
			if err != nil {
				logger.Log.Warn().
					Err(err).
					Str("network", c.networkID).
					Str("command", msg.Command).
					Msg("Dropping unencodable message")
				continue
			}
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.sock.Write(line); err != nil {
				if !errors.Is(err, net.ErrClosed) {
					logger.Log.Error().
						Err(err).
						Str("network", c.networkID).
						Msg("Connection write failed")
				}
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
