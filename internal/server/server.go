// Package server exposes the core to clients over a websocket, one
// JSON message envelope per websocket frame. Clients authenticate
// with their first message before anything else is processed.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/matt0x6f/ircquill/internal/core"
	"github.com/matt0x6f/ircquill/internal/logger"
	"github.com/matt0x6f/ircquill/internal/proto"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the time allowed to read the next pong.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// authWait is how long a fresh connection has to authenticate.
	authWait = 30 * time.Second

	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The bouncer binds loopback by default; remote setups front it
	// with something that enforces origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server accepts client connections for the core.
type Server struct {
	core *core.Core
	addr string
}

// New creates a server bound to addr.
func New(c *core.Core, addr string) *Server {
	return &Server{core: c, addr: addr}
}

// ListenAndServe runs the server until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWs)

	srv := &http.Server{Addr: s.addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Log.Info().Str("addr", s.addr).Msg("Client server listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// serveWs upgrades one client connection, authenticates it, attaches
// it to its user, and runs the read and write pumps.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	user, err := s.authenticate(conn)
	if err != nil {
		logger.Log.Warn().
			Err(err).
			Str("remote", conn.RemoteAddr().String()).
			Msg("Client authentication failed")
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(proto.CoreMsg{Type: proto.CoreAuthErr})
		conn.Close()
		return
	}

	session := core.NewClientSession(user, func() { conn.Close() })

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(proto.CoreMsg{Type: proto.CoreAuthOK}); err != nil {
		conn.Close()
		return
	}

	user.Enqueue(func() { user.Attach(session) })
	go writePump(conn, session)
	readPump(conn, user, session)
}

// authenticate reads the first message, which must be an auth request
// with valid credentials.
func (s *Server) authenticate(conn *websocket.Conn) (*core.User, error) {
	conn.SetReadDeadline(time.Now().Add(authWait))
	var msg proto.ClientMsg
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	if msg.Type != proto.ClientAuth {
		return nil, errors.New("first message was not an auth request")
	}
	user, err := s.core.User(msg.User)
	if err != nil {
		return nil, err
	}
	if !user.Authenticate(msg.Password) {
		return nil, errors.New("bad password for user " + msg.User)
	}
	return user, nil
}

// readPump decodes client requests and enqueues them on the user's
// goroutine. It returns, detaching the session, when the connection
// dies.
func readPump(conn *websocket.Conn, user *core.User, session *core.ClientSession) {
	defer func() {
		user.Enqueue(func() { user.Detach(session) })
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg proto.ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warn().
					Err(err).
					Str("user", user.Name()).
					Msg("Client read failed")
			}
			return
		}
		user.Enqueue(func() { user.HandleClientMsg(session, msg) })
	}
}

// writePump sends core messages out to the client and keeps the
// connection alive with pings.
func writePump(conn *websocket.Conn, session *core.ClientSession) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-session.Messages():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
