package core

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/matt0x6f/ircquill/internal/config"
	"github.com/matt0x6f/ircquill/internal/proto"
	"github.com/matt0x6f/ircquill/internal/storage"
)

const testPassword = "opensesame"

func newTestUser(t *testing.T) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	store, err := storage.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.User{
		Password: string(hash),
		// A no-op alert command keeps tests away from desktop
		// notifications.
		AlertCmd: "true",
		Networks: map[string]config.Network{
			"testnet": {Nick: "quill"},
		},
	}
	return newUser("bob", cfg, t.TempDir(), store)
}

// feed runs one server event through the user as if it arrived from
// the connection.
func feed(t *testing.T, u *User, line string) {
	t.Helper()
	msg, err := ircmsg.ParseLine(line)
	require.NoError(t, err)
	u.HandleIRCEvent("testnet", msg)
}

// drainMsgs empties a session's outbound queue.
func drainMsgs(c *ClientSession) []proto.CoreMsg {
	var msgs []proto.CoreMsg
	for {
		select {
		case msg := <-c.Messages():
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestAuthenticate(t *testing.T) {
	u := newTestUser(t)
	require.True(t, u.Authenticate(testPassword))
	require.False(t, u.Authenticate("wrong"))
	require.False(t, u.Authenticate(""))
}

func TestAttachSendsNetworkList(t *testing.T) {
	u := newTestUser(t)
	c := NewClientSession(u, nil)
	u.Attach(c)

	msgs := drainMsgs(c)
	require.NotEmpty(t, msgs)
	require.Equal(t, proto.CoreNetworks, msgs[0].Type)
	require.Len(t, msgs[0].Networks, 1)
	require.Equal(t, "testnet", msgs[0].Networks[0].ID)
	// The network's own status buffer always exists.
	require.NotEmpty(t, msgs[0].Networks[0].Buffers)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	u := newTestUser(t)
	c1 := NewClientSession(u, nil)
	c2 := NewClientSession(u, nil)
	u.Attach(c1)
	u.Attach(c2)
	drainMsgs(c1)
	drainMsgs(c2)

	feed(t, u, ":alice!a@host PRIVMSG #go :hello")

	for _, c := range []*ClientSession{c1, c2} {
		msgs := drainMsgs(c)
		require.NotEmpty(t, msgs)
		// Buffer announcement first, then the line itself.
		require.Equal(t, proto.NetBuffers, msgs[0].Net.Type)
		last := msgs[len(msgs)-1]
		require.Equal(t, proto.NetBuf, last.Net.Type)
		require.Equal(t, proto.BufNewLines, last.Net.Buf.Type)
		require.Equal(t, "hello", last.Net.Buf.Lines[0].Data.Body)
	}
}

func TestDetachStopsDelivery(t *testing.T) {
	u := newTestUser(t)
	c := NewClientSession(u, nil)
	u.Attach(c)
	u.Detach(c)
	drainMsgs(c)

	feed(t, u, ":alice!a@host PRIVMSG #go :hello")
	require.Empty(t, drainMsgs(c))
}

func TestAlertDeliveredToAttachedClient(t *testing.T) {
	u := newTestUser(t)
	c := NewClientSession(u, nil)
	u.Attach(c)
	drainMsgs(c)

	feed(t, u, ":alice!a@host PRIVMSG quill :hey bob")

	var alerts []proto.Alert
	for _, msg := range drainMsgs(c) {
		if msg.Type == proto.CoreAlerts {
			alerts = append(alerts, msg.Alerts...)
		}
	}
	require.Len(t, alerts, 1)
	require.Equal(t, proto.PrivateTarget("alice"), alerts[0].Target)
}

func TestAlertQueuedUntilNextAttach(t *testing.T) {
	u := newTestUser(t)

	feed(t, u, ":alice!a@host PRIVMSG quill :hey bob")

	c := NewClientSession(u, nil)
	u.Attach(c)
	var alerts []proto.Alert
	for _, msg := range drainMsgs(c) {
		if msg.Type == proto.CoreAlerts {
			alerts = append(alerts, msg.Alerts...)
		}
	}
	require.Len(t, alerts, 1)
	require.Equal(t, "testnet", alerts[0].NetworkID)

	// Queued alerts are delivered once.
	c2 := NewClientSession(u, nil)
	u.Attach(c2)
	for _, msg := range drainMsgs(c2) {
		require.NotEqual(t, proto.CoreAlerts, msg.Type)
	}
}

func requestLogs(u *User, c *ClientSession, target proto.Target, count int) {
	u.HandleClientMsg(c, proto.ClientMsg{
		Type:      proto.ClientNet,
		NetworkID: "testnet",
		Net: &proto.ClientNetMsg{
			Type:   proto.ClientBuf,
			Target: &target,
			Buf:    &proto.ClientBufMsg{Type: proto.ClientFetchLogs, Count: count},
		},
	})
}

func scrollbackLines(t *testing.T, c *ClientSession) []proto.Line {
	t.Helper()
	var lines []proto.Line
	for _, msg := range drainMsgs(c) {
		if msg.Type == proto.CoreNet && msg.Net.Type == proto.NetBuf &&
			msg.Net.Buf.Type == proto.BufScrollback {
			lines = append(lines, msg.Net.Buf.Lines...)
		}
	}
	return lines
}

func TestFetchLogsPagesBackwardWithoutOverlap(t *testing.T) {
	u := newTestUser(t)
	target := proto.ChannelTarget("#go")

	// Five lines arrive before any client attaches.
	for i := 1; i <= 5; i++ {
		feed(t, u, fmt.Sprintf(":alice!a@host PRIVMSG #go :line %d", i))
	}

	c := NewClientSession(u, nil)
	u.Attach(c)
	drainMsgs(c)

	// First fetch returns the newest unseen lines, newest first.
	requestLogs(u, c, target, 2)
	lines := scrollbackLines(t, c)
	require.Len(t, lines, 2)
	require.Equal(t, "line 5", lines[0].Data.Body)
	require.Equal(t, "line 4", lines[1].Data.Body)

	// The next fetch continues where the previous one stopped.
	requestLogs(u, c, target, 2)
	lines = scrollbackLines(t, c)
	require.Len(t, lines, 2)
	require.Equal(t, "line 3", lines[0].Data.Body)
	require.Equal(t, "line 2", lines[1].Data.Body)

	// Requests past the end of history return what remains.
	requestLogs(u, c, target, 10)
	lines = scrollbackLines(t, c)
	require.Len(t, lines, 1)
	require.Equal(t, "line 1", lines[0].Data.Body)
}

func TestFetchLogsZeroCountIsNoOp(t *testing.T) {
	u := newTestUser(t)
	target := proto.ChannelTarget("#go")
	feed(t, u, ":alice!a@host PRIVMSG #go :line 1")

	c := NewClientSession(u, nil)
	u.Attach(c)
	drainMsgs(c)

	requestLogs(u, c, target, 0)
	require.Empty(t, drainMsgs(c))

	// The cursor did not move.
	requestLogs(u, c, target, 1)
	lines := scrollbackLines(t, c)
	require.Len(t, lines, 1)
	require.Equal(t, "line 1", lines[0].Data.Body)
}

func TestFetchLogsCursorsIndependentPerClient(t *testing.T) {
	u := newTestUser(t)
	target := proto.ChannelTarget("#go")
	for i := 1; i <= 3; i++ {
		feed(t, u, fmt.Sprintf(":alice!a@host PRIVMSG #go :line %d", i))
	}

	c1 := NewClientSession(u, nil)
	c2 := NewClientSession(u, nil)
	u.Attach(c1)
	u.Attach(c2)
	drainMsgs(c1)
	drainMsgs(c2)

	requestLogs(u, c1, target, 2)
	require.Len(t, scrollbackLines(t, c1), 2)

	// The second client starts from the top regardless.
	requestLogs(u, c2, target, 2)
	lines := scrollbackLines(t, c2)
	require.Len(t, lines, 2)
	require.Equal(t, "line 3", lines[0].Data.Body)
}

func TestFetchLogsRecoversFromMissingCursor(t *testing.T) {
	u := newTestUser(t)
	target := proto.ChannelTarget("#go")
	feed(t, u, ":alice!a@host PRIVMSG #go :before")

	// A session that never saw the buffer announcement still gets a
	// usable cursor, created at the end of the buffer.
	c := NewClientSession(u, nil)
	u.Attach(c)
	c.cursors = make(map[bufKey]*clientBuf)
	drainMsgs(c)

	requestLogs(u, c, target, 5)
	lines := scrollbackLines(t, c)
	require.Len(t, lines, 1)
	require.Equal(t, "before", lines[0].Data.Body)
}

func TestFetchLogsUnknownBuffer(t *testing.T) {
	u := newTestUser(t)
	c := NewClientSession(u, nil)
	u.Attach(c)
	drainMsgs(c)

	requestLogs(u, c, proto.ChannelTarget("#nowhere"), 3)
	msgs := drainMsgs(c)
	require.Len(t, msgs, 1)
	require.Equal(t, proto.CoreStatus, msgs[0].Type)
}

func TestLiveLinesSeedCursorsOnAnnouncement(t *testing.T) {
	u := newTestUser(t)
	target := proto.ChannelTarget("#go")

	c := NewClientSession(u, nil)
	u.Attach(c)
	drainMsgs(c)

	// The buffer is created while the client is attached: live lines
	// are broadcast, so the cursor sits below them and fetch_logs
	// reaches only into older history, which is empty here.
	feed(t, u, ":alice!a@host PRIVMSG #go :live")
	drainMsgs(c)

	requestLogs(u, c, target, 5)
	require.Empty(t, scrollbackLines(t, c))
}

func TestListNets(t *testing.T) {
	u := newTestUser(t)
	c := NewClientSession(u, nil)
	u.Attach(c)
	drainMsgs(c)

	u.HandleClientMsg(c, proto.ClientMsg{Type: proto.ClientListNets})
	msgs := drainMsgs(c)
	require.Len(t, msgs, 1)
	require.Equal(t, proto.CoreNetworks, msgs[0].Type)
	require.Equal(t, "testnet", msgs[0].Networks[0].ID)
}

func TestRequestOnUnknownNetworkReportsStatus(t *testing.T) {
	u := newTestUser(t)
	c := NewClientSession(u, nil)
	u.Attach(c)
	drainMsgs(c)

	u.HandleClientMsg(c, proto.ClientMsg{
		Type:      proto.ClientNet,
		NetworkID: "nonesuch",
		Net:       &proto.ClientNetMsg{Type: proto.ClientJoin, Channel: "#go"},
	})
	msgs := drainMsgs(c)
	require.Len(t, msgs, 1)
	require.Equal(t, proto.CoreStatus, msgs[0].Type)
}

func TestSendWhileDisconnectedReportsStatus(t *testing.T) {
	u := newTestUser(t)
	target := proto.NetworkTarget()
	c := NewClientSession(u, nil)
	u.Attach(c)
	drainMsgs(c)

	// The status buffer exists but is not a chat destination; the
	// client gets an error status either way.
	u.HandleClientMsg(c, proto.ClientMsg{
		Type:      proto.ClientNet,
		NetworkID: "testnet",
		Net: &proto.ClientNetMsg{
			Type:   proto.ClientBuf,
			Target: &target,
			Buf:    &proto.ClientBufMsg{Type: proto.ClientSend, Body: "hi"},
		},
	})
	msgs := drainMsgs(c)
	require.Len(t, msgs, 1)
	require.Equal(t, proto.CoreStatus, msgs[0].Type)
}
