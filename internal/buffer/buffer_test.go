package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matt0x6f/ircquill/internal/proto"
	"github.com/matt0x6f/ircquill/internal/update"
)

func push(t *testing.T, b *Buffer, body string) (proto.Line, []proto.CoreBufMsg) {
	t.Helper()
	h := update.NewBaseHandle[proto.CoreBufMsg]()
	line := b.PushLine(proto.MessageLine(proto.MsgPrivMsg, "alice", body), h)
	return line, h.TakeMessages()
}

func TestPushLineAssignsIncreasingIDs(t *testing.T) {
	b := New("net", proto.ChannelTarget("#go"), t.TempDir())

	first, msgs := push(t, b, "one")
	require.Len(t, msgs, 1)
	require.Equal(t, proto.BufNewLines, msgs[0].Type)
	require.Equal(t, []proto.Line{first}, msgs[0].Lines)

	second, _ := push(t, b, "two")
	third, _ := push(t, b, "three")
	require.Greater(t, second.ID, first.ID)
	require.Greater(t, third.ID, second.ID)
	require.Equal(t, 3, b.FrontLen())
}

func TestGetLineFront(t *testing.T) {
	b := New("net", proto.ChannelTarget("#go"), t.TempDir())
	push(t, b, "one")
	push(t, b, "two")

	line, ok := b.GetLine(0)
	require.True(t, ok)
	require.Equal(t, "one", line.Data.Body)

	line, ok = b.GetLine(1)
	require.True(t, ok)
	require.Equal(t, "two", line.Data.Body)

	_, ok = b.GetLine(2)
	require.False(t, ok)
}

func TestReconstructedBufferResumesHistory(t *testing.T) {
	dir := t.TempDir()
	target := proto.ChannelTarget("#go")

	b := New("net", target, dir)
	push(t, b, "one")
	push(t, b, "two")
	push(t, b, "three")

	// A fresh buffer over the same logs starts with an empty front
	// and the previous session reachable at negative indexes.
	b2 := New("net", target, dir)
	require.Equal(t, 0, b2.FrontLen())

	line, ok := b2.GetLine(-1)
	require.True(t, ok)
	require.Equal(t, "three", line.Data.Body)

	line, ok = b2.GetLine(-3)
	require.True(t, ok)
	require.Equal(t, "one", line.Data.Body)

	_, ok = b2.GetLine(-4)
	require.False(t, ok)
}

func TestGetLineBridgesSessions(t *testing.T) {
	dir := t.TempDir()
	target := proto.ChannelTarget("#go")

	b := New("net", target, dir)
	push(t, b, "old")

	b2 := New("net", target, dir)
	push(t, b2, "new")

	newest, ok := b2.GetLine(0)
	require.True(t, ok)
	require.Equal(t, "new", newest.Data.Body)

	oldest, ok := b2.GetLine(-1)
	require.True(t, ok)
	require.Equal(t, "old", oldest.Data.Body)
}

func TestLastIndex(t *testing.T) {
	dir := t.TempDir()
	target := proto.ChannelTarget("#go")

	b := New("net", target, dir)
	require.Equal(t, 0, b.LastIndex())
	push(t, b, "one")
	push(t, b, "two")

	b2 := New("net", target, dir)
	require.Equal(t, -2, b2.LastIndex())
}

func TestSetJoinedEmitsState(t *testing.T) {
	b := New("net", proto.ChannelTarget("#go"), t.TempDir())
	h := update.NewBaseHandle[proto.CoreBufMsg]()

	b.SetJoined(true, h)
	msgs := h.TakeMessages()
	require.Len(t, msgs, 1)
	require.Equal(t, proto.BufState, msgs[0].Type)
	require.True(t, msgs[0].Joined)
	require.True(t, b.Joined())
}

func TestHandleNamesAccumulatesUntilEnd(t *testing.T) {
	b := New("net", proto.ChannelTarget("#go"), t.TempDir())

	b.HandleNames("@op +voice plain")
	b.HandleNames("~owner more")
	require.ElementsMatch(t, []string{"op", "voice", "plain", "owner", "more"}, b.Users())

	// After the terminator, the next burst replaces the set.
	b.EndNames()
	b.HandleNames("only")
	require.ElementsMatch(t, []string{"only"}, b.Users())
}

func TestPresenceOperations(t *testing.T) {
	b := New("net", proto.ChannelTarget("#go"), t.TempDir())

	b.AddUser("alice")
	b.AddUser("bob")
	require.True(t, b.HasUser("alice"))

	b.RenameUser("alice", "alicia")
	require.False(t, b.HasUser("alice"))
	require.True(t, b.HasUser("alicia"))

	// Renaming someone absent is a no-op.
	b.RenameUser("ghost", "spirit")
	require.False(t, b.HasUser("spirit"))

	b.RemoveUser("bob")
	require.False(t, b.HasUser("bob"))

	b.ClearUsers()
	require.Empty(t, b.Users())
}
