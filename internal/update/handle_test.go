package update

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matt0x6f/ircquill/internal/proto"
)

func TestBaseHandleCollectsAndClears(t *testing.T) {
	h := NewBaseHandle[string]()
	h.SendToClients("a")
	h.SendToClients("b")
	h.PostAlert(proto.Alert{Message: "ping"})

	require.Equal(t, []string{"a", "b"}, h.TakeMessages())
	require.Empty(t, h.TakeMessages())

	alerts := h.TakeAlerts()
	require.Len(t, alerts, 1)
	require.Equal(t, "ping", alerts[0].Message)
	require.Empty(t, h.TakeAlerts())
}

func TestWrapNestsEnvelopes(t *testing.T) {
	base := NewBaseHandle[proto.CoreMsg]()
	netLevel := Wrap(base, func(msg proto.CoreNetMsg) proto.CoreMsg {
		return proto.NetMsg("freenode", msg)
	})
	target := proto.ChannelTarget("#go")
	bufLevel := Wrap(netLevel, func(msg proto.CoreBufMsg) proto.CoreNetMsg {
		return proto.BufMsg(target, msg)
	})

	bufLevel.SendToClients(proto.NewLinesMsg(proto.Line{ID: 7}))

	msgs := base.TakeMessages()
	require.Len(t, msgs, 1)
	require.Equal(t, proto.CoreNet, msgs[0].Type)
	require.Equal(t, "freenode", msgs[0].NetworkID)
	require.Equal(t, proto.NetBuf, msgs[0].Net.Type)
	require.Equal(t, target, *msgs[0].Net.Target)
	require.Equal(t, proto.BufNewLines, msgs[0].Net.Buf.Type)
	require.Equal(t, int64(7), msgs[0].Net.Buf.Lines[0].ID)
}

func TestWrapPassesAlertsThrough(t *testing.T) {
	base := NewBaseHandle[proto.CoreMsg]()
	inner := Wrap(base, func(msg proto.CoreNetMsg) proto.CoreMsg {
		return proto.NetMsg("net", msg)
	})
	alert := proto.Alert{NetworkID: "net", Message: "hi"}
	inner.PostAlert(alert)

	alerts := base.TakeAlerts()
	require.Len(t, alerts, 1)
	require.Equal(t, alert, alerts[0])
}
