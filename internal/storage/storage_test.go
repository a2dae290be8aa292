package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matt0x6f/ircquill/internal/proto"
)

func openTestStore(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAlertQueueDrainsInOrder(t *testing.T) {
	s := openTestStore(t)

	first := proto.Alert{NetworkID: "net", Target: proto.ChannelTarget("#go"), Message: "one"}
	second := proto.Alert{NetworkID: "net", Target: proto.PrivateTarget("alice"), Message: "two"}
	s.QueueAlert("bob", first)
	s.QueueAlert("bob", second)
	s.QueueAlert("carol", proto.Alert{NetworkID: "net", Target: proto.ChannelTarget("#x"), Message: "hers"})

	alerts := s.TakeAlerts("bob")
	require.Equal(t, []proto.Alert{first, second}, alerts)

	// Taking clears the queue for that user only.
	require.Empty(t, s.TakeAlerts("bob"))
	require.Len(t, s.TakeAlerts("carol"), 1)
}

func TestBufferCatalog(t *testing.T) {
	s := openTestStore(t)

	ch := proto.ChannelTarget("#go")
	pm := proto.PrivateTarget("alice")
	s.RememberBuffer("bob", "net", ch)
	s.RememberBuffer("bob", "net", pm)
	// Remembering again is idempotent.
	s.RememberBuffer("bob", "net", ch)
	s.RememberBuffer("bob", "other", proto.ChannelTarget("#elsewhere"))

	targets := s.Buffers("bob", "net")
	require.ElementsMatch(t, []proto.Target{ch, pm}, targets)
	require.Empty(t, s.Buffers("alice", "net"))
}

func TestCatalogSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	require.NoError(t, err)
	s.RememberBuffer("bob", "net", proto.ChannelTarget("#go"))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	require.Len(t, s2.Buffers("bob", "net"), 1)
}
