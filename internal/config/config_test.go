package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ircquill.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen = "127.0.0.1:9000"
data_dir = "/var/lib/ircquill"

[user.bob]
password = "$2a$10$abcdefghijklmnopqrstuv"
alert_cmd = "notify-send '%m'"

[user.bob.net.libera]
nick = "quill"
alt_nicks = ["quill_", "quill__"]
username = "bobident"
realname = "Bob"
server = "irc.libera.chat:6667"
nickserv_pass = "hunter2"
channels = ["#go-nuts", "#ircquill"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Listen)
	require.Equal(t, "/var/lib/ircquill", cfg.DataDir)

	user, ok := cfg.Users["bob"]
	require.True(t, ok)
	require.Equal(t, "notify-send '%m'", user.AlertCmd)

	net, ok := user.Networks["libera"]
	require.True(t, ok)
	require.Equal(t, "quill", net.Nick)
	require.Equal(t, []string{"quill_", "quill__"}, net.AltNicks)
	require.Equal(t, "irc.libera.chat:6667", net.Server)
	require.Equal(t, "hunter2", net.NickServPass)
	require.Equal(t, []string{"#go-nuts", "#ircquill"}, net.Channels)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[user.bob]
password = "hash"

[user.bob.net.libera]
nick = "quill"
server = "irc.libera.chat:6667"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:4777", cfg.Listen)
	require.Equal(t, ".", cfg.DataDir)

	net := cfg.Users["bob"].Networks["libera"]
	// Username and realname fall back to the nick.
	require.Equal(t, "quill", net.UserName())
	require.Equal(t, "quill", net.RealName())
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	_, err := Load(writeConfig(t, ``))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `
[user.bob]
password = ""
`))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `
[user.bob]
password = "hash"

[user.bob.net.libera]
server = "irc.libera.chat:6667"
`))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `
[user.bob]
password = "hash"

[user.bob.net.libera]
nick = "quill"
`))
	require.Error(t, err)
}
