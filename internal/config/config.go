// Package config loads the daemon configuration: per-user records,
// each with a client password and one or more IRC network definitions.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/matt0x6f/ircquill/internal/logger"
)

// keyringPrefix marks a secret value that should be resolved from the
// OS keyring instead of being stored in the config file.
const keyringPrefix = "keyring:"

// Config is the root of the daemon configuration.
type Config struct {
	// Listen is the address the client socket server binds.
	Listen string `mapstructure:"listen"`
	// DataDir is the root for buffer logs and the state database.
	DataDir string `mapstructure:"data_dir"`
	Users   map[string]User `mapstructure:"user"`
}

// User is the configuration for one bouncer user.
type User struct {
	// Password is the bcrypt hash clients authenticate against.
	Password string `mapstructure:"password"`
	// AlertCmd is an optional shell command template run for alerts
	// when no client is attached; %m is replaced with the alert text.
	AlertCmd string             `mapstructure:"alert_cmd"`
	Networks map[string]Network `mapstructure:"net"`
}

// Network is the configuration for one IRC network connection.
type Network struct {
	Nick     string   `mapstructure:"nick"`
	AltNicks []string `mapstructure:"alt_nicks"`
	Username string   `mapstructure:"username"`
	Realname string   `mapstructure:"realname"`
	// Server is the host:port to dial.
	Server string `mapstructure:"server"`
	// NickServPass, when set, enables the NickServ identify step
	// after registration. May be a keyring: reference.
	NickServPass string   `mapstructure:"nickserv_pass"`
	Channels     []string `mapstructure:"channels"`
}

// UserName returns the IRC username, defaulting to the nick.
func (n Network) UserName() string {
	if n.Username != "" {
		return n.Username
	}
	return n.Nick
}

// RealName returns the IRC realname, defaulting to the nick.
func (n Network) RealName() string {
	if n.Realname != "" {
		return n.Realname
	}
	return n.Nick
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("listen", "127.0.0.1:4777")
	v.SetDefault("data_dir", ".")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Users) == 0 {
		return fmt.Errorf("config defines no users")
	}
	for name, user := range c.Users {
		if user.Password == "" {
			return fmt.Errorf("user %q has no password hash", name)
		}
		for netID, net := range user.Networks {
			if net.Nick == "" {
				return fmt.Errorf("network %s.%s has no nick", name, netID)
			}
			if net.Server == "" {
				return fmt.Errorf("network %s.%s has no server address", name, netID)
			}
		}
	}
	return nil
}

// resolveSecrets replaces keyring: references with the stored secret.
// The reference names the keyring service; the account is the network
// nick.
func (c *Config) resolveSecrets() error {
	for name, user := range c.Users {
		for netID, net := range user.Networks {
			if !strings.HasPrefix(net.NickServPass, keyringPrefix) {
				continue
			}
			service := strings.TrimPrefix(net.NickServPass, keyringPrefix)
			secret, err := keyring.Get(service, net.Nick)
			if err != nil {
				return fmt.Errorf("failed to read keyring secret for %s.%s: %w", name, netID, err)
			}
			logger.Log.Debug().
				Str("user", name).
				Str("network", netID).
				Msg("Resolved NickServ password from keyring")
			net.NickServPass = secret
			user.Networks[netID] = net
		}
	}
	return nil
}
