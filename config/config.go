// Package config collects every configurable value a Hub needs at
// startup into one mapstructure-tagged struct, bound to viper flags
// and an optional config file by cmd/hub.
package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/farcasterxyz/hubcore/common"
	"github.com/farcasterxyz/hubcore/message"
)

// Default filenames.
const (
	// DefaultBadgerDir is the default name of the folder containing
	// the badger database under DataDir.
	DefaultBadgerDir = "badger_db"

	// DefaultFidsFile is the default name of the fid registry's JSON
	// snapshot under DataDir.
	DefaultFidsFile = "fids.json"
)

// Default configuration values (§5, §6, §8).
const (
	DefaultLogLevel      = "info"
	DefaultBindAddr      = "127.0.0.1:13377"
	DefaultHTTPAddr      = "127.0.0.1:8080"
	DefaultMaxPool       = 2
	DefaultRPCTimeout    = 15 * time.Second
	DefaultSyncInterval  = 30 * time.Second
	DefaultShardCount    = 16
	DefaultNetwork       = "mainnet"
)

// Config contains every configuration property of a Hub.
type Config struct {
	// DataDir is the top-level directory holding the badger database
	// and the fid registry's JSON snapshot.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// BindAddr is the local address:port the RPC transport listens on
	// for peer sync traffic (§6).
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is the address other Hubs should dial to reach
	// this one, if different from BindAddr (e.g. behind NAT).
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoHTTP disables the debug/status HTTP surface.
	NoHTTP bool `mapstructure:"no-http"`

	// HTTPAddr is the address:port of the debug/status HTTP service.
	HTTPAddr string `mapstructure:"http-listen"`

	// MaxPool controls how many connections are pooled per peer in
	// the RPC transport.
	MaxPool int `mapstructure:"max-pool"`

	// RPCTimeout bounds every individual sync RPC call (§5
	// "Timeouts").
	RPCTimeout time.Duration `mapstructure:"rpc-timeout"`

	// SyncInterval is how often the diff-sync scheduler runs a
	// periodic cycle against a random peer (§4.5).
	SyncInterval time.Duration `mapstructure:"sync-interval"`

	// ShardCount is the number of serial per-fid merge queues (§5).
	ShardCount int `mapstructure:"shards"`

	// Network selects which Farcaster network messages must declare
	// to be accepted (§4.1 step 4): "mainnet", "testnet", or "devnet".
	Network string `mapstructure:"network"`

	// Nickname is this Hub's human-readable identity, reported by
	// GetInfo (§6).
	Nickname string `mapstructure:"nickname"`

	// Peers is the initial set of peer addresses the diff-sync
	// scheduler selects among (§4.5).
	Peers []string `mapstructure:"peers"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a Config with every default value set.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:      DefaultDataDir(),
		LogLevel:     DefaultLogLevel,
		BindAddr:     DefaultBindAddr,
		HTTPAddr:     DefaultHTTPAddr,
		MaxPool:      DefaultMaxPool,
		RPCTimeout:   DefaultRPCTimeout,
		SyncInterval: DefaultSyncInterval,
		ShardCount:   DefaultShardCount,
		Network:      DefaultNetwork,
	}
}

// NewTestConfig returns a Config with default values and a logger
// that only surfaces output on test failure.
func NewTestConfig(t *testing.T) *Config {
	c := NewDefaultConfig()
	c.logger = common.NewTestLogger(t)
	return c
}

// SetDataDir sets DataDir, moving the database path along with it.
func (c *Config) SetDataDir(dir string) {
	c.DataDir = dir
}

// BadgerDir returns the full path of the badger database directory.
func (c *Config) BadgerDir() string {
	return filepath.Join(c.DataDir, DefaultBadgerDir)
}

// FidsFile returns the full path of the fid registry's JSON snapshot.
func (c *Config) FidsFile() string {
	return filepath.Join(c.DataDir, DefaultFidsFile)
}

// NetworkID parses Network into a message.Network, defaulting to
// mainnet for an unrecognized value.
func (c *Config) NetworkID() message.Network {
	switch c.Network {
	case "testnet":
		return message.NetworkTestnet
	case "devnet":
		return message.NetworkDevnet
	default:
		return message.NetworkMainnet
	}
}

// Logger returns a formatted logrus Entry, with prefix set to "hub".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "hub")
}

// DefaultDataDir returns the default top-level data directory based on
// the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, ".Hubcore")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Hubcore")
	default:
		return filepath.Join(home, ".hubcore")
	}
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a logrus level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
