package peer

import (
	"log/slog"
	"strings"
	"time"

	"github.com/vango-dev/arena/pkg/loop"
)

// Keep-alive bounds.
const (
	// DefaultKeepAlive is the idle time after which a ping is sent.
	DefaultKeepAlive = 5000 * time.Millisecond

	// MinKeepAlive is the smallest enabled keep-alive; shorter values disable it.
	MinKeepAlive = 1000 * time.Millisecond
)

// Config holds configuration for a single peer.
type Config struct {
	// Name labels logs and metrics (e.g. "master", "game").
	// Default: "peer".
	Name string

	// URL is the websocket address, scheme://host:port[/path].
	URL string

	// SubProtocols are offered during the websocket handshake.
	SubProtocols []string

	// KeepAlive is the idle interval before a ping. Values below MinKeepAlive
	// disable pings.
	// Default: 5 seconds.
	KeepAlive time.Duration

	// DialTimeout bounds opening the socket.
	// Default: 10 seconds.
	DialTimeout time.Duration

	// WriteTimeout bounds a single socket write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxMessageSize is the largest accepted incoming socket message.
	// Default: 1MB.
	MaxMessageSize int64

	// Executor runs listeners and hooks. Peers of one client share it.
	// Default: a private loop.Loop started by New.
	Executor loop.Executor

	// Dialer opens sockets.
	// Default: WebsocketDialer{}.
	Dialer Dialer

	// Logger receives peer logs.
	// Default: slog.Default().
	Logger *slog.Logger

	// Metrics records peer counters. Nil disables metrics.
	Metrics *Metrics

	// timerFactory arms the keep-alive timer. Tests replace it.
	timerFactory timerFactory
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:           "peer",
		KeepAlive:      DefaultKeepAlive,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.SubProtocols = append([]string(nil), c.SubProtocols...)
	return &clone
}

// applyDefaults fills zero fields.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.Dialer == nil {
		c.Dialer = WebsocketDialer{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.timerFactory == nil {
		c.timerFactory = realTimer
	}
}

// BuildURL forms a socket URL from an address. Addresses that already carry a
// scheme are returned unchanged; otherwise scheme (default "ws") is prepended.
func BuildURL(scheme, address string) string {
	if address == "" {
		return ""
	}
	if strings.Contains(address, "://") {
		return address
	}
	if scheme == "" {
		scheme = "ws"
	}
	return scheme + "://" + address
}
