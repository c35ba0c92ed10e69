package loadbalancing

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/arena/pkg/peer"
)

// AuthValues carries optional custom-authentication parameters. They are
// forwarded to the master opaquely and checked by an external service.
type AuthValues struct {
	// Type is the client auth type sent with the authenticate request.
	Type int

	// Params is the query string forwarded to the auth service,
	// e.g. "user=ann&token=secret".
	Params string
}

// Config holds configuration for a Client.
type Config struct {
	// MasterAddress is host:port of the master server, or a full URL.
	MasterAddress string

	// Scheme is used when addresses carry none.
	// Default: "ws".
	Scheme string

	// SubProtocols are offered on both peers.
	SubProtocols []string

	// AppID identifies the application to the master.
	AppID string

	// AppVersion separates incompatible client versions.
	// Default: "1.0".
	AppVersion string

	// UserID identifies the user. Empty lets the server assign one.
	UserID string

	// PlayerName is the initial display name of the local actor.
	PlayerName string

	// Auth enables custom authentication when non-nil.
	Auth *AuthValues

	// KeepMasterConnection keeps the master peer open while in a room.
	// Default: false.
	KeepMasterConnection bool

	// KeepAlive is the peer idle interval before a ping.
	// Default: peer.DefaultKeepAlive.
	KeepAlive time.Duration

	// Dialer opens peer sockets.
	// Default: peer.WebsocketDialer{}.
	Dialer peer.Dialer

	// Logger receives client logs.
	// Default: slog.Default().
	Logger *slog.Logger

	// Metrics records peer counters for both peers. Nil disables metrics.
	Metrics *peer.Metrics

	// TracerProvider creates the client tracer.
	// Default: otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Scheme:     "ws",
		AppVersion: "1.0",
		KeepAlive:  peer.DefaultKeepAlive,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.SubProtocols = append([]string(nil), c.SubProtocols...)
	if c.Auth != nil {
		auth := *c.Auth
		clone.Auth = &auth
	}
	return &clone
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Scheme == "" {
		c.Scheme = def.Scheme
	}
	if c.AppVersion == "" {
		c.AppVersion = def.AppVersion
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = def.KeepAlive
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
}
