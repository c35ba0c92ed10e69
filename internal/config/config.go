package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/arena/internal/errors"
	"github.com/vango-dev/arena/pkg/loadbalancing"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "arena.yaml"

	// DefaultMasterAddress is the master address used by the dev server.
	DefaultMasterAddress = "localhost:9090"

	// DefaultAppVersion is the application version sent on authenticate.
	DefaultAppVersion = "1.0"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log format.
	DefaultLogFormat = "text"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ARENA_"
)

// configFileNames are searched in order.
var configFileNames = []string{ConfigFileName, "arena.yml", "arena.json"}

// Config represents the complete arena configuration.
type Config struct {
	// Client configures the load-balancing client.
	Client ClientConfig `json:"client" yaml:"client"`

	// Log configures logging.
	Log LogConfig `json:"log" yaml:"log"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// AuthServer configures 'arena auth-server'.
	AuthServer AuthServerConfig `json:"authServer" yaml:"authServer"`

	// DevServer configures 'arena dev-server'.
	DevServer DevServerConfig `json:"devServer" yaml:"devServer"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ClientConfig contains client connection settings.
type ClientConfig struct {
	// MasterAddress is host:port of the master server, or a full URL.
	MasterAddress string `json:"masterAddress,omitempty" yaml:"masterAddress,omitempty"`

	// Scheme is "ws" or "wss".
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"`

	// SubProtocols are offered to both servers.
	SubProtocols []string `json:"subProtocols,omitempty" yaml:"subProtocols,omitempty"`

	// AppID identifies the application.
	AppID string `json:"appId,omitempty" yaml:"appId,omitempty"`

	// AppVersion separates incompatible client versions.
	AppVersion string `json:"appVersion,omitempty" yaml:"appVersion,omitempty"`

	// UserID identifies the user. A random id is generated when empty.
	UserID string `json:"userId,omitempty" yaml:"userId,omitempty"`

	// PlayerName is the local actor's display name.
	PlayerName string `json:"playerName,omitempty" yaml:"playerName,omitempty"`

	// KeepAliveMs is the idle interval before a ping, in milliseconds.
	KeepAliveMs int `json:"keepAliveMs,omitempty" yaml:"keepAliveMs,omitempty"`

	// KeepMasterConnection keeps the master connection open while in a room.
	KeepMasterConnection bool `json:"keepMasterConnection,omitempty" yaml:"keepMasterConnection,omitempty"`

	// Auth enables custom authentication.
	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// AuthConfig contains custom authentication values.
type AuthConfig struct {
	Type   int    `json:"type,omitempty" yaml:"type,omitempty"`
	Params string `json:"params,omitempty" yaml:"params,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	// Addr serves /metrics when set.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// AuthServerConfig contains settings for the bundled auth service.
type AuthServerConfig struct {
	Addr        string            `json:"addr,omitempty" yaml:"addr,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty" yaml:"credentials,omitempty"`
}

// DevServerConfig contains settings for the in-process development server.
type DevServerConfig struct {
	MasterAddr string `json:"masterAddr,omitempty" yaml:"masterAddr,omitempty"`
	GameAddr   string `json:"gameAddr,omitempty" yaml:"gameAddr,omitempty"`

	// AuthURL, when set, checks custom auth against an auth service.
	AuthURL string `json:"authUrl,omitempty" yaml:"authUrl,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Client: ClientConfig{
			MasterAddress: DefaultMasterAddress,
			Scheme:        "ws",
			AppVersion:    DefaultAppVersion,
			KeepAliveMs:   3000,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		AuthServer: AuthServerConfig{
			Addr: ":8081",
		},
		DevServer: DevServerConfig{
			MasterAddr: ":9090",
			GameAddr:   ":9091",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for arena.yaml, arena.yml and arena.json in that order.
func Load(dir string) (*Config, error) {
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("A041").
		WithDetail("No arena.yaml or arena.json found in " + dir)
}

// LoadFile reads configuration from a specific file. The format follows the
// file extension: .json is JSON, anything else is YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("A041").
				WithDetail("File not found: " + path)
		}
		return nil, errors.New("A042").Wrap(err)
	}

	cfg := New()
	if isJSON(path) {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("A042").
			WithDetail("Invalid config in " + path).
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration to the path it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.New("A042").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("A042").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in zero values.
func (c *Config) applyDefaults() {
	def := New()
	if c.Client.Scheme == "" {
		c.Client.Scheme = def.Client.Scheme
	}
	if c.Client.AppVersion == "" {
		c.Client.AppVersion = def.Client.AppVersion
	}
	if c.Client.KeepAliveMs == 0 {
		c.Client.KeepAliveMs = def.Client.KeepAliveMs
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.AuthServer.Addr == "" {
		c.AuthServer.Addr = def.AuthServer.Addr
	}
	if c.DevServer.MasterAddr == "" {
		c.DevServer.MasterAddr = def.DevServer.MasterAddr
	}
	if c.DevServer.GameAddr == "" {
		c.DevServer.GameAddr = def.DevServer.GameAddr
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Client.Scheme {
	case "ws", "wss":
	default:
		return errors.New("A040").
			WithDetail("client.scheme must be ws or wss, got " + strconv.Quote(c.Client.Scheme))
	}
	if c.Client.KeepAliveMs < 0 {
		return errors.New("A040").
			WithDetail("client.keepAliveMs must not be negative")
	}
	if _, ok := logLevels[strings.ToLower(c.Log.Level)]; !ok {
		return errors.New("A040").
			WithDetail("log.level must be one of debug, info, warn, error").
			WithSuggestion("Use --log-level info")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("A040").
			WithDetail("log.format must be text or json")
	}
	return nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	if level, ok := logLevels[strings.ToLower(c.Log.Level)]; ok {
		return level
	}
	return slog.LevelInfo
}

// KeepAlive returns the client keep-alive interval.
func (c *Config) KeepAlive() time.Duration {
	return time.Duration(c.Client.KeepAliveMs) * time.Millisecond
}

// EnsureUserID generates a random user id when none is configured.
func (c *Config) EnsureUserID() string {
	if c.Client.UserID == "" {
		c.Client.UserID = uuid.NewString()
	}
	return c.Client.UserID
}

// ClientConfig builds a load-balancing client configuration.
// Logger, metrics and tracing are left for the caller to set.
func (c *Config) ClientConfig() *loadbalancing.Config {
	cfg := &loadbalancing.Config{
		MasterAddress:        c.Client.MasterAddress,
		Scheme:               c.Client.Scheme,
		SubProtocols:         append([]string(nil), c.Client.SubProtocols...),
		AppID:                c.Client.AppID,
		AppVersion:           c.Client.AppVersion,
		UserID:               c.Client.UserID,
		PlayerName:           c.Client.PlayerName,
		KeepMasterConnection: c.Client.KeepMasterConnection,
		KeepAlive:            c.KeepAlive(),
	}
	if c.Client.Auth != nil {
		cfg.Auth = &loadbalancing.AuthValues{
			Type:   c.Client.Auth.Type,
			Params: c.Client.Auth.Params,
		}
	}
	return cfg
}

// ApplyEnv overrides values from ARENA_* variables returned by lookup.
// Pass os.LookupEnv for the process environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("A040").
				WithDetail(EnvPrefix + name + " must be an integer").
				Wrap(err)
		}
		*dst = n
		return nil
	}

	str("MASTER_ADDRESS", &c.Client.MasterAddress)
	str("SCHEME", &c.Client.Scheme)
	str("APP_ID", &c.Client.AppID)
	str("APP_VERSION", &c.Client.AppVersion)
	str("USER_ID", &c.Client.UserID)
	str("PLAYER_NAME", &c.Client.PlayerName)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("AUTH_SERVER_ADDR", &c.AuthServer.Addr)
	str("AUTH_URL", &c.DevServer.AuthURL)

	if err := num("KEEP_ALIVE_MS", &c.Client.KeepAliveMs); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "KEEP_MASTER_CONNECTION"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("A040").
				WithDetail(EnvPrefix + "KEEP_MASTER_CONNECTION must be a boolean").
				Wrap(err)
		}
		c.Client.KeepMasterConnection = b
	}

	if v, ok := lookup(EnvPrefix + "AUTH_PARAMS"); ok && v != "" {
		if c.Client.Auth == nil {
			c.Client.Auth = &AuthConfig{}
		}
		c.Client.Auth.Params = v
	}
	if c.Client.Auth != nil {
		if err := num("AUTH_TYPE", &c.Client.Auth.Type); err != nil {
			return err
		}
	}
	return nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.New("A042").
			WithDetail("Invalid env file " + path).
			Wrap(err)
	}
	return nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range configFileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find a config file.
// Returns the directory containing it, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("A041").
				WithDetail("No arena.yaml found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or its parents.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
