package config

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/arena/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Client.MasterAddress != DefaultMasterAddress {
		t.Errorf("Client.MasterAddress = %q, want %q", cfg.Client.MasterAddress, DefaultMasterAddress)
	}
	if cfg.Client.AppVersion != DefaultAppVersion {
		t.Errorf("Client.AppVersion = %q, want %q", cfg.Client.AppVersion, DefaultAppVersion)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := Load(tmpDir); err == nil {
		t.Error("Expected error for missing config")
	}

	configYAML := `client:
  masterAddress: master.example:9090
  appId: arena-test
  playerName: ann
  keepAliveMs: 500
  auth:
    params: user=ann&token=secret
log:
  level: debug
  format: json
authServer:
  credentials:
    ann: secret
`
	path := filepath.Join(tmpDir, ConfigFileName)
	if err := os.WriteFile(path, []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Client.MasterAddress != "master.example:9090" {
		t.Errorf("Client.MasterAddress = %q", cfg.Client.MasterAddress)
	}
	if cfg.Client.AppID != "arena-test" {
		t.Errorf("Client.AppID = %q", cfg.Client.AppID)
	}
	if cfg.KeepAlive() != 500*time.Millisecond {
		t.Errorf("KeepAlive() = %v", cfg.KeepAlive())
	}
	if cfg.Client.Auth == nil || cfg.Client.Auth.Params != "user=ann&token=secret" {
		t.Errorf("Client.Auth = %+v", cfg.Client.Auth)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel() = %v", cfg.LogLevel())
	}
	if cfg.AuthServer.Credentials["ann"] != "secret" {
		t.Errorf("AuthServer.Credentials = %v", cfg.AuthServer.Credentials)
	}

	// Defaults fill in omitted values.
	if cfg.Client.Scheme != "ws" {
		t.Errorf("Client.Scheme = %q, want ws", cfg.Client.Scheme)
	}
	if cfg.DevServer.GameAddr != ":9091" {
		t.Errorf("DevServer.GameAddr = %q", cfg.DevServer.GameAddr)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
	if cfg.Dir() != tmpDir {
		t.Errorf("Dir() = %q, want %q", cfg.Dir(), tmpDir)
	}
}

func TestLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "arena.json")
	configJSON := `{"client": {"appId": "json-app", "keepMasterConnection": true}}`
	if err := os.WriteFile(path, []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Client.AppID != "json-app" {
		t.Errorf("Client.AppID = %q", cfg.Client.AppID)
	}
	if !cfg.Client.KeepMasterConnection {
		t.Error("Client.KeepMasterConnection = false, want true")
	}
	// Unset fields keep the defaults from New.
	if cfg.Client.MasterAddress != DefaultMasterAddress {
		t.Errorf("Client.MasterAddress = %q", cfg.Client.MasterAddress)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := LoadFile(filepath.Join(tmpDir, "missing.yaml"))
	var ae *errors.ArenaError
	if !stderrors.As(err, &ae) || ae.Code != "A041" {
		t.Errorf("missing file error = %v, want A041", err)
	}

	bad := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadFile(bad)
	if !stderrors.As(err, &ae) || ae.Code != "A042" {
		t.Errorf("parse error = %v, want A042", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"arena.yaml", "arena.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			cfg := New()
			cfg.Client.AppID = "saved"
			cfg.Client.SubProtocols = []string{"arena.v1"}
			if err := cfg.SaveTo(path); err != nil {
				t.Fatalf("SaveTo() error = %v", err)
			}

			loaded, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			if loaded.Client.AppID != "saved" {
				t.Errorf("Client.AppID = %q", loaded.Client.AppID)
			}
			if len(loaded.Client.SubProtocols) != 1 || loaded.Client.SubProtocols[0] != "arena.v1" {
				t.Errorf("Client.SubProtocols = %v", loaded.Client.SubProtocols)
			}

			loaded.Client.AppID = "changed"
			if err := loaded.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
		})
	}

	if err := New().Save(); err == nil {
		t.Error("Save() without a path should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		detail string
	}{
		{"scheme", func(c *Config) { c.Client.Scheme = "http" }, "client.scheme"},
		{"keep alive", func(c *Config) { c.Client.KeepAliveMs = -1 }, "keepAliveMs"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)

			err := cfg.Validate()
			var ae *errors.ArenaError
			if !stderrors.As(err, &ae) {
				t.Fatalf("Validate() = %v, want *ArenaError", err)
			}
			if ae.Code != "A040" {
				t.Errorf("Code = %q, want A040", ae.Code)
			}
			if !strings.Contains(ae.Detail, tt.detail) {
				t.Errorf("Detail = %q, want to contain %q", ae.Detail, tt.detail)
			}
		})
	}

	cfg := New()
	cfg.Client.Scheme = "wss"
	cfg.Log.Level = "WARN"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if cfg.LogLevel() != slog.LevelWarn {
		t.Errorf("LogLevel() = %v, want warn", cfg.LogLevel())
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ARENA_MASTER_ADDRESS":         "env.example:1",
		"ARENA_APP_ID":                 "env-app",
		"ARENA_PLAYER_NAME":            "bob",
		"ARENA_KEEP_ALIVE_MS":          "1500",
		"ARENA_KEEP_MASTER_CONNECTION": "true",
		"ARENA_AUTH_PARAMS":            "user=bob&token=t",
		"ARENA_AUTH_TYPE":              "1",
		"ARENA_LOG_FORMAT":             "json",
		"ARENA_METRICS_ADDR":           ":9100",
		"ARENA_SCHEME":                 "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := New()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Client.MasterAddress != "env.example:1" {
		t.Errorf("Client.MasterAddress = %q", cfg.Client.MasterAddress)
	}
	if cfg.Client.AppID != "env-app" || cfg.Client.PlayerName != "bob" {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if cfg.Client.KeepAliveMs != 1500 || !cfg.Client.KeepMasterConnection {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if cfg.Client.Auth == nil || cfg.Client.Auth.Params != "user=bob&token=t" || cfg.Client.Auth.Type != 1 {
		t.Errorf("Client.Auth = %+v", cfg.Client.Auth)
	}
	if cfg.Log.Format != "json" || cfg.Metrics.Addr != ":9100" {
		t.Errorf("Log = %+v Metrics = %+v", cfg.Log, cfg.Metrics)
	}
	// Empty values do not override.
	if cfg.Client.Scheme != "ws" {
		t.Errorf("Client.Scheme = %q, want ws", cfg.Client.Scheme)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	for key, value := range map[string]string{
		"ARENA_KEEP_ALIVE_MS":          "soon",
		"ARENA_KEEP_MASTER_CONNECTION": "maybe",
	} {
		cfg := New()
		err := cfg.ApplyEnv(func(k string) (string, bool) {
			if k == key {
				return value, true
			}
			return "", false
		})
		if err == nil {
			t.Errorf("ApplyEnv(%s=%s) = nil, want error", key, value)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := t.TempDir()

	if err := LoadDotEnv(filepath.Join(tmpDir, ".env")); err != nil {
		t.Errorf("LoadDotEnv(missing) = %v, want nil", err)
	}

	path := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(path, []byte("ARENA_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ARENA_TEST_DOTENV", "")
	os.Unsetenv("ARENA_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("ARENA_TEST_DOTENV"); got != "from-file" {
		t.Errorf("ARENA_TEST_DOTENV = %q, want from-file", got)
	}
}

func TestEnsureUserID(t *testing.T) {
	cfg := New()
	id := cfg.EnsureUserID()
	if id == "" {
		t.Fatal("EnsureUserID() returned empty id")
	}
	if cfg.EnsureUserID() != id {
		t.Error("EnsureUserID() should keep an existing id")
	}
}

func TestClientConfig(t *testing.T) {
	cfg := New()
	cfg.Client.AppID = "arena-test"
	cfg.Client.PlayerName = "ann"
	cfg.Client.KeepAliveMs = 250
	cfg.Client.Auth = &AuthConfig{Params: "user=ann"}

	lb := cfg.ClientConfig()
	if lb.MasterAddress != DefaultMasterAddress || lb.AppID != "arena-test" || lb.PlayerName != "ann" {
		t.Errorf("ClientConfig() = %+v", lb)
	}
	if lb.KeepAlive != 250*time.Millisecond {
		t.Errorf("KeepAlive = %v", lb.KeepAlive)
	}
	if lb.Auth == nil || lb.Auth.Params != "user=ann" {
		t.Errorf("Auth = %+v", lb.Auth)
	}

	cfg.Client.Auth.Params = "changed"
	if lb.Auth.Params != "user=ann" {
		t.Error("ClientConfig() should copy auth values")
	}
}

func TestFindProjectRoot(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("client: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	root, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot() error = %v", err)
	}
	want, _ := filepath.Abs(tmpDir)
	if root != want {
		t.Errorf("FindProjectRoot() = %q, want %q", root, want)
	}
	if !Exists(tmpDir) || Exists(nested) {
		t.Error("Exists() mismatch")
	}
}
