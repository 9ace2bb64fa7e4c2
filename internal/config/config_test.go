package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Controller.Address() != "127.0.0.1:8851" {
		t.Errorf("controller address = %s, want 127.0.0.1:8851", cfg.Controller.Address())
	}
	if cfg.Supervisor.IdleInterval() != 2*time.Second {
		t.Errorf("idle interval = %v, want 2s", cfg.Supervisor.IdleInterval())
	}
	if cfg.Supervisor.ReconnectDelay() != 5*time.Second {
		t.Errorf("reconnect delay = %v, want 5s", cfg.Supervisor.ReconnectDelay())
	}
	if cfg.Poller.FetchTimeout() != 3*time.Second {
		t.Errorf("fetch timeout = %v, want 3s", cfg.Poller.FetchTimeout())
	}
	if cfg.Poller.Cooldown() != 2*time.Second {
		t.Errorf("cooldown = %v, want 2s", cfg.Poller.Cooldown())
	}
	if cfg.Status.Enabled || cfg.History.Enabled {
		t.Error("optional features should be disabled by default")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
controller:
  host: plc.local
  port: 9000
poller:
  cooldown_ms: 500
logging:
  level: debug
`)
	t.Setenv("PLCSNMP_CONTROLLER_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Controller.Host != "plc.local" {
		t.Errorf("host = %q, want plc.local from file", cfg.Controller.Host)
	}
	if cfg.Controller.Port != 9100 {
		t.Errorf("port = %d, want 9100 from environment", cfg.Controller.Port)
	}
	if cfg.Poller.Cooldown() != 500*time.Millisecond {
		t.Errorf("cooldown = %v, want 500ms", cfg.Poller.Cooldown())
	}
	if cfg.Poller.FetchTimeout() != 3*time.Second {
		t.Errorf("fetch timeout = %v, want default 3s", cfg.Poller.FetchTimeout())
	}
}

func TestLoad_InvalidEnvPort(t *testing.T) {
	t.Setenv("PLCSNMP_CONTROLLER_PORT", "eighty")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "controller: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"port too large", func(c *Config) { c.Controller.Port = 70000 }, "controller port"},
		{"short api key", func(c *Config) { c.Controller.APIKey = "short" }, "api_key"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"file output without path", func(c *Config) { c.Logging.Output = "file" }, "file_path"},
		{"history without db name", func(c *Config) {
			c.History.Enabled = true
			c.History.Database.DBName = ""
		}, "dbname"},
		{"negative cooldown", func(c *Config) { c.Poller.CooldownMS = -1 }, "poller"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParsePort(t *testing.T) {
	for _, in := range []string{"0", "-1", "65536", "abc", ""} {
		if _, err := ParsePort(in); err == nil {
			t.Errorf("ParsePort(%q) expected error", in)
		}
	}
	if port, err := ParsePort(" 8851 "); err != nil || port != 8851 {
		t.Errorf("ParsePort(8851) = %d, %v", port, err)
	}
}

func TestConnString(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", DBName: "plcsnmp", SSLMode: "disable"}
	want := "postgres://u:p%40ss@db:5432/plcsnmp?sslmode=disable"
	if got := db.ConnString(); got != want {
		t.Errorf("ConnString() = %s, want %s", got, want)
	}
}

func TestDumpExampleConfig_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := DumpExampleConfig(&buf); err != nil {
		t.Fatalf("DumpExampleConfig() error = %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(buf.Bytes(), &cfg); err != nil {
		t.Fatalf("example is not valid yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config does not validate: %v", err)
	}
}
