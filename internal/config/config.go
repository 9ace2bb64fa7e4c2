// Package config
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultControllerHost = "127.0.0.1"
	DefaultControllerPort = 8851
)

type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Poller     PollerConfig     `yaml:"poller"`
	Status     StatusConfig     `yaml:"status"`
	History    HistoryConfig    `yaml:"history"`
	Events     EventsConfig     `yaml:"events"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ControllerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	APIKey             string `yaml:"api_key"`
	TokenExpiryMinutes int    `yaml:"token_expiry_minutes"`
	RequestTimeoutMS   int    `yaml:"request_timeout_ms"`
}

type SupervisorConfig struct {
	IdleIntervalMS   int `yaml:"idle_interval_ms"`
	ReconnectDelayMS int `yaml:"reconnect_delay_ms"`
}

type PollerConfig struct {
	FetchTimeoutMS int `yaml:"fetch_timeout_ms"`
	CooldownMS     int `yaml:"cooldown_ms"`
}

type StatusConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

// PoolConfig defines connection pool settings
type PoolConfig struct {
	MaxConns               int `yaml:"max_conns"`
	MinConns               int `yaml:"min_conns"`
	MaxConnLifetimeMinutes int `yaml:"max_conn_lifetime_minutes"`
}

type DatabaseConfig struct {
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	DBName   string     `yaml:"dbname"`
	SSLMode  string     `yaml:"ssl_mode"`
	Pool     PoolConfig `yaml:"pool"`
}

type HistoryConfig struct {
	Enabled         bool           `yaml:"enabled"`
	Database        DatabaseConfig `yaml:"database"`
	BatchSize       int            `yaml:"batch_size"`
	FlushIntervalMS int            `yaml:"flush_interval_ms"`
}

type EventsConfig struct {
	TickBufferSize       int `yaml:"tick_buffer_size"`
	TransitionBufferSize int `yaml:"transition_buffer_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads configuration from file, fills defaults and applies environment
// variable overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.ApplyDefaults()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills every zero value with its default
func (c *Config) ApplyDefaults() {
	if c.Controller.Host == "" {
		c.Controller.Host = DefaultControllerHost
	}
	if c.Controller.Port == 0 {
		c.Controller.Port = DefaultControllerPort
	}
	if c.Controller.TokenExpiryMinutes == 0 {
		c.Controller.TokenExpiryMinutes = 15
	}
	if c.Controller.RequestTimeoutMS == 0 {
		c.Controller.RequestTimeoutMS = 3000
	}

	if c.Supervisor.IdleIntervalMS == 0 {
		c.Supervisor.IdleIntervalMS = 2000
	}
	if c.Supervisor.ReconnectDelayMS == 0 {
		c.Supervisor.ReconnectDelayMS = 5000
	}

	if c.Poller.FetchTimeoutMS == 0 {
		c.Poller.FetchTimeoutMS = 3000
	}
	if c.Poller.CooldownMS == 0 {
		c.Poller.CooldownMS = 2000
	}

	if c.Status.Host == "" {
		c.Status.Host = "127.0.0.1"
	}
	if c.Status.Port == 0 {
		c.Status.Port = 9851
	}
	if c.Status.ReadTimeoutMS == 0 {
		c.Status.ReadTimeoutMS = 5000
	}
	if c.Status.WriteTimeoutMS == 0 {
		c.Status.WriteTimeoutMS = 10000
	}

	db := &c.History.Database
	if db.Host == "" {
		db.Host = "localhost"
	}
	if db.Port == 0 {
		db.Port = 5432
	}
	if db.DBName == "" {
		db.DBName = "plcsnmp"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	db.Pool.ApplyDefaults()
	if c.History.BatchSize == 0 {
		c.History.BatchSize = 500
	}
	if c.History.FlushIntervalMS == 0 {
		c.History.FlushIntervalMS = 5000
	}

	if c.Events.TickBufferSize == 0 {
		c.Events.TickBufferSize = 256
	}
	if c.Events.TransitionBufferSize == 0 {
		c.Events.TransitionBufferSize = 32
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate ensures all configuration values are usable
func (c *Config) Validate() error {
	if c.Controller.Host == "" {
		return fmt.Errorf("controller host is required")
	}
	if err := validPort("controller port", c.Controller.Port); err != nil {
		return err
	}
	if c.Controller.APIKey != "" && len(c.Controller.APIKey) < 32 {
		return fmt.Errorf("controller api_key must be at least 32 characters")
	}
	if c.Controller.RequestTimeoutMS < 0 || c.Controller.TokenExpiryMinutes < 0 {
		return fmt.Errorf("controller timeouts must not be negative")
	}

	if c.Supervisor.IdleIntervalMS < 0 || c.Supervisor.ReconnectDelayMS < 0 {
		return fmt.Errorf("supervisor intervals must not be negative")
	}
	if c.Poller.FetchTimeoutMS < 0 || c.Poller.CooldownMS < 0 {
		return fmt.Errorf("poller timings must not be negative")
	}

	if c.Status.Enabled {
		if err := validPort("status port", c.Status.Port); err != nil {
			return err
		}
	}

	if c.History.Enabled {
		if c.History.Database.Host == "" || c.History.Database.DBName == "" {
			return fmt.Errorf("history database host and dbname are required")
		}
		if err := validPort("history database port", c.History.Database.Port); err != nil {
			return err
		}
		if c.History.BatchSize < 0 {
			return fmt.Errorf("history batch_size must not be negative")
		}
	}

	if c.Events.TickBufferSize < 0 || c.Events.TransitionBufferSize < 0 {
		return fmt.Errorf("event buffer sizes must not be negative")
	}

	if !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file_path is required when output is file")
	}

	return nil
}

// applyEnvOverrides checks for environment variables with PLCSNMP_ prefix
func applyEnvOverrides(cfg *Config) error {
	// Controller overrides
	if v := os.Getenv("PLCSNMP_CONTROLLER_HOST"); v != "" {
		cfg.Controller.Host = v
	}
	if v := os.Getenv("PLCSNMP_CONTROLLER_PORT"); v != "" {
		port, err := ParsePort(v)
		if err != nil {
			return fmt.Errorf("PLCSNMP_CONTROLLER_PORT: %w", err)
		}
		cfg.Controller.Port = port
	}
	if v := os.Getenv("PLCSNMP_CONTROLLER_API_KEY"); v != "" {
		cfg.Controller.APIKey = v
	}

	// Status overrides
	if v := os.Getenv("PLCSNMP_STATUS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PLCSNMP_STATUS_ENABLED: %w", err)
		}
		cfg.Status.Enabled = enabled
	}

	// History overrides
	if v := os.Getenv("PLCSNMP_HISTORY_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PLCSNMP_HISTORY_ENABLED: %w", err)
		}
		cfg.History.Enabled = enabled
	}
	if v := os.Getenv("PLCSNMP_DATABASE_HOST"); v != "" {
		cfg.History.Database.Host = v
	}
	if v := os.Getenv("PLCSNMP_DATABASE_PORT"); v != "" {
		port, err := ParsePort(v)
		if err != nil {
			return fmt.Errorf("PLCSNMP_DATABASE_PORT: %w", err)
		}
		cfg.History.Database.Port = port
	}
	if v := os.Getenv("PLCSNMP_DATABASE_PASSWORD"); v != "" {
		cfg.History.Database.Password = v
	}

	// Logging overrides
	if v := os.Getenv("PLCSNMP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// ParsePort parses a TCP port number in 1..65535
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if err := validPort("port", port); err != nil {
		return 0, err
	}
	return port, nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d out of range 1-65535", name, port)
	}
	return nil
}

// Address returns host:port of the controller
func (c *ControllerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RequestTimeout returns the per-request timeout as a duration
func (c *ControllerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// TokenExpiry returns the bearer token lifetime as a duration
func (c *ControllerConfig) TokenExpiry() time.Duration {
	return time.Duration(c.TokenExpiryMinutes) * time.Minute
}

func (s *SupervisorConfig) IdleInterval() time.Duration {
	return time.Duration(s.IdleIntervalMS) * time.Millisecond
}

func (s *SupervisorConfig) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelayMS) * time.Millisecond
}

func (p *PollerConfig) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutMS) * time.Millisecond
}

func (p *PollerConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownMS) * time.Millisecond
}

// Address returns host:port for the status listener
func (s *StatusConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReadTimeout returns the read timeout as a duration
func (s *StatusConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration
func (s *StatusConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// ConnString returns the PostgreSQL connection string in postgres:// URL format
func (d *DatabaseConfig) ConnString() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}

	query := url.Values{}
	if d.SSLMode != "" {
		query.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = query.Encode()

	return u.String()
}

// ApplyDefaults sets default values for pool configuration
func (p *PoolConfig) ApplyDefaults() {
	if p.MaxConns == 0 {
		p.MaxConns = 4
	}
	if p.MinConns == 0 {
		p.MinConns = 1
	}
	if p.MaxConnLifetimeMinutes == 0 {
		p.MaxConnLifetimeMinutes = 60
	}
}

// MaxConnLifetime returns the max connection lifetime as a duration
func (p *PoolConfig) MaxConnLifetime() time.Duration {
	return time.Duration(p.MaxConnLifetimeMinutes) * time.Minute
}

func (h *HistoryConfig) FlushInterval() time.Duration {
	return time.Duration(h.FlushIntervalMS) * time.Millisecond
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}

// DumpExampleConfig writes an example configuration to the provided writer
func DumpExampleConfig(w io.Writer) error {
	example := Default()
	example.Status.Enabled = true
	example.History.Database.User = "plcsnmp"
	example.History.Database.Password = "changeme"

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()

	if err := enc.Encode(example); err != nil {
		return fmt.Errorf("failed to encode example config: %w", err)
	}
	return nil
}
