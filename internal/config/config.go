// Package config loads the bot configuration file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"traze.dev/internal/transport/mqtt"
)

type Config struct {
	Broker           BrokerConfig    `yaml:"broker"`
	Player           PlayerConfig    `yaml:"player"`
	DiscoveryTimeout time.Duration   `yaml:"discovery_timeout"`
	Log              LogConfig       `yaml:"log"`
	Recording        RecordingConfig `yaml:"recording"`
	Journal          JournalConfig   `yaml:"journal"`
}

type BrokerConfig struct {
	URL                string        `yaml:"url"`
	ClientID           string        `yaml:"client_id"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	KeepAlive          time.Duration `yaml:"keep_alive"`
}

type PlayerConfig struct {
	Name string `yaml:"name"`
	// Game is the game to join; empty picks the busiest one.
	Game             string        `yaml:"game"`
	Policy           string        `yaml:"policy"`
	Rounds           int           `yaml:"rounds"`
	SuppressTimeouts bool          `yaml:"suppress_timeouts"`
	JoinTimeout      time.Duration `yaml:"join_timeout"`
}

type LogConfig struct {
	// File enables a rotating log file instead of stderr.
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type RecordingConfig struct {
	// Dir enables recording of inbound messages when set.
	Dir string `yaml:"dir"`
}

type JournalConfig struct {
	// Path enables the sqlite life journal when set.
	Path string `yaml:"path"`
}

const DefaultPolicy = "lookahead"

var Policies = []string{"random", "lookahead"}

// Environment overrides, applied after the file.
const (
	EnvBrokerURL      = "TRAZE_BROKER_URL"
	EnvBrokerPassword = "TRAZE_BROKER_PASSWORD"
	EnvPlayerName     = "TRAZE_PLAYER_NAME"
)

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", displayPath(path), err)
	}
	return cfg, nil
}

func displayPath(path string) string {
	if path == "" {
		return "config"
	}
	return path
}

func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			URL:            mqtt.DefaultBrokerURL,
			ConnectTimeout: 10 * time.Second,
			KeepAlive:      30 * time.Second,
		},
		Player: PlayerConfig{
			Name:        "gobot",
			Policy:      DefaultPolicy,
			Rounds:      1,
			JoinTimeout: 15 * time.Second,
		},
		DiscoveryTimeout: 15 * time.Second,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv
// outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBrokerURL); ok && strings.TrimSpace(v) != "" {
		c.Broker.URL = v
	}
	if v, ok := lookup(EnvBrokerPassword); ok {
		c.Broker.Password = v
	}
	if v, ok := lookup(EnvPlayerName); ok && strings.TrimSpace(v) != "" {
		c.Player.Name = v
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	d := Defaults()
	c.Broker.URL = strings.TrimSpace(c.Broker.URL)
	if c.Broker.URL == "" {
		c.Broker.URL = d.Broker.URL
	}
	if c.Broker.ConnectTimeout <= 0 {
		c.Broker.ConnectTimeout = d.Broker.ConnectTimeout
	}
	if c.Broker.KeepAlive <= 0 {
		c.Broker.KeepAlive = d.Broker.KeepAlive
	}
	c.Player.Name = strings.TrimSpace(c.Player.Name)
	c.Player.Game = strings.TrimSpace(c.Player.Game)
	c.Player.Policy = strings.ToLower(strings.TrimSpace(c.Player.Policy))
	if c.Player.Policy == "" {
		c.Player.Policy = d.Player.Policy
	}
	if c.Player.JoinTimeout <= 0 {
		c.Player.JoinTimeout = d.Player.JoinTimeout
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = d.DiscoveryTimeout
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.Broker.URL)
	if err != nil {
		return fmt.Errorf("broker.url: %w", err)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("broker.url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("broker.url: missing host")
	}
	if c.Player.Name == "" {
		return fmt.Errorf("player.name must not be empty")
	}
	known := false
	for _, p := range Policies {
		if p == c.Player.Policy {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("player.policy %q must be one of %v", c.Player.Policy, Policies)
	}
	// zero rounds plays until interrupted
	if c.Player.Rounds < 0 {
		return fmt.Errorf("player.rounds must be >= 0")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	if c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log.max_backups and log.max_age_days must be >= 0")
	}
	return nil
}
