// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Platform kinds
const (
	PlatformMemory        = "memory"
	PlatformHomeAssistant = "homeassistant"
)

// Target drivers
const (
	DriverEntity = "entity"
	DriverHue    = "hue"
	DriverMQTT   = "mqtt"
)

// Config represents the application configuration
type Config struct {
	Platform          PlatformConfig `yaml:"platform"`
	Hue               HueConfig      `yaml:"hue"`
	MQTT              MQTTConfig     `yaml:"mqtt"`
	Database          DatabaseConfig `yaml:"database"`
	Log               LogConfig      `yaml:"log"`
	Ledger            LedgerConfig   `yaml:"ledger"`
	API               APIConfig      `yaml:"api"`
	HomeKit           HomeKitConfig  `yaml:"homekit"`
	Influx            InfluxConfig   `yaml:"influx"`
	EventBus          EventBusConfig `yaml:"eventbus"`
	Script            string         `yaml:"script"`              // Optional Lua script, resolved relative to the config file
	DefaultTempKelvin int            `yaml:"default_temp_kelvin"` // Fallback color temperature for virtual lights
	ShutdownTimeout   Duration       `yaml:"shutdown_timeout"`    // General shutdown timeout for graceful stops
	Rooms             []RoomConfig   `yaml:"rooms"`
	Inputs            InputsConfig   `yaml:"inputs"`
}

// PlatformConfig selects the home-automation platform.
type PlatformConfig struct {
	Kind          string              `yaml:"kind"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Entities      []EntityConfig      `yaml:"entities"` // Seed entities for the memory platform
}

// HomeAssistantConfig contains Home Assistant connection settings
type HomeAssistantConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
	Retry   Retry    `yaml:",inline"`
}

// EntityConfig seeds one memory platform entity.
type EntityConfig struct {
	ID         string         `yaml:"id"`
	State      string         `yaml:"state"`
	Attributes map[string]any `yaml:"attributes"`
}

// Retry contains stream reconnect settings
type Retry struct {
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between reconnects (default: 1s)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between reconnects (default: 2m)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
	MaxReconnects   int      `yaml:"max_reconnects"`    // Max reconnect attempts, 0 = infinite (default: 0)
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string   `yaml:"bridge"`
	Token        string   `yaml:"token"`
	Timeout      Duration `yaml:"timeout"`        // HTTP timeout for Hue API requests
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Light command rate limit
	EventStream  *bool    `yaml:"event_stream"`   // Listen for buttons and dials (default: true)
	Retry        Retry    `yaml:",inline"`
}

// Enabled reports whether a bridge is configured.
func (c *HueConfig) Enabled() bool {
	return c.Bridge != ""
}

// EventStreamEnabled reports whether the event stream should run.
func (c *HueConfig) EventStreamEnabled() bool {
	return c.Enabled() && (c.EventStream == nil || *c.EventStream)
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	QoS            byte     `yaml:"qos"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// Enabled reports whether a broker is configured.
func (c *MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the configured level, lowercased.
func (c *LogConfig) GetLevel() string {
	return strings.ToLower(c.Level)
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Retention returns the retention period.
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// APIConfig contains HTTP API server settings
type APIConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HomeKitConfig contains HomeKit bridge settings
type HomeKitConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Name        string `yaml:"name"`
	Pin         string `yaml:"pin"`
	Addr        string `yaml:"addr"`
	StoragePath string `yaml:"storage_path"`
}

// InfluxConfig contains InfluxDB telemetry settings
type InfluxConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Org     string   `yaml:"org"`
	Bucket  string   `yaml:"bucket"`
	Timeout Duration `yaml:"timeout"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// RoomConfig groups virtual lights under a logging name.
type RoomConfig struct {
	Name   string        `yaml:"name"`
	Lights []LightConfig `yaml:"lights"`
}

// LightConfig defines one virtual light and the physical lights it drives.
type LightConfig struct {
	ID                string         `yaml:"id"`
	DefaultTempKelvin int            `yaml:"default_temp_kelvin"`
	Targets           []TargetConfig `yaml:"targets"`
}

// TargetConfig defines one physical light.
type TargetConfig struct {
	ID           string              `yaml:"id"`
	Driver       string              `yaml:"driver"`    // entity (default), hue or mqtt
	Entity       string              `yaml:"entity"`    // entity driver: platform entity, defaults to ID
	HueLight     int                 `yaml:"hue_light"` // hue driver: v1 light number
	Topic        string              `yaml:"topic"`     // mqtt driver: base topic, "/set" is appended
	Capabilities *CapabilitiesConfig `yaml:"capabilities"`
}

// CapabilitiesConfig lists what a physical light supports.
// Omitted for Hue targets, capabilities are read from the bridge.
type CapabilitiesConfig struct {
	Brightness bool `yaml:"brightness"`
	ColorTemp  bool `yaml:"color_temp"`
	RGB        bool `yaml:"rgb"`
}

// InputsConfig binds Hue buttons and dials to actions.
type InputsConfig struct {
	Buttons  []ButtonConfig `yaml:"buttons"`
	Rotaries []RotaryConfig `yaml:"rotaries"`
}

// ButtonConfig binds button events to an action.
type ButtonConfig struct {
	Resource string         `yaml:"resource"` // "*", "id1|id2" or an exact resource ID
	Event    string         `yaml:"event"`    // e.g. "short_release", "initial_press|repeat"
	Action   string         `yaml:"action"`
	Args     map[string]any `yaml:"args"`
}

// RotaryConfig binds dial rotation to an action receiving a "delta" argument.
type RotaryConfig struct {
	Resource string         `yaml:"resource"`
	Action   string         `yaml:"action"`
	Step     float64        `yaml:"step"`     // delta per rotary step (default: 1)
	Debounce Duration       `yaml:"debounce"` // quiet period before firing (default: 50ms)
	Args     map[string]any `yaml:"args"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file. A .env file next to the
// configuration is loaded first; variables already set take precedence.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.Script != "" && !filepath.IsAbs(cfg.Script) {
		cfg.Script = filepath.Join(filepath.Dir(path), cfg.Script)
	}
	return cfg, nil
}

// Parse expands environment variables in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./vlightd.sqlite"
	}
	if cfg.DefaultTempKelvin == 0 {
		cfg.DefaultTempKelvin = 3000
	}

	if cfg.Platform.Kind == "" {
		cfg.Platform.Kind = PlatformMemory
	}
	if cfg.Platform.HomeAssistant.Timeout == 0 {
		cfg.Platform.HomeAssistant.Timeout = Duration(10 * time.Second)
	}
	cfg.Platform.HomeAssistant.Retry.applyDefaults()

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(30 * time.Second)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0 // 10 requests per second
	}
	cfg.Hue.Retry.applyDefaults()

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "vlightd"
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = 9090
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	if cfg.HomeKit.Name == "" {
		cfg.HomeKit.Name = "vlightd"
	}
	if cfg.HomeKit.StoragePath == "" {
		cfg.HomeKit.StoragePath = "./homekit"
	}

	if cfg.Influx.Timeout == 0 {
		cfg.Influx.Timeout = Duration(5 * time.Second)
	}

	if cfg.EventBus.Workers <= 0 {
		cfg.EventBus.Workers = 4
	}
	if cfg.EventBus.QueueSize <= 0 {
		cfg.EventBus.QueueSize = 100
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	for i := range cfg.Rooms {
		for j := range cfg.Rooms[i].Lights {
			l := &cfg.Rooms[i].Lights[j]
			if l.DefaultTempKelvin == 0 {
				l.DefaultTempKelvin = cfg.DefaultTempKelvin
			}
			for k := range l.Targets {
				t := &l.Targets[k]
				if t.Driver == "" {
					t.Driver = DriverEntity
				}
				if t.Driver == DriverEntity && t.Entity == "" {
					t.Entity = t.ID
				}
			}
		}
	}

	for i := range cfg.Inputs.Rotaries {
		if cfg.Inputs.Rotaries[i].Step == 0 {
			cfg.Inputs.Rotaries[i].Step = 1
		}
		if cfg.Inputs.Rotaries[i].Debounce == 0 {
			cfg.Inputs.Rotaries[i].Debounce = Duration(50 * time.Millisecond)
		}
	}
}

func (r *Retry) applyDefaults() {
	if r.MinRetryBackoff == 0 {
		r.MinRetryBackoff = Duration(1 * time.Second)
	}
	if r.MaxRetryBackoff == 0 {
		r.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if r.RetryMultiplier == 0 {
		r.RetryMultiplier = 2.0
	}
	// MaxReconnects defaults to 0 (infinite)
}

// Validate reports structural configuration errors.
func (cfg *Config) Validate() error {
	var errs []error

	switch cfg.Platform.Kind {
	case PlatformMemory:
	case PlatformHomeAssistant:
		if cfg.Platform.HomeAssistant.URL == "" {
			errs = append(errs, errors.New("platform.homeassistant.url is required"))
		}
		if cfg.Platform.HomeAssistant.Token == "" {
			errs = append(errs, errors.New("platform.homeassistant.token is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("platform.kind %q is not one of %s, %s", cfg.Platform.Kind, PlatformMemory, PlatformHomeAssistant))
	}

	lights := make(map[string]bool)
	for _, room := range cfg.Rooms {
		if room.Name == "" {
			errs = append(errs, errors.New("rooms: name is required"))
		}
		for _, l := range room.Lights {
			if l.ID == "" {
				errs = append(errs, fmt.Errorf("room %q: light id is required", room.Name))
				continue
			}
			if lights[l.ID] {
				errs = append(errs, fmt.Errorf("light %q is defined more than once", l.ID))
			}
			lights[l.ID] = true

			for _, t := range l.Targets {
				errs = append(errs, cfg.validateTarget(l.ID, t)...)
			}
		}
	}

	for i, b := range cfg.Inputs.Buttons {
		if b.Action == "" {
			errs = append(errs, fmt.Errorf("inputs.buttons[%d]: action is required", i))
		}
	}
	for i, r := range cfg.Inputs.Rotaries {
		if r.Action == "" {
			errs = append(errs, fmt.Errorf("inputs.rotaries[%d]: action is required", i))
		}
	}

	if cfg.HomeKit.Enabled && len(cfg.HomeKit.Pin) != 8 {
		errs = append(errs, errors.New("homekit.pin must have 8 digits"))
	}
	if cfg.Influx.Enabled && (cfg.Influx.URL == "" || cfg.Influx.Bucket == "") {
		errs = append(errs, errors.New("influx.url and influx.bucket are required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (cfg *Config) validateTarget(lightID string, t TargetConfig) []error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, fmt.Errorf("light %q: target id is required", lightID))
	}
	switch t.Driver {
	case DriverEntity:
	case DriverHue:
		if !cfg.Hue.Enabled() {
			errs = append(errs, fmt.Errorf("light %q: target %q uses hue but hue.bridge is not set", lightID, t.ID))
		}
		if t.HueLight <= 0 {
			errs = append(errs, fmt.Errorf("light %q: target %q needs hue_light", lightID, t.ID))
		}
	case DriverMQTT:
		if !cfg.MQTT.Enabled() {
			errs = append(errs, fmt.Errorf("light %q: target %q uses mqtt but mqtt.broker is not set", lightID, t.ID))
		}
		if t.Topic == "" {
			errs = append(errs, fmt.Errorf("light %q: target %q needs topic", lightID, t.ID))
		}
	default:
		errs = append(errs, fmt.Errorf("light %q: target %q has unknown driver %q", lightID, t.ID, t.Driver))
	}
	return errs
}

// GetShutdownTimeout returns the shutdown timeout.
func (cfg *Config) GetShutdownTimeout() time.Duration {
	return cfg.ShutdownTimeout.Duration()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
