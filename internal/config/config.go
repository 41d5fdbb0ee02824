package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/cave-device/internal/domain/cave"
)

// Config holds the settings of the cave device and of the commander.
type Config struct {
	// DeviceID identifies the device on the hub. A connection string overrides it.
	DeviceID string `yaml:"device_id"`
	// SensorID is attached to every telemetry message.
	SensorID string `yaml:"sensor_id"`
	// ConnectionString is the hub device connection string. The
	// DEVICE_CONNECTION_STRING environment variable overrides it.
	ConnectionString string `yaml:"connection_string,omitempty"`
	// BrokerURL is an explicit MQTT broker URL (mqtt://, mqtts://, ws://, wss://).
	// It takes precedence over the host derived from the connection string.
	BrokerURL string `yaml:"broker_url,omitempty"`
	// CommandAddress is the gRPC direct method endpoint. The device listens
	// on it and the commander dials it. Empty disables the endpoint.
	CommandAddress string `yaml:"command_addr,omitempty"`
	// Interval is the telemetry period.
	Interval time.Duration `yaml:"interval"`
	// Timeout bounds network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// Seed seeds the simulation. Zero picks a random seed.
	Seed uint64 `yaml:"seed,omitempty"`
	// FailureProbability is the per-tick chance that a running fan fails.
	FailureProbability *float64 `yaml:"failure_probability,omitempty"`
	// StateFile persists the last readings and fan state across restarts.
	// Empty disables persistence.
	StateFile string `yaml:"state_file,omitempty"`
	// NtfyURL is an optional ntfy.sh topic for fan failure alerts.
	NtfyURL string `yaml:"ntfy_url,omitempty"`
	// LogLevel is the minimum log level.
	LogLevel string `yaml:"log_level,omitempty"`
	// Environment describes the simulated cave.
	Environment Environment `yaml:"environment"`
}

// Environment is the physical baseline and the setpoints of the cave.
type Environment struct {
	// AmbientTemperature is the cave temperature without control, in °F.
	AmbientTemperature float64 `yaml:"ambient_temperature"`
	// AmbientHumidity is the cave humidity without control, in percent.
	AmbientHumidity float64 `yaml:"ambient_humidity"`
	// Temperature is the desired temperature band.
	Temperature cave.Setpoint `yaml:"temperature"`
	// Humidity is the desired humidity band.
	Humidity cave.Setpoint `yaml:"humidity"`
}

const (
	// DefaultConfigFilename is the default filename for device settings.
	DefaultConfigFilename = "cave-device-settings.yaml"

	// DefaultDeviceID is used when neither the file nor the connection string names a device.
	DefaultDeviceID = "cheese-cave-01"

	// DefaultInterval is the default telemetry period.
	DefaultInterval = 5000 * time.Millisecond

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// ConnectionStringEnv overrides Config.ConnectionString.
	ConnectionStringEnv = "DEVICE_CONNECTION_STRING"
	// IntervalEnv overrides Config.Interval, e.g. "2s".
	IntervalEnv = "CAVE_INTERVAL"

	defaultAmbientTemperature = 70
	defaultAmbientHumidity    = 99
	defaultTemperatureOffset  = 10
	defaultTemperatureLimit   = 5
	defaultHumidityOffset     = 20
	defaultHumidityLimit      = 10
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidFailureProbability is returned for probabilities outside [0, 1].
	errInvalidFailureProbability = errors.New("failure probability must be within [0, 1]")
	// errInvalidLimit is returned for negative setpoint limits.
	errInvalidLimit = errors.New("setpoint limit must not be negative")
	// errUnsupportedBrokerScheme is returned for broker URLs paho cannot dial.
	errUnsupportedBrokerScheme = errors.New("unsupported broker scheme")
	// ErrConfigExists is returned by WriteDefault when the file is already there.
	ErrConfigExists = errors.New("settings file already exists")
)

// Default returns the settings of the reference cheese cave.
func Default() *Config {
	cfg := new(Config)
	applyDefaults(cfg)

	return cfg
}

// Load reads configuration from the provided path, applies environment
// overrides and validates it. A missing file at the default path yields
// the defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Keep defaults.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file may hold a device credential.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// WriteDefault saves the reference cave settings to path, or to
// DefaultConfigFilename when path is empty, and returns the path written.
// An existing file is kept unless overwrite is set.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	if !overwrite {
		if _, err := os.Stat(filepath.Clean(path)); err == nil {
			return path, fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return path, fmt.Errorf("stat settings: %w", err)
		}
	}

	if err := Save(path, Default()); err != nil {
		return path, err
	}

	return path, nil
}

// Validate fills defaults and checks the settings.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if cfg.CommandAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.CommandAddress); err != nil {
			return fmt.Errorf("invalid command address: %w", err)
		}
	}

	if cfg.ConnectionString != "" {
		if _, err := ParseConnectionString(cfg.ConnectionString); err != nil {
			return err
		}
	}

	if cfg.BrokerURL != "" {
		u, err := url.Parse(cfg.BrokerURL)
		if err != nil {
			return fmt.Errorf("invalid broker URL: %w", err)
		}

		switch strings.ToLower(u.Scheme) {
		case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
		default:
			return fmt.Errorf("%w: %q", errUnsupportedBrokerScheme, u.Scheme)
		}
	}

	if p := *cfg.FailureProbability; p < 0 || p > 1 {
		return fmt.Errorf("%w: %v", errInvalidFailureProbability, p)
	}

	if cfg.Environment.Temperature.Limit < 0 || cfg.Environment.Humidity.Limit < 0 {
		return errInvalidLimit
	}

	if cfg.NtfyURL != "" {
		if _, err := url.ParseRequestURI(cfg.NtfyURL); err != nil {
			return fmt.Errorf("invalid ntfy URL: %w", err)
		}
	}

	return nil
}

// Broker resolves the MQTT broker URL and credentials. It reports false
// when no broker is configured, in which case telemetry goes to the log.
func (c *Config) Broker() (Broker, bool, error) {
	var broker Broker

	if c.ConnectionString != "" {
		cs, err := ParseConnectionString(c.ConnectionString)
		if err != nil {
			return broker, false, err
		}

		broker = Broker{
			URL:      "mqtts://" + net.JoinHostPort(cs.HostName, hubMQTTPort),
			DeviceID: cs.DeviceID,
			Username: cs.HostName + "/" + cs.DeviceID,
			Password: cs.Credential(),
		}
	}

	if c.BrokerURL != "" {
		broker.URL = c.BrokerURL
	}

	if broker.DeviceID == "" {
		broker.DeviceID = c.DeviceID
	}

	return broker, broker.URL != "", nil
}

// applyDefaults fills zero values with the reference cave settings.
func applyDefaults(cfg *Config) {
	if cfg.DeviceID == "" {
		cfg.DeviceID = DefaultDeviceID
	}

	if cfg.SensorID == "" {
		cfg.SensorID = "S1"
	}

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.FailureProbability == nil {
		p := 0.01
		cfg.FailureProbability = &p
	}

	env := &cfg.Environment

	if env.AmbientTemperature == 0 {
		env.AmbientTemperature = defaultAmbientTemperature
	}

	if env.AmbientHumidity == 0 {
		env.AmbientHumidity = defaultAmbientHumidity
	}

	if env.Temperature == (cave.Setpoint{}) {
		env.Temperature = cave.Setpoint{
			Desired: env.AmbientTemperature - defaultTemperatureOffset,
			Limit:   defaultTemperatureLimit,
		}
	}

	if env.Humidity == (cave.Setpoint{}) {
		env.Humidity = cave.Setpoint{
			Desired: env.AmbientHumidity - defaultHumidityOffset,
			Limit:   defaultHumidityLimit,
		}
	}
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(ConnectionStringEnv)); v != "" {
		cfg.ConnectionString = v
	}

	if v := strings.TrimSpace(os.Getenv(IntervalEnv)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", IntervalEnv, err)
		}

		cfg.Interval = d
	}

	return nil
}
