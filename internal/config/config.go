package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/bandlink/internal/device"
	"github.com/banshee-data/bandlink/internal/framing"
	"github.com/banshee-data/bandlink/internal/serialmux"
	"github.com/banshee-data/bandlink/internal/store"
	"github.com/banshee-data/bandlink/internal/telemetry"
)

// DefaultConfigPath is the example configuration shipped with the repository.
// Every key in it holds its default value.
const DefaultConfigPath = "config/bandlink.defaults.json"

const (
	defaultFraming      = framing.StrategyAuto
	defaultDemoInterval = 200 * time.Millisecond
)

// Config is the bandlink configuration file. Every field is optional; the Get*
// methods supply defaults for fields the file leaves out, so partial files are
// safe.
type Config struct {
	DeviceName *string `json:"device_name,omitempty"`
	// PortPath additionally matches the band by its serial port path.
	PortPath *string       `json:"port_path,omitempty"`
	Serial   *SerialConfig `json:"serial,omitempty"`

	Framing      *string `json:"framing,omitempty"`
	StrictFields *bool   `json:"strict_fields,omitempty"`

	DemoInterval  *string `json:"demo_interval,omitempty"` // duration string like "200ms"
	DemoRecording *string `json:"demo_recording,omitempty"`

	HistorySize *int               `json:"history_size,omitempty"`
	Permissions *PermissionsConfig `json:"permissions,omitempty"`
}

// SerialConfig holds the line settings for ports found by discovery.
type SerialConfig struct {
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`
}

// PermissionsConfig sets the initial grant state of each runtime permission.
type PermissionsConfig struct {
	Bluetooth *bool `json:"bluetooth,omitempty"`
	Location  *bool `json:"location,omitempty"`
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.DeviceName != nil && *c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}

	if _, err := c.GetPortOptions().Normalize(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}

	if c.Framing != nil {
		if _, err := framing.ParseStrategy(*c.Framing); err != nil {
			return err
		}
	}

	if c.DemoInterval != nil && *c.DemoInterval != "" {
		d, err := time.ParseDuration(*c.DemoInterval)
		if err != nil {
			return fmt.Errorf("invalid demo_interval '%s': %w", *c.DemoInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("demo_interval must be positive, got %s", d)
		}
	}

	if c.HistorySize != nil && *c.HistorySize < 0 {
		return fmt.Errorf("history_size must be non-negative, got %d", *c.HistorySize)
	}
	return nil
}

// GetDeviceName returns the advertised name the band is matched by.
func (c *Config) GetDeviceName() string {
	if c.DeviceName == nil {
		return device.DefaultDeviceName
	}
	return *c.DeviceName
}

// GetPortPath returns the configured port path, or "" to match by name only.
func (c *Config) GetPortPath() string {
	if c.PortPath == nil {
		return ""
	}
	return *c.PortPath
}

// GetPortOptions returns the serial block as port options. Unset values stay
// zero and are defaulted by PortOptions.Normalize.
func (c *Config) GetPortOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial == nil {
		return opts
	}
	if c.Serial.BaudRate != nil {
		opts.BaudRate = *c.Serial.BaudRate
	}
	if c.Serial.DataBits != nil {
		opts.DataBits = *c.Serial.DataBits
	}
	if c.Serial.StopBits != nil {
		opts.StopBits = *c.Serial.StopBits
	}
	if c.Serial.Parity != nil {
		opts.Parity = *c.Serial.Parity
	}
	return opts
}

// GetFraming returns the framing strategy or the default.
func (c *Config) GetFraming() framing.Strategy {
	if c.Framing == nil {
		return defaultFraming
	}
	s, err := framing.ParseStrategy(*c.Framing)
	if err != nil {
		return defaultFraming // default on parse error
	}
	return s
}

// GetStrictFields returns the strict_fields value or the default.
func (c *Config) GetStrictFields() bool {
	if c.StrictFields == nil {
		return false // default
	}
	return *c.StrictFields
}

// GetDemoInterval parses and returns the DemoInterval as a time.Duration.
func (c *Config) GetDemoInterval() time.Duration {
	if c.DemoInterval == nil || *c.DemoInterval == "" {
		return defaultDemoInterval
	}
	d, err := time.ParseDuration(*c.DemoInterval)
	if err != nil || d <= 0 {
		return defaultDemoInterval // default on parse error
	}
	return d
}

// GetDemoRecording returns the recording path; empty selects the embedded
// recording.
func (c *Config) GetDemoRecording() string {
	if c.DemoRecording == nil {
		return ""
	}
	return *c.DemoRecording
}

// GetHistorySize returns the history_size value or the default.
func (c *Config) GetHistorySize() int {
	if c.HistorySize == nil {
		return store.DefaultHistorySize
	}
	return *c.HistorySize
}

// GetPermissions returns the initial grant state of every required
// permission. Permissions default to granted.
func (c *Config) GetPermissions() map[device.Permission]bool {
	granted := map[device.Permission]bool{
		device.PermissionBluetooth: true,
		device.PermissionLocation:  true,
	}
	if c.Permissions == nil {
		return granted
	}
	if c.Permissions.Bluetooth != nil {
		granted[device.PermissionBluetooth] = *c.Permissions.Bluetooth
	}
	if c.Permissions.Location != nil {
		granted[device.PermissionLocation] = *c.Permissions.Location
	}
	return granted
}

// DeviceConfig returns the connection state machine settings.
func (c *Config) DeviceConfig() device.Config {
	return device.Config{
		DeviceName:    c.GetDeviceName(),
		DeviceAddress: c.GetPortPath(),
		Framing:       c.GetFraming(),
		Decoder:       telemetry.Decoder{Strict: c.GetStrictFields()},
	}
}
