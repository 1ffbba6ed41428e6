package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radio-sentinel/internal/location"
	"github.com/roman-kulish/radio-sentinel/internal/scanner"
	"github.com/roman-kulish/radio-sentinel/internal/sdr"
	"github.com/roman-kulish/radio-sentinel/internal/sdr/rtl"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings"`
	Station  StationConfig  `yaml:"station"`
	Server   ServerConfig   `yaml:"server"`
	Devices  DevicesConfig  `yaml:"devices"`
	Location LocationConfig `yaml:"location"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Control  ControlConfig  `yaml:"control"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// StationConfig identifies this station to the collection server
type StationConfig struct {
	ID         string `yaml:"id"`
	Passphrase string `yaml:"passphrase"`
}

// ServerConfig is the telemetry collection endpoint
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DevicesConfig holds the AGF tag and per-device overrides, keyed explicitly by index
type DevicesConfig struct {
	AGF       int              `yaml:"agf"`
	Overrides []DeviceOverride `yaml:"overrides"`
}

type DeviceOverride struct {
	Index int      `yaml:"index"`
	PPM   int      `yaml:"ppm"`
	Gain  *float64 `yaml:"gain"`
}

// LocationConfig selects a static location or a gpsd receiver
type LocationConfig struct {
	UseGPS bool   `yaml:"useGPS"`
	Lat    string `yaml:"lat"`
	Lng    string `yaml:"lng"`
	Gpsd   string `yaml:"gpsd"`
}

// ScannerConfig configures rtl_power and the scans started at boot
type ScannerConfig struct {
	RTLPath     string           `yaml:"rtlPath"`
	Integration rtl.TimeDuration `yaml:"integration"`
	DefaultGain *float64         `yaml:"defaultGain"`
	Jobs        []JobConfig      `yaml:"jobs"`
}

// JobConfig is a scan started at boot
type JobConfig struct {
	Device int    `yaml:"device"`
	Freqs  string `yaml:"freqs"`
}

// ControlConfig configures the HTTP control API; an empty listen address disables it
type ControlConfig struct {
	Listen string `yaml:"listen"`
}

// LoadConfig reads, defaults and validates the configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var config Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Scanner.Integration == 0 {
		c.Scanner.Integration = rtl.DefaultInterval
	}
	if c.Scanner.DefaultGain == nil {
		gain := scanner.DefaultGain
		c.Scanner.DefaultGain = &gain
	}
	if c.Location.UseGPS && c.Location.Gpsd == "" {
		c.Location.Gpsd = location.DefaultGpsdAddress
	}
}

func (c *Config) Validate() error {
	if c.Station.ID == "" || c.Station.Passphrase == "" {
		return errors.New("config: station id and passphrase are required")
	}

	if c.Server.Host == "" {
		return errors.New("config: server host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port: %d", c.Server.Port)
	}

	seen := make(map[int]struct{}, len(c.Devices.Overrides))
	for _, o := range c.Devices.Overrides {
		if o.Index < 0 {
			return fmt.Errorf("config: invalid device index: %d", o.Index)
		}
		if _, ok := seen[o.Index]; ok {
			return fmt.Errorf("config: duplicate override for device %d", o.Index)
		}
		seen[o.Index] = struct{}{}

		if o.Gain != nil && *o.Gain < 0 {
			return fmt.Errorf("config: device %d: gain must not be negative", o.Index)
		}
	}

	if !c.Location.UseGPS {
		if _, err := location.NewStatic(c.Location.Lat, c.Location.Lng); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	if err := c.Scanner.Integration.Validate(); err != nil {
		return fmt.Errorf("config: invalid integration interval: %w", err)
	}
	if *c.Scanner.DefaultGain < 0 {
		return errors.New("config: default gain must not be negative")
	}

	for _, job := range c.Scanner.Jobs {
		if job.Device < 0 {
			return fmt.Errorf("config: invalid job device: %d", job.Device)
		}
		if _, err := sdr.ParseFrequencyRange(job.Freqs); err != nil {
			return fmt.Errorf("config: job on device %d: %w", job.Device, err)
		}
	}

	return nil
}

// PPM returns the tuning corrections keyed by device index
func (c *DevicesConfig) PPM() map[int]int {
	ppm := make(map[int]int, len(c.Overrides))
	for _, o := range c.Overrides {
		ppm[o.Index] = o.PPM
	}
	return ppm
}

// Gains returns the tuner gain overrides keyed by device index
func (c *DevicesConfig) Gains() map[int]float64 {
	gains := make(map[int]float64, len(c.Overrides))
	for _, o := range c.Overrides {
		if o.Gain != nil {
			gains[o.Index] = *o.Gain
		}
	}
	return gains
}
