package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"dlsim/downloads"
	"dlsim/si"

	"gopkg.in/yaml.v3"
)

const megabyte = 1024 * 1024

// Config defines configuration for the dlsim CLI.
type Config struct {
	MaxConcurrent    int    `yaml:"max_concurrent"`
	BandwidthLimit   int64  `yaml:"bandwidth_limit"`
	DefaultSize      int64  `yaml:"default_size"`
	DefaultSpeedKBps int    `yaml:"default_speed_kbps"`
	Addr             string `yaml:"addr"`
	LogLevel         string `yaml:"log_level"`
	Downloads        []Seed `yaml:"downloads"`
}

// Seed is a download submitted at startup. Blank fields fall back to the
// configured defaults.
type Seed struct {
	Name      string `yaml:"name"`
	Size      string `yaml:"size"`
	SpeedKBps int    `yaml:"speed_kbps"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		MaxConcurrent:    downloads.DefaultMaxConcurrent,
		DefaultSize:      10 * megabyte,
		DefaultSpeedKBps: 400,
		Addr:             ":11235",
		LogLevel:         "info",
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes.
type yamlConfig struct {
	MaxConcurrent    int    `yaml:"max_concurrent"`
	BandwidthLimit   string `yaml:"bandwidth_limit"`
	DefaultSize      string `yaml:"default_size"`
	DefaultSpeedKBps int    `yaml:"default_speed_kbps"`
	Addr             string `yaml:"addr"`
	LogLevel         string `yaml:"log_level"`
	Downloads        []Seed `yaml:"downloads"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.MaxConcurrent != 0 {
		cfg.MaxConcurrent = yc.MaxConcurrent
	}
	if yc.BandwidthLimit != "" {
		limit, err := ParseRate(yc.BandwidthLimit)
		if err != nil {
			return Config{}, fmt.Errorf("parse bandwidth_limit: %w", err)
		}
		cfg.BandwidthLimit = limit
	}
	if yc.DefaultSize != "" {
		size, err := ParseSize(yc.DefaultSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse default_size: %w", err)
		}
		cfg.DefaultSize = size
	}
	if yc.DefaultSpeedKBps != 0 {
		cfg.DefaultSpeedKBps = yc.DefaultSpeedKBps
	}
	if yc.Addr != "" {
		cfg.Addr = yc.Addr
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	for i, s := range yc.Downloads {
		if s.Size == "" {
			continue
		}
		if _, err := ParseSize(s.Size); err != nil {
			return Config{}, fmt.Errorf("parse downloads[%d].size: %w", i, err)
		}
	}
	cfg.Downloads = yc.Downloads

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the DLSIM_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("DLSIM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DLSIM_MAX_CONCURRENT: %w", err)
		}
		c.MaxConcurrent = n
	}
	if v := os.Getenv("DLSIM_BANDWIDTH_LIMIT"); v != "" {
		limit, err := ParseRate(v)
		if err != nil {
			return fmt.Errorf("parse DLSIM_BANDWIDTH_LIMIT: %w", err)
		}
		c.BandwidthLimit = limit
	}
	if v := os.Getenv("DLSIM_DEFAULT_SIZE"); v != "" {
		size, err := ParseSize(v)
		if err != nil {
			return fmt.Errorf("parse DLSIM_DEFAULT_SIZE: %w", err)
		}
		c.DefaultSize = size
	}
	if v := os.Getenv("DLSIM_DEFAULT_SPEED_KBPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DLSIM_DEFAULT_SPEED_KBPS: %w", err)
		}
		c.DefaultSpeedKBps = n
	}
	if v := os.Getenv("DLSIM_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("DLSIM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return errors.New("config: max_concurrent must be positive")
	}
	if c.BandwidthLimit < 0 {
		return errors.New("config: bandwidth_limit must not be negative")
	}
	if c.DefaultSize < 0 {
		return errors.New("config: default_size must not be negative")
	}
	if c.DefaultSpeedKBps <= 0 {
		return errors.New("config: default_speed_kbps must be positive")
	}
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.MaxConcurrent != 0 {
		c.MaxConcurrent = override.MaxConcurrent
	}
	if override.BandwidthLimit != 0 {
		c.BandwidthLimit = override.BandwidthLimit
	}
	if override.DefaultSize != 0 {
		c.DefaultSize = override.DefaultSize
	}
	if override.DefaultSpeedKBps != 0 {
		c.DefaultSpeedKBps = override.DefaultSpeedKBps
	}
	if override.Addr != "" {
		c.Addr = override.Addr
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if len(override.Downloads) > 0 {
		c.Downloads = override.Downloads
	}
	return c
}

// Defaults returns the fallbacks used to complete partial user input.
func (c Config) Defaults() Defaults {
	return Defaults{Size: c.DefaultSize, SpeedKBps: c.DefaultSpeedKBps}
}

// SeedDescriptors resolves the configured startup downloads. next is called
// once per seed, named or not, and numbers the generated names.
func (c Config) SeedDescriptors(next func() int) []downloads.Descriptor {
	d := c.Defaults()
	out := make([]downloads.Descriptor, 0, len(c.Downloads))
	for _, s := range c.Downloads {
		speed := ""
		if s.SpeedKBps != 0 {
			speed = strconv.Itoa(s.SpeedKBps)
		}
		out = append(out, d.Descriptor(s.Name, s.Size, speed, next()))
	}
	return out
}

// Defaults completes raw form input into a Descriptor.
type Defaults struct {
	Size      int64
	SpeedKBps int
}

// Descriptor never fails: a blank name becomes download_<seq>, and a size or
// speed that does not parse falls back to the default.
func (d Defaults) Descriptor(name, size, speed string, seq int) downloads.Descriptor {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("%s_%d", downloads.DefaultName, seq)
	}

	total := d.Size
	if v, err := ParseSize(size); err == nil {
		total = v
	}

	kbps := d.SpeedKBps
	if v, err := strconv.Atoi(strings.TrimSpace(speed)); err == nil {
		kbps = v
	}

	return downloads.NewDescriptor(name, total, kbps)
}

// ParseSize reads a download size. A bare number is megabytes ("1.5" is
// 1.5 MiB), anything with a unit goes through si.Parse.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if si.IsDecimal(s) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q", s)
		}
		return toBytes(s, v*megabyte)
	}
	b, err := si.Parse(s)
	if err != nil {
		return 0, err
	}
	return toBytes(s, float64(b))
}

// ParseRate reads a bandwidth limit in bytes per second. A bare number is
// bytes.
func ParseRate(s string) (int64, error) {
	b, err := si.Parse(s)
	if err != nil {
		return 0, err
	}
	return toBytes(s, float64(b))
}

// maxBytes is 2^63, the first float64 that no longer fits an int64.
const maxBytes = float64(1 << 63)

func toBytes(s string, v float64) (int64, error) {
	if v < 0 || v >= maxBytes {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return int64(v), nil
}
