// Package config handles TOML configuration parsing, defaulting, and
// validation for the dhcp4c client session described by a config file.
package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for one client session.
type Config struct {
	Interface   string        `toml:"interface"`
	LinkType    string        `toml:"link_type"`
	ClientID    string        `toml:"client_identifier"`
	Broadcast   bool          `toml:"request_broadcast"`
	MTU         int           `toml:"mtu"`
	LogLevel    string        `toml:"log_level"`
	Metrics     MetricsConfig `toml:"metrics"`
	Backoff     BackoffConfig `toml:"backoff"`
	RequestedIP string        `toml:"requested_ip"`
}

// MetricsConfig controls the optional Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// BackoffConfig controls retransmission timing (RFC 2131 §4.1).
type BackoffConfig struct {
	Initial string `toml:"initial"`
	Max     string `toml:"max"`
}

// Load reads and parses a TOML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Interface == "" {
		cfg.Interface = DefaultInterface
	}
	if cfg.LinkType == "" {
		cfg.LinkType = DefaultLinkType
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.MTU == 0 {
		cfg.MTU = DefaultMTU
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
	if cfg.Backoff.Initial == "" {
		cfg.Backoff.Initial = DefaultBackoffInitial.String()
	}
	if cfg.Backoff.Max == "" {
		cfg.Backoff.Max = DefaultBackoffMax.String()
	}
}

func validate(cfg *Config) error {
	if cfg.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	switch cfg.LinkType {
	case LinkTypeEthernet, LinkTypeInfiniBand:
	default:
		return fmt.Errorf("link_type must be one of %q, %q, got %q", LinkTypeEthernet, LinkTypeInfiniBand, cfg.LinkType)
	}
	if cfg.MTU < 0 || cfg.MTU > 65535 {
		return fmt.Errorf("mtu %d is out of range", cfg.MTU)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen %q: %w", cfg.Metrics.Listen, err)
		}
	}
	if _, err := time.ParseDuration(cfg.Backoff.Initial); err != nil {
		return fmt.Errorf("backoff.initial: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Backoff.Max); err != nil {
		return fmt.Errorf("backoff.max: %w", err)
	}
	if cfg.ClientID != "" {
		if _, err := decodeClientID(cfg.ClientID); err != nil {
			return fmt.Errorf("client_identifier %q: %w", cfg.ClientID, err)
		}
	}
	if cfg.RequestedIP != "" && net.ParseIP(cfg.RequestedIP) == nil {
		return fmt.Errorf("requested_ip %q is not a valid IP address", cfg.RequestedIP)
	}
	return nil
}

// ClientIdentifier decodes the configured client-identifier into raw bytes.
// A value prefixed with "hex:" is decoded as hex; anything else is used as
// a literal string, matching the two forms deployed clients commonly need
// (a type-1 "hardware address" identifier, or an arbitrary vendor string).
func (cfg *Config) ClientIdentifier() ([]byte, error) {
	if cfg.ClientID == "" {
		return nil, nil
	}
	return decodeClientID(cfg.ClientID)
}

func decodeClientID(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "hex:"); ok {
		return hex.DecodeString(rest)
	}
	return []byte(s), nil
}

// BackoffBounds parses the configured initial/max retransmission delays.
func (cfg *Config) BackoffBounds() (initial, max time.Duration, err error) {
	initial, err = time.ParseDuration(cfg.Backoff.Initial)
	if err != nil {
		return 0, 0, err
	}
	max, err = time.ParseDuration(cfg.Backoff.Max)
	if err != nil {
		return 0, 0, err
	}
	return initial, max, nil
}
