// Package config loads buffer-hold test profiles from YAML or TOML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	bufferhold "github.com/e7canasta/orion-care-sensor/modules/buffer-hold"
)

// File represents a complete test profile
type File struct {
	Test    bufferhold.Config `yaml:"test" toml:"test"`
	Output  OutputConfig      `yaml:"output" toml:"output"`
	Metrics MetricsConfig     `yaml:"metrics" toml:"metrics"`
	MQTT    MQTTConfig        `yaml:"mqtt" toml:"mqtt"`
}

// OutputConfig contains console and report settings
type OutputConfig struct {
	Verbose        bool   `yaml:"verbose" toml:"verbose"`
	StatsIntervalS int    `yaml:"stats_interval_s" toml:"stats_interval_s"` // periodic progress line (0 = off)
	ReportPath     string `yaml:"report_path" toml:"report_path"`           // .json, .yaml or .yml
}

// MetricsConfig contains Prometheus exporter settings
type MetricsConfig struct {
	Addr string `yaml:"addr" toml:"addr"` // listen address, empty disables the exporter
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string `yaml:"broker" toml:"broker"` // empty disables publishing
	ClientID string `yaml:"client_id" toml:"client_id"`
	Topic    string `yaml:"topic" toml:"topic"`
	Format   string `yaml:"format" toml:"format"` // json, msgpack
	QoS      byte   `yaml:"qos" toml:"qos"`
}

// Default returns a profile with every default applied
func Default() *File {
	return &File{
		Test: bufferhold.DefaultConfig(),
		MQTT: MQTTConfig{
			Format: "json",
		},
	}
}

// Load reads a profile and applies it over the defaults
//
// The format is selected by extension: .yaml/.yml or .toml. Keys absent
// from the file keep their default value; unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document keeps every default
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("failed to parse config: unknown keys %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .yaml, .yml or .toml)", filepath.Ext(path))
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
