package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Validate checks the profile and fills derived defaults
func Validate(cfg *File) error {
	if err := cfg.Test.Validate(); err != nil {
		return fmt.Errorf("test: %w", err)
	}

	if cfg.Output.StatsIntervalS < 0 {
		return fmt.Errorf("output.stats_interval_s must be >= 0")
	}
	if path := cfg.Output.ReportPath; path != "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
		default:
			return fmt.Errorf("output.report_path must end in .json, .yaml or .yml")
		}
	}

	switch cfg.MQTT.Format {
	case "":
		cfg.MQTT.Format = "json"
	case "json", "msgpack":
	default:
		return fmt.Errorf("mqtt.format must be json or msgpack")
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	// Derived MQTT defaults only matter when publishing is enabled
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "buffer-hold-" + uuid.New().String()[:8]
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("buffer-hold/%s", cfg.MQTT.ClientID)
		}
	}

	return nil
}
