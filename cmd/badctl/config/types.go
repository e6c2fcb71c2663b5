// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"
)

// Config is the content of badctl.yaml.
type Config struct {
	// Server: where the pipeline server listens
	Server ServerConfig `yaml:"server"`

	// Sync: polling and debounce timing of pipeline views
	Sync SyncConfig `yaml:"sync"`

	// Logging: level, format and optional log directory
	Logging LoggingConfig `yaml:"logging"`

	// Output: terminal rendering
	Output OutputConfig `yaml:"output"`

	// Metrics: optional prometheus endpoint of long running commands
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	// e.g. http://localhost:9009
	APIURL string `yaml:"api_url" validate:"required,url"`
	// empty derives the push endpoint from api_url
	WSURL string `yaml:"ws_url" validate:"omitempty,url"`
	// requests per second and burst, 0 keeps the client defaults
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`
	UserAgent string  `yaml:"user_agent,omitempty"`
}

type SyncConfig struct {
	// Zero keeps the built-in delay of the pipeline kind.
	AnalysisPollDelay   time.Duration `yaml:"analysis_poll_delay" validate:"gte=0"`
	PreprocessPollDelay time.Duration `yaml:"preprocess_poll_delay" validate:"gte=0"`
	PreviewDelay        time.Duration `yaml:"preview_delay" validate:"gte=0"`
	ReconnectInterval   time.Duration `yaml:"reconnect_interval" validate:"gte=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"`
}

type OutputConfig struct {
	Mode string `yaml:"mode" validate:"omitempty,oneof=auto rich plain machine"`
}

type MetricsConfig struct {
	// Listen is the address of /metrics during `pipeline watch`, empty
	// disables it.
	Listen string `yaml:"listen,omitempty" validate:"omitempty,hostname_port"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			APIURL: "http://localhost:9009",
		},
		Sync: SyncConfig{
			AnalysisPollDelay:   5 * time.Second,
			PreprocessPollDelay: 2 * time.Second,
			PreviewDelay:        time.Second,
			ReconnectInterval:   time.Second,
		},
		Logging: LoggingConfig{Level: "warn"},
		Output:  OutputConfig{Mode: "auto"},
	}
}
