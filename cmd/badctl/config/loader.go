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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvAPIURL = "BAD_API_URL"
	EnvWSURL  = "BAD_WS_URL"
)

var (
	// Global is the configuration loaded by Load.
	Global Config
	once   sync.Once
	// loadErr is the result of the single Load
	loadErr error

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// DefaultPath is ~/.bad/badctl.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".bad", "badctl.yaml"), nil
}

// Load reads the configuration into Global once per process. An empty
// path means DefaultPath. A missing file is created with DefaultConfig.
func Load(path string) error {
	once.Do(func() {
		Global, loadErr = LoadFile(path, os.Getenv)
	})
	return loadErr
}

// LoadFile reads, overrides and validates one configuration file.
//
// # Inputs
//
//   - path: File to read; empty means DefaultPath. Created with defaults
//     if it does not exist.
//   - getenv: Environment lookup, os.Getenv outside of tests.
//
// # Outputs
//
//   - Config: The effective configuration.
//   - error: Read, parse or validation failure.
func LoadFile(path string, getenv func(string) string) (Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	ApplyEnv(&cfg, getenv)
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides the server URLs from the environment.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvAPIURL)); v != "" {
		cfg.Server.APIURL = v
	}
	if v := strings.TrimSpace(getenv(EnvWSURL)); v != "" {
		cfg.Server.WSURL = v
	}
}

// Validate checks the field constraints of cfg.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
