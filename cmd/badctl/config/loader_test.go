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
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainage/bad-designer/pkg/logging"
)

func noEnv(string) string { return "" }

func TestLoadFile_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "badctl.yaml")

	cfg, err := LoadFile(path, noEnv)

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	again, err := LoadFile(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadFile_ParsesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  api_url: http://bad.example:9009
  rate_limit: 5
sync:
  analysis_poll_delay: 3s
logging:
  level: debug
output:
  mode: machine
metrics:
  listen: 127.0.0.1:9100
`), 0o644))

	cfg, err := LoadFile(path, noEnv)

	require.NoError(t, err)
	assert.Equal(t, "http://bad.example:9009", cfg.Server.APIURL)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, 3*time.Second, cfg.Sync.AnalysisPollDelay)
	assert.Equal(t, 2*time.Second, cfg.Sync.PreprocessPollDelay, "unset keys keep their default")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "machine", cfg.Output.Mode)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badctl.yaml")
	env := map[string]string{EnvAPIURL: "http://10.0.0.2:9009", EnvWSURL: "ws://10.0.0.2:9009/ws/"}

	cfg, err := LoadFile(path, func(k string) string { return env[k] })

	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:9009", cfg.Server.APIURL)
	assert.Equal(t, "ws://10.0.0.2:9009/ws/", cfg.Server.WSURL)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown mode", body: "output:\n  mode: fancy\n"},
		{name: "bad url", body: "server:\n  api_url: not a url\n"},
		{name: "negative delay", body: "sync:\n  preview_delay: -1s\n"},
		{name: "bad level", body: "logging:\n  level: loud\n"},
		{name: "not yaml", body: "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "badctl.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))

			_, err := LoadFile(path, noEnv)
			assert.Error(t, err)
		})
	}
}

func TestValidate_MessageNamesField(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Mode = "fancy"

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Output.Mode: failed oneof")
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badctl.yaml")
	_, err := LoadFile(path, noEnv)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu   sync.Mutex
		seen []Config
	)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, noEnv, logging.Discard(), func(c Config) {
			mu.Lock()
			seen = append(seen, c)
			mu.Unlock()
		})
	}()

	// the watcher registers asynchronously; keep writing until it reports
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("sync:\n  analysis_poll_delay: 7s\n"), 0o644)
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1].Sync.AnalysisPollDelay == 7*time.Second
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
