// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(42).toSlogLevel())
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf, Service: "badctl"})

	logger.Debug("hidden")
	logger.Info("pipeline stored", "uuid", "p1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "pipeline stored")
	assert.Contains(t, out, "uuid=p1")
	assert.Contains(t, out, "service=badctl")
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, JSON: true})

	logger.Warn("push reconnect", "attempt", 2)

	assert.Contains(t, buf.String(), `"msg":"push reconnect"`)
	assert.Contains(t, buf.String(), `"attempt":2`)
}

func TestNew_QuietWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Quiet: true})

	logger.Error("dropped")

	assert.Empty(t, buf.String())
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	require.NotNil(t, logger)
	logger.Info("nothing")
	assert.NoError(t, logger.Close())
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Output: &buf})
	child := parent.With("component", "push")

	child.Info("connected")
	parent.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "component=push")
	assert.NotContains(t, lines[1], "component=push")
}

func TestLogger_FileContent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "file-test",
		Quiet:   true,
	})

	logger.Info("test message", "key", "value")
	require.NoError(t, logger.Close())

	files, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0].Name(), "file-test_"))

	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message")
	assert.Contains(t, string(content), `"key":"value"`)
}

func TestLogger_ExporterReceivesChildAttrs(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Quiet: true, Exporter: exporter, Service: "svc"})

	logger.Debug("filtered")
	logger.With("uuid", "p1").Info("loaded", "kind", "analysis")

	require.Eventually(t, func() bool {
		return len(exporter.Entries()) == 1
	}, time.Second, 5*time.Millisecond)

	entry := exporter.Entries()[0]
	assert.Equal(t, "loaded", entry.Message)
	assert.Equal(t, "svc", entry.Service)
	assert.Equal(t, "p1", entry.Attrs["uuid"])
	assert.Equal(t, "analysis", entry.Attrs["kind"])
	assert.Equal(t, []string{"loaded"}, exporter.Messages(LevelInfo))
}

// errorExporter returns errors from Flush and Close.
type errorExporter struct {
	BufferedExporter
}

func (e *errorExporter) Flush(ctx context.Context) error { return errors.New("flush failed") }
func (e *errorExporter) Close() error                    { return errors.New("close failed") }

func TestLogger_Close_ReturnsFirstError(t *testing.T) {
	logger := New(Config{Quiet: true, Exporter: &errorExporter{}})

	err := logger.Close()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush exporter")
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"a", 1, 2, "ignored", "dangling"})
	assert.Equal(t, map[string]any{"a": 1}, got)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".bad/logs"), expandPath("~/.bad/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
