// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainage/bad-designer/pkg/metrics"
	"github.com/brainage/bad-designer/pkg/model"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, RateLimit: 1000, RateBurst: 100})
	require.NoError(t, err)
	return c, srv
}

// =============================================================================
// Send
// =============================================================================

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:9009", "ftp://host", "http://"} {
		_, err := New(Config{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/api/analysis/ap-1/start/", Path("/api/analysis/:uuid/start/", "ap-1"))
	assert.Equal(t, "/api/status/", Path("/api/status/", "x"))
}

func TestSend_SendsJSONWithRequestID(t *testing.T) {
	var gotBody map[string]any
	var gotID, gotType string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(RequestIDHeader)
		gotType = r.Header.Get("Content-Type")
		assert.Equal(t, "/api/analysis/ap-1/", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))

	resp, err := c.Send(context.Background(), http.MethodPost, "/api/analysis/:uuid/",
		map[string]any{"name": "x"}, WithUUID("ap-1"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.NotEmpty(t, gotID)
	assert.Equal(t, gotID, resp.RequestID)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, map[string]any{"name": "x"}, gotBody)

	var out map[string]bool
	require.NoError(t, resp.Decode(&out))
	assert.True(t, out["ok"])
}

func TestSend_ServerErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		message  string
		notFound bool
	}{
		{"error key", 400, `{"error": "KeyError: 'path'"}`, "KeyError: 'path'", false},
		{"detail key", 404, `{"detail": "Not found"}`, "Not found", true},
		{"no json", 500, `oops`, "", false},
		{"structured error", 400, `{"error": {"field": "x"}}`, `{"field": "x"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := c.Send(context.Background(), http.MethodGet, StatusPath, nil)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.notFound, IsNotFound(err))
			assert.False(t, IsTransport(err))
			if tt.message != "" {
				assert.Equal(t, tt.message, ServerMessage(err, "fallback"))
			} else {
				assert.Equal(t, "fallback", ServerMessage(err, "fallback"))
			}
		})
	}
}

func TestSend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: base})
	require.NoError(t, err)

	_, err = c.Send(context.Background(), http.MethodGet, StatusPath, nil)

	assert.True(t, IsTransport(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "fallback", ServerMessage(err, "fallback"))
}

func TestSend_CancelledContext(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Send(ctx, http.MethodGet, StatusPath, nil)

	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSend_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	c, err := New(Config{BaseURL: srv.URL, Metrics: m})
	require.NoError(t, err)

	_, err = c.Send(context.Background(), http.MethodGet, model.KindAnalysis.ResourcePath(), nil, WithUUID("a"))
	require.NoError(t, err)
	_, err = c.Send(context.Background(), http.MethodGet, model.KindAnalysis.ResourcePath(), nil, WithUUID("b"))
	require.NoError(t, err)

	counter := m.Requests.WithLabelValues(http.MethodGet, "/api/analysis/:uuid/", "2xx")
	assert.Equal(t, 2.0, testutil.ToFloat64(counter))
}

// =============================================================================
// Typed resources
// =============================================================================

func TestUpdatePipeline_RoundTripsUnknownFields(t *testing.T) {
	var received map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/preprocess/pp-1/", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &received))
		_, _ = w.Write(data)
	}))

	var p model.Pipeline
	require.NoError(t, json.Unmarshal([]byte(`{"uuid": "pp-1", "name": "n", "modules": [], "reduction_values": {"k": 1}}`), &p))

	out, err := c.UpdatePipeline(context.Background(), model.KindPreprocess, p)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"k": 1.0}, received["reduction_values"])
	assert.Equal(t, "pp-1", out.UUID)
	assert.Contains(t, out.Extra, "reduction_values")
}

func TestUpdatePipeline_RequiresUUID(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())
	_, err := c.UpdatePipeline(context.Background(), model.KindAnalysis, model.Pipeline{})
	assert.Error(t, err)
}

func TestCopyPipeline(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analysis/ap-1/copy/", r.URL.Path)
		_, _ = w.Write([]byte(`{"uuid": "ap-2"}`))
	}))

	id, err := c.CopyPipeline(context.Background(), model.KindAnalysis, "ap-1")

	require.NoError(t, err)
	assert.Equal(t, "ap-2", id)
}

func TestModuleObjects_Query(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "p-1", q.Get("process_uuid"))
		assert.Equal(t, "m-1", q.Get("module_uuid"))
		assert.Equal(t, "target", q.Get("source"))
		_, _ = w.Write([]byte(`{"result": ["/a.nii", "/b.nii"]}`))
	}))

	files, err := c.ModuleObjects(context.Background(), "p-1", "m-1", false)

	require.NoError(t, err)
	assert.Equal(t, []string{"/a.nii", "/b.nii"}, files)
}

func TestBrowse_Recursive(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/sub", r.URL.Query().Get("path"))
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		_, _ = w.Write([]byte(`{"path": "/", "files": [], "dirs": [
			{"path": "/data", "name": "data", "open": true, "children": {"path": "/data", "files": [{"name": "x.nii", "type": "image"}], "dirs": []}}
		]}`))
	}))

	listing, err := c.Browse(context.Background(), "/data/sub", true)

	require.NoError(t, err)
	child := listing.Find("/data")
	require.NotNil(t, child)
	assert.Equal(t, "image", child.Files[0].Type)
}

// =============================================================================
// Image blobs
// =============================================================================

func TestParseImageMetaHeader(t *testing.T) {
	h, err := ParseImageMetaHeader("4,256,256;1.0,0.9,0.9;-200,3500;float32")

	require.NoError(t, err)
	assert.Equal(t, []int{4, 256, 256}, h.Shape)
	assert.Equal(t, []float64{1.0, 0.9, 0.9}, h.Zooms)
	assert.Equal(t, []float64{-200, 3500}, h.Range)
	assert.Equal(t, "float32", h.Dtype)
	assert.Equal(t, 4*256*256, h.Voxels())
}

func TestParseImageMetaHeader_Invalid(t *testing.T) {
	for _, value := range []string{
		"",
		"4,4;1,1;0,1",
		"4,x;1,1;0,1;float32",
		"4,4;1,a;0,1;float32",
		"4,4;1,1;0;float32",
		"4,4;1,1;0,1;",
		"4294967296,4294967296,4294967296;1,1,1;0,1;float32",
	} {
		_, err := ParseImageMetaHeader(value)
		assert.Error(t, err, value)
	}
}

func TestDecodeFloat32_OverflowingShape(t *testing.T) {
	h := ImageHeader{Shape: []int{math.MaxInt / 2, 4}, Dtype: "float32"}

	assert.Equal(t, -1, h.Voxels())
	_, err := DecodeFloat32(float32Bytes(1, 2, 3, 4), h)
	assert.ErrorContains(t, err, "too large")
}

func float32Bytes(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func TestImageBlob(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/img.nii", r.URL.Query().Get("path"))
		w.Header().Set("x-image-meta", "2,2;1.0,1.0;-1.5,2.0;float32")
		_, _ = w.Write(float32Bytes(-1.5, 0, 1, 2))
	}))

	vol, err := c.ImageBlob(context.Background(), "/img.nii")

	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, vol.Shape)
	assert.Equal(t, []float32{-1.5, 0, 1, 2}, vol.Data)
	assert.Equal(t, []float64{-1.5, 2.0}, vol.Range)
}

func TestImageBlob_LengthMismatch(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-image-meta", "3;1.0;0,1;float32")
		_, _ = w.Write(float32Bytes(1, 2))
	}))

	_, err := c.ImageBlob(context.Background(), "/img.nii")

	assert.ErrorContains(t, err, "needs 3 samples")
}

func TestImagePNG_RejectsNonImageEndpoint(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())
	_, err := c.ImagePNG(context.Background(), ImageMetaPath, "/x.nii", nil)
	assert.Error(t, err)
}
