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
	"fmt"
	"net/http"
	"net/url"

	"github.com/brainage/bad-designer/pkg/model"
)

// REST path templates served by the pipeline server.
const (
	DashboardPath     = "/api/dashboard/"
	StatusPath        = "/api/status/"
	ProcessPath       = "/api/process/:uuid/"
	ProcessTablePath  = "/api/process/table/"
	EventTablePath    = "/api/process/event/table/"
	ObjectTablePath   = "/api/process/object/table/"
	ModuleObjectsPath = "/api/process/object/module/"
	SourcePreviewPath = "/api/analysis/:uuid/source-preview/"
	AverageResultPath = "/api/analysis/:uuid/result/"
	ResultPath        = "/api/analysis/results/:uuid/"
	ResultTablePath   = "/api/analysis/results/table/"
	BrowsePath        = "/api/files/browse/"
	FileTablePath     = "/api/files/table/"
	ImageMetaPath     = "/api/files/image/meta/"
	ImageSlicePath    = "/api/files/image/slice/"
	ImageSlicesPath   = "/api/files/image/slices/"
	ImagePlotPath     = "/api/files/image/plot/"
	ImageBlobPath     = "/api/files/image/blob/"
)

// TablePath is the pipeline table listing of a kind.
func TablePath(kind model.Kind) string {
	return kind.BasePath() + "table/"
}

// =============================================================================
// Dashboard
// =============================================================================

// Dashboard fetches the dashboard summary.
func (c *Client) Dashboard(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.sendJSON(ctx, http.MethodGet, DashboardPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status fetches the global server status.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.sendJSON(ctx, http.MethodGet, StatusPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// Pipelines
// =============================================================================

// GetPipeline fetches the full resource of a pipeline.
func (c *Client) GetPipeline(ctx context.Context, kind model.Kind, id string) (model.Pipeline, error) {
	var p model.Pipeline
	err := c.sendJSON(ctx, http.MethodGet, kind.ResourcePath(), nil, &p, WithUUID(id))
	return p, err
}

// CreatePipeline creates an empty pipeline.
func (c *Client) CreatePipeline(ctx context.Context, kind model.Kind, name, description string) (model.Pipeline, error) {
	body := map[string]string{"name": name, "description": description}
	var p model.Pipeline
	err := c.sendJSON(ctx, http.MethodPost, kind.BasePath(), body, &p)
	return p, err
}

// UpdatePipeline stores the full resource and returns the server's version.
func (c *Client) UpdatePipeline(ctx context.Context, kind model.Kind, p model.Pipeline) (model.Pipeline, error) {
	if p.UUID == "" {
		return model.Pipeline{}, fmt.Errorf("update pipeline: missing uuid")
	}
	var out model.Pipeline
	err := c.sendJSON(ctx, http.MethodPost, kind.ResourcePath(), p, &out, WithUUID(p.UUID))
	return out, err
}

// DeletePipeline deletes a pipeline.
func (c *Client) DeletePipeline(ctx context.Context, kind model.Kind, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, kind.ResourcePath(), nil, nil, WithUUID(id))
}

// StartPipeline queues a run of a pipeline.
func (c *Client) StartPipeline(ctx context.Context, kind model.Kind, id string) error {
	return c.sendJSON(ctx, http.MethodPost, kind.ResourcePath()+"start/", nil, nil, WithUUID(id))
}

// StopPipeline requests the running process of a pipeline to stop.
func (c *Client) StopPipeline(ctx context.Context, kind model.Kind, id string) error {
	return c.sendJSON(ctx, http.MethodPost, kind.ResourcePath()+"stop/", nil, nil, WithUUID(id))
}

// CopyPipeline duplicates a pipeline and returns the new identity.
func (c *Client) CopyPipeline(ctx context.Context, kind model.Kind, id string) (string, error) {
	var out struct {
		UUID string `json:"uuid"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, kind.ResourcePath()+"copy/", nil, &out, WithUUID(id)); err != nil {
		return "", err
	}
	if out.UUID == "" {
		return "", fmt.Errorf("copy pipeline %s: response carries no uuid", id)
	}
	return out.UUID, nil
}

// =============================================================================
// Analysis
// =============================================================================

// SourcePreview resolves the files an analysis source module would read.
func (c *Client) SourcePreview(ctx context.Context, id string, values model.Values) (model.SourcePreview, error) {
	body := map[string]any{"parameter_values": values}
	var out model.SourcePreview
	err := c.sendJSON(ctx, http.MethodPost, SourcePreviewPath, body, &out, WithUUID(id))
	return out, err
}

// AverageResult fetches the averaged result of every run of an analysis.
func (c *Client) AverageResult(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	if err := c.sendJSON(ctx, http.MethodGet, AverageResultPath, nil, &out, WithUUID(id)); err != nil {
		return nil, err
	}
	return out, nil
}

// Result fetches one analysis result.
func (c *Client) Result(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	if err := c.sendJSON(ctx, http.MethodGet, ResultPath, nil, &out, WithUUID(id)); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// Processes and Tables
// =============================================================================

// Process fetches one process run.
func (c *Client) Process(ctx context.Context, id string) (model.ProcessRun, error) {
	var run model.ProcessRun
	err := c.sendJSON(ctx, http.MethodGet, ProcessPath, nil, &run, WithUUID(id))
	return run, err
}

// Table fetches one page of a table listing.
func (c *Client) Table(ctx context.Context, path string, query url.Values) (model.TableResponse, error) {
	var out model.TableResponse
	err := c.sendJSON(ctx, http.MethodGet, path, nil, &out, WithQuery(query))
	return out, err
}

// ModuleObjects lists the files a module read (source) or wrote (target)
// during a run.
func (c *Client) ModuleObjects(ctx context.Context, processUUID, moduleUUID string, source bool) ([]string, error) {
	side := "target"
	if source {
		side = "source"
	}
	q := url.Values{}
	q.Set("process_uuid", processUUID)
	q.Set("module_uuid", moduleUUID)
	q.Set("source", side)

	var out model.ModuleObjects
	if err := c.sendJSON(ctx, http.MethodGet, ModuleObjectsPath, nil, &out, WithQuery(q)); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// =============================================================================
// Files
// =============================================================================

// Browse lists a directory below the data root. A recursive listing starts
// at the root and expands every directory on the way to path.
func (c *Client) Browse(ctx context.Context, path string, recursive bool) (model.DirListing, error) {
	q := url.Values{}
	q.Set("path", path)
	if recursive {
		q.Set("recursive", "1")
	}
	var out model.DirListing
	err := c.sendJSON(ctx, http.MethodGet, BrowsePath, nil, &out, WithQuery(q))
	return out, err
}

// FileTable reads an attribute table file. Read failures come back inline
// in FileTable.Error.
func (c *Client) FileTable(ctx context.Context, path string) (model.FileTable, error) {
	q := url.Values{}
	q.Set("path", path)
	var out model.FileTable
	err := c.sendJSON(ctx, http.MethodGet, FileTablePath, nil, &out, WithQuery(q))
	return out, err
}

// ImageMeta fetches the metadata of an image file.
func (c *Client) ImageMeta(ctx context.Context, path string) (model.ImageMeta, error) {
	q := url.Values{}
	q.Set("path", path)
	var out model.ImageMeta
	err := c.sendJSON(ctx, http.MethodGet, ImageMetaPath, nil, &out, WithQuery(q))
	return out, err
}

// ImagePNG fetches a rendered image (slice, slices or plot endpoint) as
// PNG bytes. Extra query parameters select axis, offsets or plot type.
func (c *Client) ImagePNG(ctx context.Context, endpoint, path string, extra url.Values) ([]byte, error) {
	switch endpoint {
	case ImageSlicePath, ImageSlicesPath, ImagePlotPath:
	default:
		return nil, fmt.Errorf("image endpoint %q does not render png", endpoint)
	}
	q := url.Values{}
	q.Set("path", path)
	resp, err := c.Send(ctx, http.MethodGet, endpoint, nil, WithQuery(q), WithQuery(extra), WithRaw())
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ImageBlob fetches the voxel data of an image file.
//
// # Description
//
// The body is a flat little-endian float32 buffer described by the
// x-image-meta header (see ParseImageMetaHeader).
//
// # Outputs
//
//   - model.ImageVolume: Decoded volume.
//   - error: Request error, or a header or length mismatch.
func (c *Client) ImageBlob(ctx context.Context, path string) (model.ImageVolume, error) {
	q := url.Values{}
	q.Set("path", path)
	resp, err := c.Send(ctx, http.MethodGet, ImageBlobPath, nil, WithQuery(q), WithRaw())
	if err != nil {
		return model.ImageVolume{}, err
	}

	header, err := ParseImageMetaHeader(resp.Header.Get(ImageMetaHeader))
	if err != nil {
		return model.ImageVolume{}, err
	}
	data, err := DecodeFloat32(resp.Body, header)
	if err != nil {
		return model.ImageVolume{}, err
	}
	return model.ImageVolume{
		Path:  path,
		Shape: header.Shape,
		Zooms: header.Zooms,
		Range: header.Range,
		Dtype: header.Dtype,
		Data:  data,
	}, nil
}
