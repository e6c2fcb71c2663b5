// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package files

import (
	"context"
	"net/url"

	"golang.org/x/sync/singleflight"

	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/logging"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/schedule"
	"github.com/brainage/bad-designer/pkg/store"
)

// Inline image errors.
const (
	ErrTextNotFound = "Not found"
	ErrTextRead     = "Error reading image"
)

// Images reads image metadata and voxel data into the store. Failures are
// stored inline on the result, never returned.
type Images struct {
	api    *api.Client
	store  *store.Store
	logger *logging.Logger
	clock  schedule.Clock
	group  singleflight.Group
}

// NewImages creates an image reader. A nil logger discards, a nil clock
// is the wall clock.
func NewImages(client *api.Client, st *store.Store, logger *logging.Logger, clock schedule.Clock) *Images {
	if logger == nil {
		logger = logging.Discard()
	}
	if clock == nil {
		clock = schedule.RealClock()
	}
	return &Images{api: client, store: st, logger: logger.With("component", "images"), clock: clock}
}

func inlineError(err error) string {
	if api.IsNotFound(err) {
		return ErrTextNotFound
	}
	return ErrTextRead
}

// Meta returns the metadata of an image, fetching it unless a successful
// result is cached.
func (i *Images) Meta(ctx context.Context, path string) model.ImageMeta {
	path = NormalizePath(path)
	if m, ok := i.store.ImageMeta(path); ok && m.Error == "" {
		return m
	}
	v, _, _ := i.group.Do("meta\x00"+path, func() (any, error) {
		meta, err := i.api.ImageMeta(ctx, path)
		if err != nil {
			i.logger.Warn("image meta failed", "path", path, "error", err)
			meta = model.ImageMeta{Error: inlineError(err)}
		}
		meta.Path = path
		meta.FetchedAt = i.clock.Now()
		i.store.SetImageMeta(meta)
		return meta, nil
	})
	return v.(model.ImageMeta)
}

// Volume returns the voxel data of an image, fetching it unless a
// successful result is cached.
func (i *Images) Volume(ctx context.Context, path string) model.ImageVolume {
	path = NormalizePath(path)
	if vol, ok := i.store.ImageVolume(path); ok && vol.Error == "" {
		return vol
	}
	v, _, _ := i.group.Do("volume\x00"+path, func() (any, error) {
		vol, err := i.api.ImageBlob(ctx, path)
		if err != nil {
			i.logger.Warn("image volume failed", "path", path, "error", err)
			vol = model.ImageVolume{Error: inlineError(err)}
		}
		vol.Path = path
		vol.FetchedAt = i.clock.Now()
		i.store.SetImageVolume(vol)
		return vol, nil
	})
	return v.(model.ImageVolume)
}

// ClearVolume drops the cached voxel data of an image.
func (i *Images) ClearVolume(path string) {
	i.store.ClearImageVolume(NormalizePath(path))
}

// Render fetches a PNG rendering of an image from one of the slice, slices
// or plot endpoints.
func (i *Images) Render(ctx context.Context, endpoint, path string, extra url.Values) ([]byte, error) {
	return i.api.ImagePNG(ctx, endpoint, NormalizePath(path), extra)
}
