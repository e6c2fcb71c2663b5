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
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ImageMetaHeader describes the layout of an image blob.
const ImageMetaHeader = "X-Image-Meta"

// ImageHeader is the parsed x-image-meta header.
type ImageHeader struct {
	Shape []int
	Zooms []float64
	Range []float64
	Dtype string
}

// Voxels returns the number of samples the shape describes, or -1 when
// the product does not fit in an int.
func (h ImageHeader) Voxels() int {
	n, ok := voxelCount(h.Shape)
	if !ok {
		return -1
	}
	return n
}

func voxelCount(shape []int) (int, bool) {
	if len(shape) == 0 {
		return 0, true
	}
	n := 1
	for _, s := range shape {
		if s < 0 {
			return 0, false
		}
		if s != 0 && n > math.MaxInt/s {
			return 0, false
		}
		n *= s
	}
	return n, true
}

// ParseImageMetaHeader parses "shape;zooms;range;dtype" where the first
// three parts are comma separated lists.
//
// # Example
//
//	h, _ := ParseImageMetaHeader("4,256,256;1.0,0.9,0.9;-200,3500;float32")
//	// h.Shape = [4 256 256], h.Zooms = [1 0.9 0.9], h.Range = [-200 3500]
func ParseImageMetaHeader(value string) (ImageHeader, error) {
	parts := strings.Split(strings.TrimSpace(value), ";")
	if len(parts) != 4 {
		return ImageHeader{}, fmt.Errorf("image meta header %q: want 4 parts, got %d", value, len(parts))
	}

	var h ImageHeader
	for _, s := range splitList(parts[0]) {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return ImageHeader{}, fmt.Errorf("image meta header: invalid shape %q", parts[0])
		}
		h.Shape = append(h.Shape, n)
	}
	if _, ok := voxelCount(h.Shape); !ok {
		return ImageHeader{}, fmt.Errorf("image meta header: shape %q overflows", parts[0])
	}

	var err error
	if h.Zooms, err = parseFloats(parts[1]); err != nil {
		return ImageHeader{}, fmt.Errorf("image meta header: invalid zooms: %w", err)
	}
	if h.Range, err = parseFloats(parts[2]); err != nil {
		return ImageHeader{}, fmt.Errorf("image meta header: invalid range: %w", err)
	}
	if len(h.Range) != 2 {
		return ImageHeader{}, fmt.Errorf("image meta header: range needs 2 values, got %d", len(h.Range))
	}

	h.Dtype = strings.TrimSpace(parts[3])
	if h.Dtype == "" {
		return ImageHeader{}, fmt.Errorf("image meta header: missing dtype")
	}
	return h, nil
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	items := strings.Split(s, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, item := range splitList(s) {
		f, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// DecodeFloat32 decodes a little-endian float32 buffer and checks it
// against the voxel count of the header.
func DecodeFloat32(body []byte, h ImageHeader) ([]float32, error) {
	if h.Dtype != "float32" {
		return nil, fmt.Errorf("image blob: unsupported dtype %q", h.Dtype)
	}
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("image blob: %d bytes is not a float32 buffer", len(body))
	}
	n := len(body) / 4
	want, ok := voxelCount(h.Shape)
	if !ok {
		return nil, fmt.Errorf("image blob: shape %v is too large", h.Shape)
	}
	if want != n {
		return nil, fmt.Errorf("image blob: shape %v needs %d samples, got %d", h.Shape, want, n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return out, nil
}
