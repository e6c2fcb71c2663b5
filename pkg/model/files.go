// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import "time"

// FileTypeImage marks volumetric image files.
const FileTypeImage = "image"

// FileEntry is a file inside a directory listing.
type FileEntry struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// DirEntry is a sub-directory inside a directory listing. Children is set
// for directories expanded by a recursive listing.
type DirEntry struct {
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	Open     bool        `json:"open,omitempty"`
	Children *DirListing `json:"children,omitempty"`
}

// DirListing is the browse response for one directory.
type DirListing struct {
	Path      string      `json:"path"`
	Dirs      []DirEntry  `json:"dirs"`
	Files     []FileEntry `json:"files"`
	FetchedAt time.Time   `json:"-"`
}

// Find returns the listing of path inside the tree, following expanded
// children.
func (l *DirListing) Find(path string) *DirListing {
	if l == nil {
		return nil
	}
	if l.Path == path {
		return l
	}
	for i := range l.Dirs {
		if found := l.Dirs[i].Children.Find(path); found != nil {
			return found
		}
	}
	return nil
}

// ImageMeta is the metadata of an image file, or the inline error that
// replaced it.
type ImageMeta struct {
	Path      string    `json:"path"`
	Shape     []int     `json:"shape,omitempty"`
	Dtype     string    `json:"dtype,omitempty"`
	Range     []float64 `json:"range,omitempty"`
	VoxelSize []float64 `json:"voxel_size,omitempty"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"-"`
}

// ImageVolume is a decoded voxel blob of an image file, or the inline error
// that replaced it.
type ImageVolume struct {
	Path      string
	Shape     []int
	Zooms     []float64
	Range     []float64
	Dtype     string
	Data      []float32
	Error     string
	FetchedAt time.Time
}
