// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"time"

	"github.com/brainage/bad-designer/pkg/model"
)

// FileTree is the cached directory tree of one listing namespace.
type FileTree struct {
	// Path is the directory the tree was requested for.
	Path      string
	Listing   model.DirListing
	FetchedAt time.Time
}

// SetListing stores the listing of a namespace. A listing requested for a
// different path than the cached one discards the cached tree, including
// every child merged into it.
func (s *Store) SetListing(namespace, path string, listing model.DirListing, at time.Time) {
	s.update(Change{Topic: TopicFiles, Key: namespace}, func(st State) *State {
		listing.FetchedAt = at
		st.Files = with(st.Files, namespace, FileTree{Path: path, Listing: listing, FetchedAt: at})
		return &st
	})
}

// MergeListing attaches the listing of a sub-directory to the cached tree
// of a namespace and marks that directory open.
//
// # Outputs
//
//   - bool: False if the namespace has no tree or the tree does not
//     contain child.Path.
func (s *Store) MergeListing(namespace string, child model.DirListing) bool {
	return s.update(Change{Topic: TopicFiles, Key: namespace}, func(st State) *State {
		tree, ok := st.Files[namespace]
		if !ok {
			return nil
		}
		merged, ok := mergeChild(tree.Listing, child)
		if !ok {
			return nil
		}
		tree.Listing = merged
		st.Files = with(st.Files, namespace, tree)
		return &st
	})
}

// mergeChild returns a copy of l with child attached below the directory
// entry of the same path. Only the branch leading to that entry is copied.
func mergeChild(l model.DirListing, child model.DirListing) (model.DirListing, bool) {
	for i, d := range l.Dirs {
		if d.Path == child.Path {
			dirs := append([]model.DirEntry(nil), l.Dirs...)
			c := child
			dirs[i].Open = true
			dirs[i].Children = &c
			l.Dirs = dirs
			return l, true
		}
		if d.Children == nil {
			continue
		}
		if sub, ok := mergeChild(*d.Children, child); ok {
			dirs := append([]model.DirEntry(nil), l.Dirs...)
			dirs[i].Children = &sub
			l.Dirs = dirs
			return l, true
		}
	}
	return l, false
}

// Listing returns the cached tree of a namespace.
func (s *Store) Listing(namespace string) (FileTree, bool) {
	t, ok := s.Snapshot().Files[namespace]
	return t, ok
}

// ClearListing drops the cached tree of a namespace.
func (s *Store) ClearListing(namespace string) {
	s.update(Change{Topic: TopicFiles, Key: namespace}, func(st State) *State {
		if _, ok := st.Files[namespace]; !ok {
			return nil
		}
		st.Files = without(st.Files, namespace)
		return &st
	})
}

// =============================================================================
// Images
// =============================================================================

// SetImageMeta stores the metadata, or inline error, of an image path.
func (s *Store) SetImageMeta(meta model.ImageMeta) {
	s.update(Change{Topic: TopicImageMeta, Key: meta.Path}, func(st State) *State {
		st.ImageMeta = with(st.ImageMeta, meta.Path, meta)
		return &st
	})
}

// ImageMeta returns the stored metadata of an image path.
func (s *Store) ImageMeta(path string) (model.ImageMeta, bool) {
	m, ok := s.Snapshot().ImageMeta[path]
	return m, ok
}

// SetImageVolume stores the volume, or inline error, of an image path.
func (s *Store) SetImageVolume(vol model.ImageVolume) {
	s.update(Change{Topic: TopicImageVolume, Key: vol.Path}, func(st State) *State {
		st.ImageVolumes = with(st.ImageVolumes, vol.Path, vol)
		return &st
	})
}

// ImageVolume returns the stored volume of an image path.
func (s *Store) ImageVolume(path string) (model.ImageVolume, bool) {
	v, ok := s.Snapshot().ImageVolumes[path]
	return v, ok
}

// ClearImageVolume drops the stored volume of an image path.
func (s *Store) ClearImageVolume(path string) {
	s.update(Change{Topic: TopicImageVolume, Key: path}, func(st State) *State {
		if _, ok := st.ImageVolumes[path]; !ok {
			return nil
		}
		st.ImageVolumes = without(st.ImageVolumes, path)
		return &st
	})
}
