// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the domain store of the designer client.
//
// # Description
//
// The store is the single shared mutable resource of the client. It holds
// the cached pipelines, push payloads, file listings, image data, table
// pages and previews. Every mutation is a named method that runs a pure
// reducer over an immutable State snapshot and publishes the result; maps
// inside a published State are never written again, so a snapshot can be
// read without holding any lock.
//
// Observers registered with Observe receive a Change after the mutation
// is published and the lock is released.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package store

import (
	"maps"
	"sort"
	"sync"

	"github.com/brainage/bad-designer/pkg/model"
)

// Topic names the part of the state a Change touched.
type Topic string

const (
	TopicPipeline      Topic = "pipeline"
	TopicCreated       Topic = "created"
	TopicPush          Topic = "push"
	TopicSession       Topic = "session"
	TopicStatusTrigger Topic = "status_trigger"
	TopicDashboard     Topic = "dashboard"
	TopicStatus        Topic = "status"
	TopicFiles         Topic = "files"
	TopicImageMeta     Topic = "image_meta"
	TopicImageVolume   Topic = "image_volume"
	TopicTable         Topic = "table"
	TopicModuleObjects Topic = "module_objects"
	TopicSourcePreview Topic = "source_preview"
	TopicAverageResult Topic = "average_result"
	TopicResult        Topic = "result"
)

// Change describes one published mutation. Key identifies the resource,
// e.g. the pipeline kind or the push key.
type Change struct {
	Topic Topic
	Key   string
}

// State is an immutable snapshot of the store. Callers must not modify the
// maps or slices reachable from it.
type State struct {
	Pipelines map[model.Kind]model.Pipeline
	Created   map[model.Kind]model.Pipeline

	Push          map[string]map[string]map[string]any
	SessionID     string
	StatusTrigger uint64

	Dashboard map[string]any
	Status    map[string]any

	Files        map[string]FileTree
	ImageMeta    map[string]model.ImageMeta
	ImageVolumes map[string]model.ImageVolume

	Tables        map[TableKey]TableEntry
	ModuleObjects map[ObjectsKey][]string

	SourcePreview     *model.SourcePreview
	SourcePreviewUUID string
	AverageResults    map[string]map[string]any
	Results           map[string]map[string]any

	issued  map[string]uint64
	applied map[string]uint64
}

// Store holds the client state.
type Store struct {
	mu    sync.Mutex
	state State

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int
}

// New creates an empty store.
func New() *Store {
	return &Store{observers: map[int]func(Change){}}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Observe registers fn for every published change. The returned function
// removes the observer.
//
// # Description
//
// fn runs synchronously on the goroutine that mutated the store, after the
// store lock was released. It may read or mutate the store.
func (s *Store) Observe(fn func(Change)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// update applies reduce under the lock and notifies the observers. A nil
// result from reduce means nothing changed.
func (s *Store) update(change Change, reduce func(State) *State) bool {
	s.mu.Lock()
	next := reduce(s.state)
	if next == nil {
		s.mu.Unlock()
		return false
	}
	s.state = *next
	s.mu.Unlock()

	s.notify(change)
	return true
}

func (s *Store) notify(change Change) {
	s.obsMu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// =============================================================================
// Sequence Fencing
// =============================================================================

// NextSeq issues the next request sequence number of a resource key.
//
// # Description
//
// A caller takes a number before it sends a request and hands it back
// with the response. The store discards a response whose number is not
// above the highest number already applied for that key, so a slow old
// response never overwrites a newer one.
func (s *Store) NextSeq(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.issued = with(s.state.issued, key, s.state.issued[key]+1)
	return s.state.issued[key]
}

// accept reports whether seq is newer than the last applied one and
// records it. A zero seq is always accepted.
func accept(st *State, key string, seq uint64) bool {
	if seq == 0 {
		return true
	}
	if seq <= st.applied[key] {
		return false
	}
	st.applied = with(st.applied, key, seq)
	return true
}

// invalidate makes every number issued so far stale.
func invalidate(st *State, key string) {
	if st.issued[key] > st.applied[key] {
		st.applied = with(st.applied, key, st.issued[key])
	}
}

// PipelineKey is the fencing key of a pipeline resource.
func PipelineKey(kind model.Kind, uuid string) string {
	return "pipeline:" + string(kind) + ":" + uuid
}

// SourcePreviewKey is the fencing key of the source preview of an analysis.
func SourcePreviewKey(uuid string) string {
	return "source_preview:" + uuid
}

// =============================================================================
// Copy-on-write helpers
// =============================================================================

func with[K comparable, V any](m map[K]V, k K, v V) map[K]V {
	out := maps.Clone(m)
	if out == nil {
		out = make(map[K]V, 1)
	}
	out[k] = v
	return out
}

func without[K comparable, V any](m map[K]V, k K) map[K]V {
	if _, ok := m[k]; !ok {
		return m
	}
	out := maps.Clone(m)
	delete(out, k)
	return out
}
