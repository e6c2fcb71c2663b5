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
	"github.com/brainage/bad-designer/pkg/model"
)

// Pipeline returns the cached pipeline of a kind.
func (s *Store) Pipeline(kind model.Kind) (model.Pipeline, bool) {
	st := s.Snapshot()
	p, ok := st.Pipelines[kind]
	if !ok {
		return model.Pipeline{}, false
	}
	return p.Clone(), true
}

// NeedsLoad reports whether the cached pipeline of a kind is not the one
// with the given identity.
func (s *Store) NeedsLoad(kind model.Kind, uuid string) bool {
	st := s.Snapshot()
	p, ok := st.Pipelines[kind]
	return !ok || p.UUID != uuid
}

// ApplyPipeline caches a fetched or stored pipeline as the current one of
// its kind, replacing whatever was cached before.
//
// # Inputs
//
//   - kind: Pipeline kind.
//   - p: The server's resource.
//   - seq: Number from NextSeq(PipelineKey(kind, p.UUID)), or 0 to apply
//     unconditionally.
//
// # Outputs
//
//   - bool: False if the response was stale and discarded.
func (s *Store) ApplyPipeline(kind model.Kind, p model.Pipeline, seq uint64) bool {
	p = p.Clone()
	key := PipelineKey(kind, p.UUID)
	return s.update(Change{Topic: TopicPipeline, Key: string(kind)}, func(st State) *State {
		if !accept(&st, key, seq) {
			return nil
		}
		st.Pipelines = with(st.Pipelines, kind, p)
		return &st
	})
}

// SetOptimisticModules replaces the module list of the cached pipeline
// ahead of the server's answer. Responses to requests issued before this
// call become stale, since they predate the speculative list.
//
// # Outputs
//
//   - []model.Module: The list it replaced, for rollback.
//   - bool: False if the cached pipeline is not the one with uuid.
func (s *Store) SetOptimisticModules(kind model.Kind, uuid string, modules []model.Module) ([]model.Module, bool) {
	modules = model.CloneModules(modules)
	var prev []model.Module
	ok := s.update(Change{Topic: TopicPipeline, Key: string(kind)}, func(st State) *State {
		p, found := st.Pipelines[kind]
		if !found || p.UUID != uuid {
			return nil
		}
		invalidate(&st, PipelineKey(kind, uuid))
		prev = p.Modules
		p = p.Clone()
		p.Modules = modules
		st.Pipelines = with(st.Pipelines, kind, p)
		return &st
	})
	return model.CloneModules(prev), ok
}

// ClearPipeline drops the cached pipeline of a kind.
func (s *Store) ClearPipeline(kind model.Kind) {
	s.update(Change{Topic: TopicPipeline, Key: string(kind)}, func(st State) *State {
		if _, ok := st.Pipelines[kind]; !ok {
			return nil
		}
		st.Pipelines = without(st.Pipelines, kind)
		return &st
	})
}

// SetCreated records the response of the last create request of a kind.
func (s *Store) SetCreated(kind model.Kind, p model.Pipeline) {
	p = p.Clone()
	s.update(Change{Topic: TopicCreated, Key: string(kind)}, func(st State) *State {
		st.Created = with(st.Created, kind, p)
		return &st
	})
}

// Created returns the response of the last create request of a kind.
func (s *Store) Created(kind model.Kind) (model.Pipeline, bool) {
	p, ok := s.Snapshot().Created[kind]
	return p, ok
}

// =============================================================================
// Previews and Results
// =============================================================================

// SetSourcePreview stores the source preview of an analysis.
//
// # Outputs
//
//   - bool: False if seq is stale and the preview was discarded.
func (s *Store) SetSourcePreview(uuid string, preview model.SourcePreview, seq uint64) bool {
	key := SourcePreviewKey(uuid)
	return s.update(Change{Topic: TopicSourcePreview, Key: uuid}, func(st State) *State {
		if !accept(&st, key, seq) {
			return nil
		}
		p := preview
		st.SourcePreview = &p
		st.SourcePreviewUUID = uuid
		return &st
	})
}

// ClearSourcePreview drops the source preview and makes every preview
// request of uuid still in flight stale.
func (s *Store) ClearSourcePreview(uuid string) {
	key := SourcePreviewKey(uuid)
	s.update(Change{Topic: TopicSourcePreview, Key: uuid}, func(st State) *State {
		invalidate(&st, key)
		st.SourcePreview = nil
		st.SourcePreviewUUID = ""
		return &st
	})
}

// SourcePreview returns the current source preview and the analysis it
// belongs to.
func (s *Store) SourcePreview() (*model.SourcePreview, string) {
	st := s.Snapshot()
	return st.SourcePreview, st.SourcePreviewUUID
}

// SetAverageResult stores the average result of an analysis. nil records
// that there is none.
func (s *Store) SetAverageResult(uuid string, result map[string]any) {
	s.update(Change{Topic: TopicAverageResult, Key: uuid}, func(st State) *State {
		st.AverageResults = with(st.AverageResults, uuid, result)
		return &st
	})
}

// AverageResult returns the stored average result of an analysis.
func (s *Store) AverageResult(uuid string) (map[string]any, bool) {
	r, ok := s.Snapshot().AverageResults[uuid]
	return r, ok
}

// SetResult stores a single analysis result.
func (s *Store) SetResult(uuid string, result map[string]any) {
	s.update(Change{Topic: TopicResult, Key: uuid}, func(st State) *State {
		st.Results = with(st.Results, uuid, result)
		return &st
	})
}

// Result returns a stored analysis result.
func (s *Store) Result(uuid string) (map[string]any, bool) {
	r, ok := s.Snapshot().Results[uuid]
	return r, ok
}
