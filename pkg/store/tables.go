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
	"maps"

	"github.com/brainage/bad-designer/pkg/model"
)

// TableKey addresses one table view: the same listing URL may be shown in
// several namespaces with independent paging.
type TableKey struct {
	Namespace string
	URL       string
}

// TableEntry is the cached state of one table view.
type TableEntry struct {
	Query       model.TableQuery
	Response    *model.TableResponse
	NeedsUpdate bool
}

// UpdateTableQuery replaces the query of a table view and marks it for
// re-fetch.
func (s *Store) UpdateTableQuery(key TableKey, q model.TableQuery) {
	q.Filters = maps.Clone(q.Filters)
	s.update(Change{Topic: TopicTable, Key: key.Namespace + key.URL}, func(st State) *State {
		entry := st.Tables[key]
		entry.Query = q
		entry.NeedsUpdate = true
		st.Tables = with(st.Tables, key, entry)
		return &st
	})
}

// SetTableResponse stores a fetched page and clears the re-fetch mark.
func (s *Store) SetTableResponse(key TableKey, resp model.TableResponse) {
	s.update(Change{Topic: TopicTable, Key: key.Namespace + key.URL}, func(st State) *State {
		entry := st.Tables[key]
		r := resp
		entry.Response = &r
		entry.NeedsUpdate = false
		st.Tables = with(st.Tables, key, entry)
		return &st
	})
}

// Table returns the cached state of a table view.
func (s *Store) Table(key TableKey) (TableEntry, bool) {
	e, ok := s.Snapshot().Tables[key]
	return e, ok
}

// ObjectsKey addresses the processed files of one module in one run.
type ObjectsKey struct {
	ProcessUUID string
	ModuleUUID  string
	Source      bool
}

// SetModuleObjects stores the processed files of a module.
func (s *Store) SetModuleObjects(key ObjectsKey, files []string) {
	files = append([]string(nil), files...)
	s.update(Change{Topic: TopicModuleObjects, Key: key.ProcessUUID + ":" + key.ModuleUUID}, func(st State) *State {
		st.ModuleObjects = with(st.ModuleObjects, key, files)
		return &st
	})
}

// ModuleObjects returns the stored processed files of a module.
func (s *Store) ModuleObjects(key ObjectsKey) ([]string, bool) {
	files, ok := s.Snapshot().ModuleObjects[key]
	return files, ok
}
