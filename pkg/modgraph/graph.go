// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package modgraph maintains the ordered, grouped module list of a pipeline.
//
// # Description
//
// The list functions in this file are pure: each returns a new slice and
// never modifies its input, so a caller can always compare before and after
// and send the whole new list to the server. The Editor in editor.go layers
// the interactive rules on top (one module edited at a time, per-group
// limits, confirmation before removal).
package modgraph

import (
	"sort"
	"strings"

	"github.com/brainage/bad-designer/pkg/model"
)

// FallbackRank is the sort rank of a group listed without a positive rank.
const FallbackRank = 100

// GroupRank assigns a display rank to one primary group.
type GroupRank struct {
	Name string
	Rank int
}

// GroupOrder lists the primary groups to display. Groups missing from the
// order are not displayed. Equal ranks keep their order in this list.
type GroupOrder []GroupRank

// DefaultOrder is the group order of preprocessing pipelines.
var DefaultOrder = GroupOrder{
	{Name: "source", Rank: 1},
	{Name: "filter", Rank: 2},
	{Name: "process", Rank: 3},
}

// Section is one separately rendered part of a pipeline's module list.
type Section struct {
	Order  GroupOrder
	Limits Limits
}

// AnalysisSections are the module sections of an analysis pipeline.
var AnalysisSections = []Section{
	{Order: GroupOrder{{Name: "source", Rank: 1}}},
	{Order: GroupOrder{{Name: "process", Rank: 2}, {Name: "reduction", Rank: 3}}, Limits: Limits{"reduction": 1}},
	{Order: GroupOrder{{Name: "prediction", Rank: 4}}, Limits: Limits{"prediction": 1}},
}

// PreprocessSections are the module sections of a preprocessing pipeline.
var PreprocessSections = []Section{
	{Order: DefaultOrder},
}

// SectionsFor returns the module sections of a pipeline kind.
func SectionsFor(kind model.Kind) []Section {
	if kind == model.KindAnalysis {
		return AnalysisSections
	}
	return PreprocessSections
}

// MergedLimits combines the limits of every section.
func MergedLimits(sections []Section) Limits {
	out := Limits{}
	for _, s := range sections {
		for g, n := range s.Limits {
			out[g] = n
		}
	}
	return out
}

// Contains reports whether the order lists the group.
func (o GroupOrder) Contains(group string) bool {
	for _, r := range o {
		if r.Name == group {
			return true
		}
	}
	return false
}

// Group is one displayed group of modules.
type Group struct {
	Name    string
	Modules []model.Module
}

// GroupAndOrder partitions modules by primary group for display.
//
// # Description
//
// Every group of the order is returned, even when empty. Modules of groups
// outside the order are left out of the result only. Groups sort by rank,
// unranked ones at FallbackRank; equal ranks keep their order position.
// Modules keep their list order inside a group.
//
// # Example
//
//	groups := GroupAndOrder(p.Modules, DefaultOrder)
//	// [{source [...]}, {filter [...]}, {process [...]}]
func GroupAndOrder(modules []model.Module, order GroupOrder) []Group {
	groups := make([]Group, 0, len(order))
	index := make(map[string]int, len(order))
	for _, r := range order {
		if _, dup := index[r.Name]; dup {
			continue
		}
		index[r.Name] = len(groups)
		groups = append(groups, Group{Name: r.Name, Modules: []model.Module{}})
	}

	for _, m := range modules {
		if i, ok := index[m.PrimaryGroup()]; ok {
			groups[i].Modules = append(groups[i].Modules, m)
		}
	}

	rank := func(name string) int {
		for _, r := range order {
			if r.Name == name && r.Rank > 0 {
				return r.Rank
			}
		}
		return FallbackRank
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return rank(groups[i].Name) < rank(groups[j].Name)
	})
	return groups
}

// AddModule appends a stub of the named module. The server assigns the
// identity and default values on the next store.
func AddModule(modules []model.Module, name string) []model.Module {
	out := model.CloneModules(modules)
	return append(out, model.Module{Name: name})
}

// RemoveModule drops the module with the given identity.
func RemoveModule(modules []model.Module, uuid string) []model.Module {
	out := make([]model.Module, 0, len(modules))
	for _, m := range modules {
		if m.UUID == uuid {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}

// CopyModule appends a stub with the same name and a deep copy of the
// parameter values of the module with the given identity. Returns the
// list unchanged if no module has that identity.
func CopyModule(modules []model.Module, uuid string) []model.Module {
	out := model.CloneModules(modules)
	for _, m := range modules {
		if m.UUID == uuid {
			return append(out, model.Module{
				Name:            m.Name,
				ParameterValues: m.ParameterValues.Clone(),
			})
		}
	}
	return out
}

// ReplaceModule swaps in a new version of the module with the same
// identity. Returns the list unchanged if no module has that identity.
func ReplaceModule(modules []model.Module, module model.Module) []model.Module {
	out := model.CloneModules(modules)
	for i, m := range out {
		if m.UUID != "" && m.UUID == module.UUID {
			out[i] = module.Clone()
			break
		}
	}
	return out
}

// CanReorder reports whether source may be moved in front of target:
// both exist, differ and share their primary group.
func CanReorder(modules []model.Module, sourceUUID, targetUUID string) bool {
	if sourceUUID == "" || sourceUUID == targetUUID {
		return false
	}
	src, srcOK := find(modules, sourceUUID)
	dst, dstOK := find(modules, targetUUID)
	return srcOK && dstOK && modules[src].PrimaryGroup() == modules[dst].PrimaryGroup()
}

// Reorder moves source directly in front of target.
//
// # Description
//
// The source is taken out of the list first, then inserted at the
// target's new index. When the move is not allowed (see CanReorder) the
// original list is returned.
//
// # Example
//
//	// [a b c] with Reorder(c, a) -> [c a b]
//	// [a b c] with Reorder(a, c) -> [b a c]
func Reorder(modules []model.Module, sourceUUID, targetUUID string) []model.Module {
	if !CanReorder(modules, sourceUUID, targetUUID) {
		return modules
	}
	srcIdx, _ := find(modules, sourceUUID)
	source := modules[srcIdx].Clone()

	rest := make([]model.Module, 0, len(modules))
	for i, m := range modules {
		if i != srcIdx {
			rest = append(rest, m.Clone())
		}
	}
	targetIdx, _ := find(rest, targetUUID)
	if targetIdx == 0 {
		return append([]model.Module{source}, rest...)
	}
	out := make([]model.Module, 0, len(modules))
	out = append(out, rest[:targetIdx]...)
	out = append(out, source)
	return append(out, rest[targetIdx:]...)
}

func find(modules []model.Module, uuid string) (int, bool) {
	for i, m := range modules {
		if m.UUID != "" && m.UUID == uuid {
			return i, true
		}
	}
	return -1, false
}

// =============================================================================
// Limits
// =============================================================================

// Limits maps a primary group to its maximum module count. Groups without
// an entry are unlimited.
type Limits map[string]int

// Count returns the number of modules in a primary group.
func Count(modules []model.Module, group string) int {
	n := 0
	for _, m := range modules {
		if m.PrimaryGroup() == group {
			n++
		}
	}
	return n
}

// CanAdd reports whether the group is below its limit.
func (l Limits) CanAdd(group string, modules []model.Module) bool {
	max, ok := l[group]
	if !ok {
		return true
	}
	return Count(modules, group) < max
}

// Check returns the first group whose module count exceeds its limit.
func (l Limits) Check(modules []model.Module) (string, bool) {
	for group, max := range l {
		if Count(modules, group) > max {
			return group, false
		}
	}
	return "", true
}

// =============================================================================
// Catalog
// =============================================================================

// CatalogEntry is one sub-group of addable modules.
type CatalogEntry struct {
	Path    string
	Modules []string
}

// Catalog lists the available modules of a primary group, keyed by their
// sub-group path (group[1:] joined by " / "). Paths and names are sorted.
func Catalog(available []model.ModuleDescriptor, group string) []CatalogEntry {
	byPath := map[string][]string{}
	for _, d := range available {
		if d.PrimaryGroup() != group {
			continue
		}
		path := strings.Join(d.Group[1:], " / ")
		byPath[path] = append(byPath[path], d.Name)
	}
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]CatalogEntry, 0, len(paths))
	for _, p := range paths {
		names := byPath[p]
		sort.Strings(names)
		out = append(out, CatalogEntry{Path: p, Modules: names})
	}
	return out
}

// Available reports whether a module of that name may be added to group.
func Available(available []model.ModuleDescriptor, group, name string) bool {
	for _, d := range available {
		if d.Name == name && d.PrimaryGroup() == group {
			return true
		}
	}
	return false
}
