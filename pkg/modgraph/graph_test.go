// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package modgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainage/bad-designer/pkg/model"
)

func mod(uuid, group string) model.Module {
	return model.Module{UUID: uuid, Name: "mod_" + uuid, Group: []string{group}}
}

func uuids(modules []model.Module) []string {
	out := make([]string, len(modules))
	for i, m := range modules {
		out[i] = m.UUID
	}
	return out
}

// =============================================================================
// GroupAndOrder
// =============================================================================

func TestGroupAndOrder(t *testing.T) {
	modules := []model.Module{
		mod("p1", "process"),
		mod("s1", "source"),
		mod("x1", "unlisted"),
		mod("p2", "process"),
	}

	groups := GroupAndOrder(modules, DefaultOrder)

	require.Len(t, groups, 3)
	assert.Equal(t, "source", groups[0].Name)
	assert.Equal(t, []string{"s1"}, uuids(groups[0].Modules))
	assert.Equal(t, "filter", groups[1].Name)
	assert.Empty(t, groups[1].Modules)
	assert.Equal(t, []string{"p1", "p2"}, uuids(groups[2].Modules))
	assert.Len(t, modules, 4, "input untouched")
}

func TestGroupAndOrder_FallbackRankAndTies(t *testing.T) {
	order := GroupOrder{
		{Name: "late"},
		{Name: "b", Rank: 2},
		{Name: "a", Rank: 2},
		{Name: "first", Rank: 1},
	}

	groups := GroupAndOrder(nil, order)

	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	assert.Equal(t, []string{"first", "b", "a", "late"}, names)
}

func TestGroupAndOrder_EveryListedModuleExactlyOnce(t *testing.T) {
	modules := []model.Module{
		mod("a", "source"), mod("b", "filter"), mod("c", "process"),
		mod("d", "source"), mod("e", "process"), mod("f", "other"),
	}

	seen := map[string]int{}
	for _, g := range GroupAndOrder(modules, DefaultOrder) {
		for _, m := range g.Modules {
			seen[m.UUID]++
		}
	}

	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1}, seen)
}

// =============================================================================
// List operations
// =============================================================================

func TestAddModule_IgnoresLimits(t *testing.T) {
	var modules []model.Module
	limits := Limits{"source": 1}

	modules = AddModule(modules, "csv_loader")
	modules[0].Group = []string{"source"}
	assert.False(t, limits.CanAdd("source", modules))

	modules = AddModule(modules, "csv_loader")
	require.Len(t, modules, 2)
	assert.Equal(t, model.Module{Name: "csv_loader"}, modules[1])
}

func TestRemoveModule(t *testing.T) {
	modules := []model.Module{mod("a", "source"), mod("b", "process")}

	out := RemoveModule(modules, "a")

	assert.Equal(t, []string{"b"}, uuids(out))
	assert.Len(t, modules, 2)
}

func TestCopyModule_DeepCopiesParameters(t *testing.T) {
	src := mod("a", "process")
	src.ParameterValues = model.Values{"list": []any{"x"}}
	modules := []model.Module{src}

	out := CopyModule(modules, "a")

	require.Len(t, out, 2)
	assert.Empty(t, out[1].UUID)
	assert.Equal(t, "mod_a", out[1].Name)
	out[1].ParameterValues["list"].([]any)[0] = "changed"
	assert.Equal(t, "x", modules[0].ParameterValues["list"].([]any)[0])
}

func TestReorder(t *testing.T) {
	modules := []model.Module{mod("a", "process"), mod("b", "process"), mod("c", "process"), mod("s", "source")}

	tests := []struct {
		name           string
		source, target string
		want           []string
	}{
		{"to front", "c", "a", []string{"c", "a", "b", "s"}},
		{"forward", "a", "c", []string{"b", "a", "c", "s"}},
		{"adjacent", "b", "a", []string{"b", "a", "c", "s"}},
		{"cross group is a no-op", "a", "s", []string{"a", "b", "c", "s"}},
		{"self is a no-op", "a", "a", []string{"a", "b", "c", "s"}},
		{"unknown is a no-op", "zz", "a", []string{"a", "b", "c", "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uuids(Reorder(modules, tt.source, tt.target)))
		})
	}
}

func TestReplaceModule(t *testing.T) {
	modules := []model.Module{mod("a", "process"), mod("b", "process")}
	updated := mod("b", "process")
	updated.Name = "renamed"

	out := ReplaceModule(modules, updated)

	assert.Equal(t, "renamed", out[1].Name)
	assert.Equal(t, "mod_b", modules[1].Name)
}

func TestLimits(t *testing.T) {
	limits := Limits{"reduction": 1}
	modules := []model.Module{mod("r", "reduction"), mod("p", "process")}

	assert.False(t, limits.CanAdd("reduction", modules))
	assert.True(t, limits.CanAdd("process", modules))
	_, ok := limits.Check(modules)
	assert.True(t, ok)

	group, ok := limits.Check(append(modules, mod("r2", "reduction")))
	assert.False(t, ok)
	assert.Equal(t, "reduction", group)
}

func TestCatalog(t *testing.T) {
	available := []model.ModuleDescriptor{
		{Name: "z_filter", Group: []string{"filter", "image"}},
		{Name: "a_filter", Group: []string{"filter", "image"}},
		{Name: "mask", Group: []string{"filter"}},
		{Name: "csv", Group: []string{"source", "table"}},
	}

	entries := Catalog(available, "filter")

	require.Len(t, entries, 2)
	assert.Equal(t, CatalogEntry{Path: "", Modules: []string{"mask"}}, entries[0])
	assert.Equal(t, CatalogEntry{Path: "image", Modules: []string{"a_filter", "z_filter"}}, entries[1])
	assert.True(t, Available(available, "source", "csv"))
	assert.False(t, Available(available, "filter", "csv"))
}

func TestSectionsFor(t *testing.T) {
	limits := MergedLimits(SectionsFor(model.KindAnalysis))
	assert.Equal(t, Limits{"reduction": 1, "prediction": 1}, limits)
	assert.Empty(t, MergedLimits(SectionsFor(model.KindPreprocess)))
}
