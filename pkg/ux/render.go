// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/brainage/bad-designer/pkg/form"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/modgraph"
)

// =============================================================================
// Pipelines
// =============================================================================

// StatusText renders a derived run status with its icon.
func (p *Printer) StatusText(s model.Status) string {
	icon := IconPending
	switch {
	case s.Running:
		icon = IconRunning
	case s.State == model.StateFinished:
		icon = IconSuccess
	case s.State == model.StateFailed:
		icon = IconError
	case s.State == model.StateKilled:
		icon = IconWarning
	}
	return p.Icon(icon) + " " + string(s.State)
}

// Pipeline prints the header of a pipeline view.
func (p *Printer) Pipeline(kind model.Kind, pl model.Pipeline, status model.Status, progress *model.Progress) {
	if p.Mode == ModeMachine {
		fmt.Fprintf(p.Out, "%s\t%s\t%s\t%s\n", kind, pl.UUID, status.State, pl.Name)
		if progress != nil {
			fmt.Fprintf(p.Out, "progress\t%d\t%d\t%.1f\n", progress.Done, progress.All, progress.Percent)
		}
		return
	}
	p.Title(pl.Name)
	if pl.Description != "" {
		p.Muted(pl.Description)
	}
	p.KeyValue("uuid", pl.UUID)
	p.KeyValue("kind", kind)
	if !pl.DateCreated.IsZero() {
		p.KeyValue("created", pl.DateCreated.String())
	}
	p.KeyValue("status", p.StatusText(status))
	if progress != nil {
		p.KeyValue("progress", p.ProgressBar(progress.Done, progress.All, 30))
	}
}

// Modules prints the grouped module list of a pipeline. editing marks the
// module under edit; run supplies the files badge counts.
func (p *Printer) Modules(groups []modgraph.Group, run *model.ProcessRun, editing string) {
	for _, g := range groups {
		if p.Mode == ModeMachine {
			for _, m := range g.Modules {
				fmt.Fprintf(p.Out, "%s\t%s\t%s\t%d\n", g.Name, m.UUID, m.Name, model.ModuleObjectCount(run, m.UUID))
			}
			continue
		}
		fmt.Fprintln(p.Out, p.Style(Styles.Subtitle, g.Name))
		if len(g.Modules) == 0 {
			fmt.Fprintf(p.Out, "  %s\n", p.Style(Styles.Muted, "(empty)"))
		}
		for _, m := range g.Modules {
			icon := IconBullet
			if editing != "" && m.UUID == editing {
				icon = IconEdit
			}
			line := fmt.Sprintf("  %s %s %s", p.Icon(icon), p.Style(Styles.Bold, m.Name), p.Style(Styles.Muted, shortID(m.UUID)))
			if n := model.ModuleObjectCount(run, m.UUID); n > 0 {
				line += fmt.Sprintf(" [%d files]", n)
			}
			fmt.Fprintln(p.Out, line)
		}
	}
}

func shortID(id string) string {
	if id == "" {
		return "(unsaved)"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Fields prints a projected form.
func (p *Printer) Fields(fields []form.Field) {
	for _, f := range fields {
		label := f.Label
		if f.Editable && p.Mode != ModeMachine {
			label = string(IconEdit) + " " + label
		}
		if p.Mode == ModeMachine {
			label = f.Name
		}
		p.KeyValue(label, f.Display)
	}
}

// =============================================================================
// Tables and Maps
// =============================================================================

// Table prints one page of a table listing.
func (p *Printer) Table(resp model.TableResponse) {
	headers := make([]string, len(resp.Columns))
	for i, c := range resp.Columns {
		headers[i] = c.Name
		if c.Title != "" && p.Mode != ModeMachine {
			headers[i] = c.Title
		}
	}
	rows := make([][]string, len(resp.Rows))
	for i, r := range resp.Rows {
		rows[i] = make([]string, len(resp.Columns))
		for j, c := range resp.Columns {
			rows[i][j] = FormatCell(r[c.Name])
		}
	}

	if p.Mode == ModeMachine {
		fmt.Fprintln(p.Out, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(p.Out, strings.Join(r, "\t"))
		}
		return
	}

	t := table.New().Headers(headers...).Rows(rows...)
	if p.Mode == ModeRich {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(Styles.Muted).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return Styles.Subtitle.Bold(true).Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
	} else {
		t = t.Border(lipgloss.NormalBorder())
	}
	fmt.Fprintln(p.Out, t.String())
	p.Muted(fmt.Sprintf("%d of %d rows (offset %d)", len(resp.Rows), resp.Total, resp.Options.Offset))
}

// FormatCell renders one table value.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case bool:
		if x {
			return form.GlyphTrue
		}
		return form.GlyphFalse
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// Map prints a free-form server object with sorted keys.
func (p *Printer) Map(title string, data map[string]any) {
	p.Title(title)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.KeyValue(k, FormatCell(data[k]))
	}
}

// =============================================================================
// Files
// =============================================================================

// Listing prints a directory tree including every expanded child.
func (p *Printer) Listing(l model.DirListing) {
	if p.Mode == ModeMachine {
		p.machineListing(l)
		return
	}
	fmt.Fprintln(p.Out, p.listingTree(l, l.Path).String())
}

func (p *Printer) listingTree(l model.DirListing, label string) *tree.Tree {
	t := tree.Root(p.Style(Styles.Title, label))
	for _, d := range l.Dirs {
		name := p.Icon(IconFolder) + " " + p.Style(Styles.Subtitle, d.Name)
		if d.Children != nil {
			t.Child(p.listingTree(*d.Children, name))
			continue
		}
		t.Child(name)
	}
	for _, f := range l.Files {
		name := f.Name
		if f.Type == model.FileTypeImage {
			name += " " + p.Style(Styles.Muted, "(image)")
		}
		t.Child(name)
	}
	return t
}

func (p *Printer) machineListing(l model.DirListing) {
	for _, d := range l.Dirs {
		fmt.Fprintf(p.Out, "d\t%s\n", d.Path)
		if d.Children != nil {
			p.machineListing(*d.Children)
		}
	}
	for _, f := range l.Files {
		fmt.Fprintf(p.Out, "f\t%s\t%s\n", strings.TrimRight(l.Path, "/")+"/"+f.Name, f.Type)
	}
}

// ImageMeta prints image metadata or its inline error.
func (p *Printer) ImageMeta(m model.ImageMeta) {
	if m.Error != "" {
		p.Error(m.Path + ": " + m.Error)
		return
	}
	p.Title(m.Path)
	p.KeyValue("shape", joinInts(m.Shape))
	p.KeyValue("dtype", m.Dtype)
	if len(m.Range) == 2 {
		p.KeyValue("range", fmt.Sprintf("%g .. %g", m.Range[0], m.Range[1]))
	}
	if len(m.VoxelSize) > 0 {
		p.KeyValue("voxel size", fmt.Sprint(m.VoxelSize))
	}
}

// VolumeStats summarizes voxel data.
type VolumeStats struct {
	Count          int
	Min, Max, Mean float64
}

// ComputeVolumeStats returns the summary of data; zero for no samples.
func ComputeVolumeStats(data []float32) VolumeStats {
	if len(data) == 0 {
		return VolumeStats{}
	}
	s := VolumeStats{Count: len(data), Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, v := range data {
		f := float64(v)
		s.Min = math.Min(s.Min, f)
		s.Max = math.Max(s.Max, f)
		sum += f
	}
	s.Mean = sum / float64(len(data))
	return s
}

// Volume prints a voxel summary or the inline error.
func (p *Printer) Volume(v model.ImageVolume) {
	if v.Error != "" {
		p.Error(v.Path + ": " + v.Error)
		return
	}
	stats := ComputeVolumeStats(v.Data)
	p.Title(v.Path)
	p.KeyValue("shape", joinInts(v.Shape))
	p.KeyValue("zooms", fmt.Sprint(v.Zooms))
	p.KeyValue("voxels", stats.Count)
	p.KeyValue("min", fmt.Sprintf("%g", stats.Min))
	p.KeyValue("max", fmt.Sprintf("%g", stats.Max))
	p.KeyValue("mean", fmt.Sprintf("%.4g", stats.Mean))
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, "×")
}

// SourcePreview prints the resolved files and attributes of a source
// module, or its inline error.
func (p *Printer) SourcePreview(preview *model.SourcePreview) {
	if preview == nil {
		p.Muted("no preview")
		return
	}
	if preview.Failed() {
		p.Error(preview.Error)
		return
	}
	p.Title(fmt.Sprintf("%d files", len(preview.Files)))
	if len(preview.Attributes) > 0 {
		p.KeyValue("attributes", strings.Join(preview.Attributes, ", "))
	}
	for _, f := range preview.Files {
		name, _ := f["name"].(string)
		if name == "" {
			name, _ = f["path"].(string)
		}
		p.Info(name)
	}
	if preview.Table != nil && preview.Table.Error != "" {
		p.Warning("attribute table: " + preview.Table.Error)
	}
}
