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

// ReductionPreviewTopic is the push topic of the reduction preview.
const ReductionPreviewTopic = "reduction_preview"

// SourceModuleName is the analysis module whose values drive the source
// file preview.
const SourceModuleName = "analysis_source"

// TableMappingParam is the parameter of the source module that maps
// attribute table columns to file attributes.
const TableMappingParam = "table_mapping"

// PreviewTable is the attribute table part of a source preview.
type PreviewTable struct {
	Headers []string         `json:"headers,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// SourcePreview is the speculative file resolution of an analysis source
// module. A failed preview carries only Error.
type SourcePreview struct {
	Files      []map[string]any `json:"files,omitempty"`
	Attributes []string         `json:"attributes,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Table      *PreviewTable    `json:"table,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Failed reports whether the preview is an inline error.
func (p *SourcePreview) Failed() bool {
	return p != nil && p.Error != ""
}
