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

// TableColumn describes one column of a table listing. Type defaults to
// "str" on the server; other values are datetime, uuid, state, text, data,
// bool and filename.
type TableColumn struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// TableOptions is the effective query the server applied to a listing.
type TableOptions struct {
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	Sort    string            `json:"sort"`
	Filters map[string]string `json:"filters"`
}

// TableResponse is one page of a table listing.
type TableResponse struct {
	Total           int              `json:"total"`
	TotalUnfiltered int              `json:"total_unfiltered"`
	Options         TableOptions     `json:"options"`
	Columns         []TableColumn    `json:"columns"`
	Rows            []map[string]any `json:"rows"`
	FetchedAt       time.Time        `json:"-"`
}

// FileTable is an attribute table file read by the server, or the error
// that replaced it.
type FileTable struct {
	File  string           `json:"file,omitempty"`
	Rows  []map[string]any `json:"rows,omitempty"`
	Error string           `json:"error,omitempty"`
}

// ModuleObjects lists the file names a module read or wrote during a run.
type ModuleObjects struct {
	Result []string `json:"result"`
}

// TableQuery is the client side paging, sorting and filtering of a table
// listing. Zero values are left out of the request.
type TableQuery struct {
	Offset  int
	Limit   int
	Sort    string
	Filters map[string]string
}
