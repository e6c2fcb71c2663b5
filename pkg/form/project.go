// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package form

import (
	"fmt"

	"github.com/brainage/bad-designer/pkg/form/expr"
	"github.com/brainage/bad-designer/pkg/model"
)

// Glyphs used for boolean values in read-only projections.
const (
	GlyphTrue  = "✓"
	GlyphFalse = "✗"
)

// Field is one row of a projected form.
type Field struct {
	Name    string
	Label   string
	Type    model.ParamType
	Value   any
	Display string

	// Editable marks the single parameter of an inline edit.
	Editable bool
	Widget   Widget
}

// Project returns the read-only projection of values.
//
// # Description
//
// Only visible parameters are listed, in schema order. A missing value
// shows the parameter default. Select values display their option name,
// booleans a check or cross glyph, string mappings their JSON text.
func Project(schema *model.FormSchema, values model.Values) []Field {
	return project(schema, values, "")
}

// ProjectInline is Project with exactly one parameter marked editable.
func ProjectInline(schema *model.FormSchema, values model.Values, name string) []Field {
	return project(schema, values, name)
}

func project(schema *model.FormSchema, values model.Values, editable string) []Field {
	if schema == nil {
		return nil
	}
	var fields []Field
	for _, p := range schema.Parameters {
		if !IsVisible(p, values) {
			continue
		}
		v, ok := values[p.Name]
		if !ok {
			v = p.DefaultValue
		}
		fields = append(fields, Field{
			Name:     p.Name,
			Label:    p.Label(),
			Type:     p.Type,
			Value:    v,
			Display:  displayValue(p, v),
			Editable: editable != "" && p.Name == editable,
			Widget:   WidgetFor(p.Type),
		})
	}
	return fields
}

func displayValue(p model.Parameter, v any) string {
	switch p.Type {
	case model.ParamSelect:
		if name, ok := p.OptionName(v); ok {
			return name
		}
	case model.ParamBool:
		if expr.Truthy(v) {
			return GlyphTrue
		}
		return GlyphFalse
	case model.ParamStringMapping:
		if s, err := FormatStringMapping(v); err == nil {
			return s
		}
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
