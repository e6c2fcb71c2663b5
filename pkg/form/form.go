// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package form turns declarative parameter schemas into editable and
// read-only value sets.
//
// # Description
//
// A schema is an ordered list of parameters. This package computes default
// values, merges edited values over them, evaluates visibility expressions,
// selects an editor widget per parameter type, validates a value set and
// projects it for display.
//
// Visibility expressions are compiled by package expr and cached by source
// text. An expression that does not compile leaves its parameter visible.
package form

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/brainage/bad-designer/pkg/form/expr"
	"github.com/brainage/bad-designer/pkg/model"
)

// =============================================================================
// Values
// =============================================================================

// DefaultValues maps every parameter to its default value.
func DefaultValues(schema *model.FormSchema) model.Values {
	values := model.Values{}
	if schema == nil {
		return values
	}
	for _, p := range schema.Parameters {
		values[p.Name] = p.DefaultValue
	}
	return values
}

// MergedValues returns the defaults overlaid with values. Keys in values
// that the schema does not know are kept.
func MergedValues(schema *model.FormSchema, values model.Values) model.Values {
	merged := DefaultValues(schema)
	for k, v := range values {
		merged[k] = v
	}
	return merged.Clone()
}

// IsDefault reports whether values equal the defaults over the union of
// their keys.
func IsDefault(schema *model.FormSchema, values model.Values) bool {
	return ValuesEqual(DefaultValues(schema), values)
}

// ValuesEqual compares two value sets over the union of their keys. A key
// missing on one side only equals a nil value on the other.
func ValuesEqual(a, b model.Values) bool {
	for k, v := range a {
		if !valueEqual(v, b[k]) {
			return false
		}
	}
	for k, v := range b {
		if _, ok := a[k]; !ok && !valueEqual(nil, v) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if na, ok := asFloat(a); ok {
		nb, ok := asFloat(b)
		return ok && na == nb
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// =============================================================================
// Visibility
// =============================================================================

type compiled struct {
	prog *expr.Program
	err  error
}

var programCache sync.Map // source text -> compiled

func compile(src string) compiled {
	if c, ok := programCache.Load(src); ok {
		return c.(compiled)
	}
	prog, err := expr.Compile(src)
	c := compiled{prog: prog, err: err}
	programCache.Store(src, c)
	return c
}

// CompileError returns the compile error of a parameter's visibility
// expression, or nil if it has none or it compiles.
func CompileError(p model.Parameter) error {
	if p.VisibleJS == "" {
		return nil
	}
	return compile(p.VisibleJS).err
}

// IsVisible evaluates a parameter's visibility expression against the
// current form values.
//
// # Description
//
// A parameter without an expression, or evaluated without any values, is
// visible. Sibling values are bound by name; missing ones are undefined.
// An expression that does not compile leaves the parameter visible.
func IsVisible(p model.Parameter, values model.Values) bool {
	if p.VisibleJS == "" || values == nil {
		return true
	}
	c := compile(p.VisibleJS)
	if c.err != nil {
		return true
	}
	return c.prog.Test(values)
}

// VisibleMap evaluates the visibility of every parameter of the schema.
func VisibleMap(schema *model.FormSchema, values model.Values) map[string]bool {
	visible := make(map[string]bool)
	if schema == nil {
		return visible
	}
	for _, p := range schema.Parameters {
		visible[p.Name] = IsVisible(p, values)
	}
	return visible
}

// =============================================================================
// Editing
// =============================================================================

// Change is emitted whenever a value of an editing state changes.
type Change struct {
	Values    model.Values
	IsDefault bool
}

// State is the value set of one form being edited.
//
// # Thread Safety
//
// State is not safe for concurrent use.
type State struct {
	schema *model.FormSchema
	values model.Values
}

// NewState starts editing values over the schema's defaults.
func NewState(schema *model.FormSchema, values model.Values) *State {
	return &State{schema: schema, values: MergedValues(schema, values)}
}

// Set assigns one value and returns the resulting change.
func (s *State) Set(name string, value any) Change {
	s.values[name] = value
	return s.change()
}

// SetAll overlays several values and returns the resulting change.
func (s *State) SetAll(values model.Values) Change {
	for k, v := range values {
		s.values[k] = v
	}
	return s.change()
}

// Reset restores the defaults.
func (s *State) Reset() Change {
	s.values = DefaultValues(s.schema)
	return s.change()
}

// Values returns a copy of the current values.
func (s *State) Values() model.Values { return s.values.Clone() }

// Visible evaluates visibility for the current values.
func (s *State) Visible() map[string]bool { return VisibleMap(s.schema, s.values) }

// Validate validates the current values.
func (s *State) Validate() error { return Validate(s.schema, s.values) }

func (s *State) change() Change {
	return Change{Values: s.values.Clone(), IsDefault: IsDefault(s.schema, s.values)}
}

// =============================================================================
// String Mapping
// =============================================================================

// FormatStringMapping renders a string_mapping value as indented JSON.
func FormatStringMapping(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format mapping: %w", err)
	}
	return string(b), nil
}

// ParseStringMapping parses JSON text into a string to string mapping.
func ParseStringMapping(text string) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	for k, v := range raw {
		if _, ok := v.(string); !ok {
			return nil, fmt.Errorf("parse mapping: value of %q is not a string", k)
		}
	}
	return raw, nil
}
