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

import "fmt"

// ParamType is the declared type of a form parameter.
type ParamType string

const (
	ParamInt           ParamType = "int"
	ParamFloat         ParamType = "float"
	ParamString        ParamType = "string"
	ParamText          ParamType = "text"
	ParamBool          ParamType = "bool"
	ParamSelect        ParamType = "select"
	ParamFilepath      ParamType = "filepath"
	ParamFilename      ParamType = "filename"
	ParamStringMapping ParamType = "string_mapping"
)

// Option is one choice of a select parameter.
type Option struct {
	Value any    `json:"value"`
	Name  string `json:"name"`
}

// Parameter is one field of a form schema.
type Parameter struct {
	Name         string    `json:"name"`
	HumanName    string    `json:"human_name,omitempty"`
	Type         ParamType `json:"type"`
	Required     bool      `json:"required"`
	DefaultValue any       `json:"default_value"`
	Options      []Option  `json:"options,omitempty"`
	VisibleJS    string    `json:"visible_js,omitempty"`
	Description  string    `json:"description,omitempty"`
	Help         string    `json:"help,omitempty"`
	MinValue     *float64  `json:"min_value,omitempty"`
	MaxValue     *float64  `json:"max_value,omitempty"`
	MaxLength    *int      `json:"max_length,omitempty"`
}

// Label returns the human name, falling back to the parameter name.
func (p Parameter) Label() string {
	if p.HumanName != "" {
		return p.HumanName
	}
	return p.Name
}

// OptionName returns the display name of the option holding value.
func (p Parameter) OptionName(value any) (string, bool) {
	for _, o := range p.Options {
		if fmt.Sprint(o.Value) == fmt.Sprint(value) {
			return o.Name, true
		}
	}
	return "", false
}

// FormSchema is an ordered list of parameters rendered as one form.
type FormSchema struct {
	ID         string      `json:"id"`
	Parameters []Parameter `json:"parameters"`
}

// Parameter looks up a parameter by name.
func (f FormSchema) Parameter(name string) (Parameter, bool) {
	for _, p := range f.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Validate reports schema defects: empty or duplicate parameter names.
func (f FormSchema) Validate() error {
	seen := make(map[string]bool, len(f.Parameters))
	for i, p := range f.Parameters {
		if p.Name == "" {
			return fmt.Errorf("form %q: parameter %d has no name", f.ID, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("form %q: duplicate parameter %q", f.ID, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Clone returns a deep copy of the schema.
func (f FormSchema) Clone() FormSchema {
	out := f
	if f.Parameters != nil {
		out.Parameters = make([]Parameter, len(f.Parameters))
		for i, p := range f.Parameters {
			cp := p
			cp.DefaultValue = cloneJSON(p.DefaultValue)
			if p.Options != nil {
				cp.Options = append([]Option(nil), p.Options...)
			}
			out.Parameters[i] = cp
		}
	}
	return out
}
