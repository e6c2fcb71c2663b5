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

import (
	"encoding/json"
	"fmt"

	"github.com/go-openapi/strfmt"
)

// Values maps parameter names to their JSON values.
type Values map[string]any

// Clone returns a deep copy of the values. Nested maps and slices decoded
// from JSON are copied as well.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = cloneJSON(val)
	}
	return out
}

func cloneJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneJSON(val)
		}
		return out
	case Values:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneJSON(val)
		}
		return out
	default:
		return v
	}
}

// ModuleDescriptor describes a module that can be added to a pipeline.
type ModuleDescriptor struct {
	Name  string   `json:"name"`
	Group []string `json:"group"`
	Help  string   `json:"help,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// PrimaryGroup returns group[0] or "" for an ungrouped descriptor.
func (d ModuleDescriptor) PrimaryGroup() string {
	if len(d.Group) == 0 {
		return ""
	}
	return d.Group[0]
}

// Module is one configured processing step of a pipeline.
//
// A module created on the client has an empty UUID until the server
// assigns one on the next store.
type Module struct {
	UUID            string      `json:"uuid,omitempty"`
	Name            string      `json:"name"`
	Group           []string    `json:"group,omitempty"`
	ParameterValues Values      `json:"parameter_values,omitempty"`
	Form            *FormSchema `json:"form,omitempty"`
	Help            string      `json:"help,omitempty"`
}

// PrimaryGroup returns group[0] or "" when the module carries no group.
func (m Module) PrimaryGroup() string {
	if len(m.Group) == 0 {
		return ""
	}
	return m.Group[0]
}

// Clone returns a deep copy of the module.
func (m Module) Clone() Module {
	out := m
	if m.Group != nil {
		out.Group = append([]string(nil), m.Group...)
	}
	out.ParameterValues = m.ParameterValues.Clone()
	if m.Form != nil {
		f := m.Form.Clone()
		out.Form = &f
	}
	return out
}

// CloneModules deep copies a module list.
func CloneModules(modules []Module) []Module {
	if modules == nil {
		return nil
	}
	out := make([]Module, len(modules))
	for i, m := range modules {
		out[i] = m.Clone()
	}
	return out
}

// Pipeline is the server resource of a preprocessing or analysis pipeline.
//
// Fields the client does not interpret (additional forms and values, server
// bookkeeping) are kept in Extra so that an update sends the full resource
// back unchanged.
type Pipeline struct {
	UUID              string             `json:"uuid"`
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	DateCreated       strfmt.DateTime    `json:"date_created"`
	Modules           []Module           `json:"modules"`
	AvailableModules  []ModuleDescriptor `json:"available_modules,omitempty"`
	ConfigForm        *FormSchema        `json:"config_form,omitempty"`
	LatestProcessData *ProcessRun        `json:"latest_process_data,omitempty"`
	SeparationForm    *FormSchema        `json:"separation_form,omitempty"`
	SeparationValues  Values             `json:"separation_values,omitempty"`
	AnalysisForm      *FormSchema        `json:"analysis_form,omitempty"`
	AnalysisValues    Values             `json:"analysis_values,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type pipelineAlias Pipeline

var pipelineFields = map[string]bool{
	"uuid": true, "name": true, "description": true, "date_created": true,
	"modules": true, "available_modules": true, "config_form": true,
	"latest_process_data": true, "separation_form": true,
	"separation_values": true, "analysis_form": true, "analysis_values": true,
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var alias pipelineAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Pipeline(alias)
	p.Extra = nil
	for k, v := range raw {
		if pipelineFields[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	return nil
}

// MarshalJSON encodes the known fields plus everything kept in Extra.
func (p Pipeline) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(pipelineAlias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return known, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Clone returns a deep copy of the pipeline.
func (p Pipeline) Clone() Pipeline {
	out := p
	out.Modules = CloneModules(p.Modules)
	if p.AvailableModules != nil {
		out.AvailableModules = append([]ModuleDescriptor(nil), p.AvailableModules...)
	}
	out.SeparationValues = p.SeparationValues.Clone()
	out.AnalysisValues = p.AnalysisValues.Clone()
	if p.LatestProcessData != nil {
		run := *p.LatestProcessData
		out.LatestProcessData = &run
	}
	if p.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// ModuleByUUID returns the module with the given identity.
func (p Pipeline) ModuleByUUID(uuid string) (Module, bool) {
	for _, m := range p.Modules {
		if m.UUID != "" && m.UUID == uuid {
			return m, true
		}
	}
	return Module{}, false
}

// Patch applies top-level JSON fields to a copy of the pipeline.
//
// # Inputs
//
//   - patch: Top-level keys of the pipeline resource and their new values.
//
// # Outputs
//
//   - Pipeline: The patched copy.
//   - error: Non-nil if a value does not decode into its field.
func (p Pipeline) Patch(patch map[string]any) (Pipeline, error) {
	if len(patch) == 0 {
		return p.Clone(), nil
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return Pipeline{}, fmt.Errorf("encode pipeline: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return Pipeline{}, fmt.Errorf("decode pipeline: %w", err)
	}
	for k, v := range patch {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return Pipeline{}, fmt.Errorf("encode patch: %w", err)
	}
	var out Pipeline
	if err := json.Unmarshal(merged, &out); err != nil {
		return Pipeline{}, fmt.Errorf("apply patch: %w", err)
	}
	return out, nil
}

// PipelineSummary is one row of a pipeline table listing.
type PipelineSummary struct {
	UUID        string          `json:"uuid"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	DateCreated strfmt.DateTime `json:"date_created"`
}
