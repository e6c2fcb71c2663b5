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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainage/bad-designer/pkg/model"
)

func ptrInt(n int) *int { return &n }
func ptrFloat(f float64) *float64 { return &f }

// reductionSchema mirrors the kind of schema the server sends for the
// reduction step of an analysis pipeline.
func reductionSchema() *model.FormSchema {
	return &model.FormSchema{
		ID: "reduction",
		Parameters: []model.Parameter{
			{Name: "mode", Type: model.ParamSelect, DefaultValue: "count", Options: []model.Option{
				{Value: "count", Name: "Fixed count"},
				{Value: "percent", Name: "Percentage"},
			}},
			{Name: "percent", HumanName: "Percentage", Type: model.ParamFloat, Required: true, VisibleJS: "mode === 'percent'",
				MinValue: ptrFloat(0), MaxValue: ptrFloat(100)},
			{Name: "count", Type: model.ParamInt, DefaultValue: 10.0, VisibleJS: "mode === 'count'"},
			{Name: "clamp_output", Type: model.ParamBool, DefaultValue: false},
			{Name: "label", Type: model.ParamString, DefaultValue: "", MaxLength: ptrInt(5)},
			{Name: "table_mapping", Type: model.ParamStringMapping},
		},
	}
}

// =============================================================================
// Values
// =============================================================================

func TestDefaultValues(t *testing.T) {
	values := DefaultValues(reductionSchema())

	assert.Equal(t, "count", values["mode"])
	assert.Equal(t, 10.0, values["count"])
	assert.Contains(t, values, "percent")
	assert.Nil(t, values["percent"])
	assert.Empty(t, DefaultValues(nil))
}

func TestMergedValues(t *testing.T) {
	merged := MergedValues(reductionSchema(), model.Values{"mode": "percent", "extra": 1})

	assert.Equal(t, "percent", merged["mode"])
	assert.Equal(t, 10.0, merged["count"])
	assert.Equal(t, 1, merged["extra"])
}

func TestIsDefault(t *testing.T) {
	schema := reductionSchema()
	defaults := DefaultValues(schema)
	assert.True(t, IsDefault(schema, defaults))

	defaults["count"] = 10
	assert.True(t, IsDefault(schema, defaults), "int and float of the same number are equal")

	defaults["count"] = 11
	assert.False(t, IsDefault(schema, defaults))

	assert.False(t, IsDefault(schema, model.Values{"unknown": "x"}))
}

// =============================================================================
// Visibility
// =============================================================================

func TestIsVisible(t *testing.T) {
	schema := reductionSchema()
	percent, _ := schema.Parameter("percent")
	mode, _ := schema.Parameter("mode")

	assert.True(t, IsVisible(mode, model.Values{"mode": "count"}), "no expression")
	assert.True(t, IsVisible(percent, nil), "no values")
	assert.True(t, IsVisible(percent, model.Values{"mode": "percent"}))
	assert.False(t, IsVisible(percent, model.Values{"mode": "count"}))
	assert.False(t, IsVisible(percent, model.Values{}), "missing sibling is undefined")
}

func TestIsVisible_BrokenExpressionStaysVisible(t *testing.T) {
	p := model.Parameter{Name: "x", VisibleJS: "mode ==="}

	assert.True(t, IsVisible(p, model.Values{"mode": "a"}))
	assert.Error(t, CompileError(p))
	assert.NoError(t, CompileError(model.Parameter{Name: "y"}))
}

func TestState_ChangeReportsDefault(t *testing.T) {
	schema := reductionSchema()
	state := NewState(schema, nil)

	change := state.Set("mode", "percent")
	assert.False(t, change.IsDefault)
	assert.Equal(t, "percent", change.Values["mode"])
	assert.True(t, state.Visible()["percent"])
	assert.False(t, state.Visible()["count"])

	change = state.Reset()
	assert.True(t, change.IsDefault)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_RequiredOnlyWhenVisible(t *testing.T) {
	schema := reductionSchema()

	assert.NoError(t, Validate(schema, model.Values{"mode": "count"}))

	err := Validate(schema, model.Values{"mode": "percent"})
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fe, ok := verrs.Field("percent")
	require.True(t, ok)
	assert.Equal(t, "A value for Percentage is required", fe.Message)

	err = Validate(schema, model.Values{"mode": "percent", "percent": ""})
	assert.Error(t, err)

	assert.NoError(t, Validate(schema, model.Values{"mode": "percent", "percent": 12.5}))
}

func TestValidate_TypeChecks(t *testing.T) {
	schema := reductionSchema()

	tests := []struct {
		name   string
		values model.Values
		field  string
	}{
		{"int not integral", model.Values{"count": 1.5}, "count"},
		{"int not numeric", model.Values{"count": "many"}, "count"},
		{"bool not bool", model.Values{"clamp_output": "yes"}, "clamp_output"},
		{"select unknown option", model.Values{"mode": "median"}, "mode"},
		{"string too long", model.Values{"label": "abcde"}, "label"},
		{"mapping non string", model.Values{"table_mapping": map[string]any{"age": 3.0}}, "table_mapping"},
		{"mapping bad json", model.Values{"table_mapping": "{"}, "table_mapping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(schema, tt.values)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			_, ok := verrs.Field(tt.field)
			assert.True(t, ok, "expected error on %s, got %v", tt.field, err)
		})
	}

	assert.NoError(t, Validate(schema, model.Values{"label": "abcd", "count": "7", "table_mapping": `{"age": "Age"}`}))
}

func TestNormalize(t *testing.T) {
	schema := reductionSchema()

	out := Normalize(schema, model.Values{
		"percent":       "150",
		"count":         "7",
		"clamp_output":  "true",
		"table_mapping": `{"age": "Age"}`,
		"mode":          "percent",
	})

	assert.Equal(t, 100.0, out["percent"])
	assert.Equal(t, int64(7), out["count"])
	assert.Equal(t, true, out["clamp_output"])
	assert.Equal(t, map[string]any{"age": "Age"}, out["table_mapping"])
}

// =============================================================================
// Projection
// =============================================================================

func TestProject(t *testing.T) {
	schema := reductionSchema()

	fields := Project(schema, model.Values{"mode": "percent", "percent": 20.0, "clamp_output": true})

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"mode", "percent", "clamp_output", "label", "table_mapping"}, names)
	assert.Equal(t, "Percentage", fields[0].Display)
	assert.Equal(t, "Percentage", fields[1].Label)
	assert.Equal(t, GlyphTrue, fields[2].Display)
	assert.Equal(t, "{}", fields[4].Display)
	for _, f := range fields {
		assert.False(t, f.Editable)
	}
}

func TestProject_UsesDefaultsForMissingValues(t *testing.T) {
	fields := Project(reductionSchema(), model.Values{"mode": "count"})

	byName := map[string]Field{}
	for _, f := range fields {
		byName[f.Name] = f
	}
	assert.Equal(t, 10.0, byName["count"].Value)
	assert.Equal(t, GlyphFalse, byName["clamp_output"].Display)
}

func TestProjectInline(t *testing.T) {
	fields := ProjectInline(reductionSchema(), model.Values{"mode": "count"}, "count")

	for _, f := range fields {
		assert.Equal(t, f.Name == "count", f.Editable, f.Name)
	}
}

func TestWidgetFor(t *testing.T) {
	assert.Equal(t, EditorNumber, WidgetFor(model.ParamInt).Editor)
	assert.Equal(t, "checked", WidgetFor(model.ParamBool).ValueProp)
	assert.True(t, WidgetFor(model.ParamFilepath).DirectoriesOnly)
	assert.False(t, WidgetFor(model.ParamFilename).DirectoriesOnly)
	assert.Equal(t, EditorJSON, WidgetFor(model.ParamStringMapping).Editor)
	assert.Equal(t, EditorText, WidgetFor("matrix").Editor)
}

func TestStringMapping(t *testing.T) {
	m, err := ParseStringMapping(`{"a": "b"}`)
	require.NoError(t, err)
	text, err := FormatStringMapping(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": "b"}`, text)

	_, err = ParseStringMapping(`{"a": 1}`)
	assert.Error(t, err)
}
