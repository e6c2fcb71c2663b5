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
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/brainage/bad-designer/pkg/model"
)

// fieldValidate checks single string values. Initialized in init().
var fieldValidate *validator.Validate

func init() {
	fieldValidate = validator.New()
	_ = fieldValidate.RegisterValidation("mapping", validateMapping)
}

// validateMapping accepts JSON objects whose values are all strings.
func validateMapping(fl validator.FieldLevel) bool {
	_, err := ParseStringMapping(fl.Field().String())
	return err == nil
}

// FieldError is one invalid value of a form.
type FieldError struct {
	Name    string
	Message string
}

func (e FieldError) Error() string {
	return e.Name + ": " + e.Message
}

// ValidationErrors collects every invalid value of a form. A form with
// validation errors is never submitted.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

// Field returns the error of the named parameter, if any.
func (e ValidationErrors) Field(name string) (FieldError, bool) {
	for _, fe := range e {
		if fe.Name == name {
			return fe, true
		}
	}
	return FieldError{}, false
}

// Validate checks the values of every visible parameter.
//
// # Description
//
// Values are merged over the defaults first. Hidden parameters are not
// checked. A required parameter fails when its value is missing, null or
// the empty string, with the message "A value for <label> is required".
// Type checks follow the parameter type: integral numbers for int, numbers
// for float, booleans for bool, one of the options for select, strings
// shorter than max_length for the string types, JSON string mappings for
// string_mapping. Numeric bounds are not errors; see Normalize.
//
// # Outputs
//
//   - error: ValidationErrors, or nil when every value is acceptable.
func Validate(schema *model.FormSchema, values model.Values) error {
	if schema == nil {
		return nil
	}
	merged := MergedValues(schema, values)

	var errs ValidationErrors
	for _, p := range schema.Parameters {
		if !IsVisible(p, merged) {
			continue
		}
		v := merged[p.Name]
		if isEmpty(v) {
			if p.Required {
				errs = append(errs, FieldError{
					Name:    p.Name,
					Message: fmt.Sprintf("A value for %s is required", p.Label()),
				})
			}
			continue
		}
		if msg := checkType(p, v); msg != "" {
			errs = append(errs, FieldError{Name: p.Name, Message: msg})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return fieldValidate.Var(s, "required") != nil
	}
	return false
}

func checkType(p model.Parameter, v any) string {
	switch p.Type {
	case model.ParamInt:
		f, ok := toNumber(v)
		if !ok || f != math.Trunc(f) {
			return fmt.Sprintf("%s: expected integer, got '%v'", p.Label(), v)
		}
	case model.ParamFloat:
		if _, ok := toNumber(v); !ok {
			return fmt.Sprintf("%s: expected number, got '%v'", p.Label(), v)
		}
	case model.ParamBool:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("%s: expected true or false, got '%v'", p.Label(), v)
		}
	case model.ParamSelect:
		if _, ok := p.OptionName(v); !ok {
			values := make([]string, len(p.Options))
			for i, o := range p.Options {
				values[i] = fmt.Sprintf("'%v'", o.Value)
			}
			return fmt.Sprintf("%s: unexpected value '%v', expect one of %s", p.Label(), v, strings.Join(values, ", "))
		}
	case model.ParamString, model.ParamText, model.ParamFilepath, model.ParamFilename:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("%s: expected text, got '%v'", p.Label(), v)
		}
		if p.MaxLength != nil && *p.MaxLength > 0 {
			if fieldValidate.Var(s, fmt.Sprintf("lt=%d", *p.MaxLength)) != nil {
				return fmt.Sprintf("%s: value too long (%d, expected less than %d)", p.Label(), len([]rune(s)), *p.MaxLength)
			}
		}
	case model.ParamStringMapping:
		switch m := v.(type) {
		case string:
			if fieldValidate.Var(m, "mapping") != nil {
				return fmt.Sprintf("%s: expected a JSON object of strings", p.Label())
			}
		case map[string]any:
			for k, val := range m {
				if _, ok := val.(string); !ok {
					return fmt.Sprintf("%s: value of %q is not a string", p.Label(), k)
				}
			}
		case map[string]string:
		default:
			return fmt.Sprintf("%s: expected a mapping, got '%v'", p.Label(), v)
		}
	}
	return ""
}

func toNumber(v any) (float64, bool) {
	if f, ok := asFloat(v); ok {
		return f, !math.IsNaN(f)
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

// Normalize converts values to their parameter types and clamps numbers
// into [min_value, max_value]. Values that do not convert are left as they
// are for Validate to report.
func Normalize(schema *model.FormSchema, values model.Values) model.Values {
	out := values.Clone()
	if schema == nil || out == nil {
		return out
	}
	for _, p := range schema.Parameters {
		v, ok := out[p.Name]
		if !ok || v == nil {
			continue
		}
		switch p.Type {
		case model.ParamInt, model.ParamFloat:
			f, ok := toNumber(v)
			if !ok {
				continue
			}
			if p.Type == model.ParamInt && f != math.Trunc(f) {
				continue
			}
			if p.MinValue != nil && f < *p.MinValue {
				f = *p.MinValue
			}
			if p.MaxValue != nil && f > *p.MaxValue {
				f = *p.MaxValue
			}
			if p.Type == model.ParamInt {
				out[p.Name] = int64(f)
			} else {
				out[p.Name] = f
			}
		case model.ParamBool:
			if s, ok := v.(string); ok {
				if b, err := strconv.ParseBool(s); err == nil {
					out[p.Name] = b
				}
			}
		case model.ParamStringMapping:
			if s, ok := v.(string); ok {
				if m, err := ParseStringMapping(s); err == nil {
					out[p.Name] = m
				}
			}
		case model.ParamSelect:
			for _, o := range p.Options {
				if fmt.Sprint(o.Value) == fmt.Sprint(v) {
					out[p.Name] = o.Value
					break
				}
			}
		}
	}
	return out
}
