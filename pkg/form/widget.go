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

import "github.com/brainage/bad-designer/pkg/model"

// Editor names the input widget that edits a parameter.
type Editor string

const (
	EditorNumber   Editor = "number"
	EditorText     Editor = "text"
	EditorTextArea Editor = "textarea"
	EditorToggle   Editor = "toggle"
	EditorSelect   Editor = "select"
	EditorPath     Editor = "path"
	EditorJSON     Editor = "json"
)

// Widget describes how to edit one parameter type.
type Widget struct {
	Editor Editor

	// ValueProp is the widget property carrying the value: "checked" for
	// toggles, "value" for everything else.
	ValueProp string

	// DirectoriesOnly restricts a path picker to directories.
	DirectoriesOnly bool
}

// WidgetFor maps a parameter type to its editor. Unknown types get a plain
// text input.
func WidgetFor(t model.ParamType) Widget {
	switch t {
	case model.ParamInt, model.ParamFloat:
		return Widget{Editor: EditorNumber, ValueProp: "value"}
	case model.ParamString:
		return Widget{Editor: EditorText, ValueProp: "value"}
	case model.ParamText:
		return Widget{Editor: EditorTextArea, ValueProp: "value"}
	case model.ParamBool:
		return Widget{Editor: EditorToggle, ValueProp: "checked"}
	case model.ParamSelect:
		return Widget{Editor: EditorSelect, ValueProp: "value"}
	case model.ParamFilepath:
		return Widget{Editor: EditorPath, ValueProp: "value", DirectoriesOnly: true}
	case model.ParamFilename:
		return Widget{Editor: EditorPath, ValueProp: "value"}
	case model.ParamStringMapping:
		return Widget{Editor: EditorJSON, ValueProp: "value"}
	default:
		return Widget{Editor: EditorText, ValueProp: "value"}
	}
}
