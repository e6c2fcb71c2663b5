// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"github.com/brainage/bad-designer/pkg/modgraph"
)

// Editor returns the module editor of the pipeline, creating it on first
// use.
//
// # Description
//
// The editor spans every module section of the pipeline kind, so that the
// edit lock covers the whole pipeline. Its structural changes go through
// UpdateModules, its edit and form hooks drive the source preview, and
// every list the store applies is handed back to it.
//
// # Outputs
//
//   - *modgraph.Editor: The editor.
//   - error: ErrNotLoaded before the first successful Load.
func (c *Controller) Editor() (*modgraph.Editor, error) {
	c.mu.Lock()
	if c.editor != nil {
		e := c.editor
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	p, ok := c.Pipeline()
	if !ok {
		return nil, ErrNotLoaded
	}

	var order modgraph.GroupOrder
	for _, s := range modgraph.SectionsFor(c.kind) {
		order = append(order, s.Order...)
	}
	e := modgraph.NewEditor(p.Modules, modgraph.EditorConfig{
		Order:                order,
		Limits:               c.limits,
		Confirm:              c.confirm,
		OnChange:             c.UpdateModules,
		OnEditedModuleChange: c.EditedModuleChanged,
		OnModuleFormChange:   c.ModuleFormChanged,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editor == nil {
		c.editor = e
	}
	return c.editor, nil
}
