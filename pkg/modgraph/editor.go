// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package modgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/brainage/bad-designer/pkg/model"
)

var (
	// ErrEditLocked is returned when another module is being edited.
	ErrEditLocked = errors.New("another module is being edited")

	// ErrNotEditing is returned when committing without an active edit.
	ErrNotEditing = errors.New("no module is being edited")

	// ErrGroupLimit is returned when a group already holds its maximum
	// number of modules.
	ErrGroupLimit = errors.New("module group limit reached")

	// ErrUnknownModule is returned for an identity not in the list.
	ErrUnknownModule = errors.New("unknown module")

	// ErrInvalidMove is returned for a reorder across groups or onto itself.
	ErrInvalidMove = errors.New("modules can only be moved within their group")

	// ErrFilesWhileEditing is returned when opening the files overlay of
	// the module being edited.
	ErrFilesWhileEditing = errors.New("files are hidden while editing")
)

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm confirms every prompt.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

// EditorConfig wires an Editor to its surroundings.
type EditorConfig struct {
	Order  GroupOrder
	Limits Limits

	// Confirm is asked before a module is removed. Default: AlwaysConfirm.
	Confirm Confirmer

	// OnChange receives every structurally changed list. An error rolls
	// the editor back to the previous list.
	OnChange func(ctx context.Context, modules []model.Module) error

	// OnEditedModuleChange is told when an edit starts (the module) or
	// ends (nil).
	OnEditedModuleChange func(module *model.Module)

	// OnModuleFormChange receives every value change of the edited module.
	OnModuleFormChange func(module model.Module, values model.Values)
}

// Editor mediates all structural edits of a pipeline's module list.
//
// # Description
//
// The editor owns the edit focus: at most one module is being edited at a
// time, and every other module loses its edit affordance until that edit
// is committed or cancelled. Structural changes produce a whole new list
// that is handed to OnChange.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Callbacks run without the
// editor's lock held.
type Editor struct {
	cfg EditorConfig

	mu        sync.Mutex
	modules   []model.Module
	editing   *string
	param     string
	filesOpen map[string]bool
}

// NewEditor creates an editor over a module list.
func NewEditor(modules []model.Module, cfg EditorConfig) *Editor {
	if cfg.Confirm == nil {
		cfg.Confirm = AlwaysConfirm
	}
	if cfg.Order == nil {
		cfg.Order = DefaultOrder
	}
	return &Editor{
		cfg:       cfg,
		modules:   model.CloneModules(modules),
		filesOpen: map[string]bool{},
	}
}

// Modules returns a copy of the current list.
func (e *Editor) Modules() []model.Module {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.CloneModules(e.modules)
}

// SetModules replaces the list with the server's version. An edit of a
// module that no longer exists ends.
func (e *Editor) SetModules(modules []model.Module) {
	e.mu.Lock()
	e.modules = model.CloneModules(modules)
	ended := false
	if e.editing != nil {
		if _, ok := find(e.modules, *e.editing); !ok {
			e.editing = nil
			e.param = ""
			ended = true
		}
	}
	e.mu.Unlock()

	if ended {
		e.notifyEdited(nil)
	}
}

// Groups returns the displayed groups.
func (e *Editor) Groups() []Group {
	e.mu.Lock()
	defer e.mu.Unlock()
	return GroupAndOrder(model.CloneModules(e.modules), e.cfg.Order)
}

// CanAdd reports whether the add affordance of a group is enabled.
func (e *Editor) CanAdd(group string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Limits.CanAdd(group, e.modules)
}

// Add appends a stub module to a group.
//
// # Outputs
//
//   - error: ErrGroupLimit if the group is full, or the OnChange error.
func (e *Editor) Add(ctx context.Context, group, name string) error {
	e.mu.Lock()
	if !e.cfg.Limits.CanAdd(group, e.modules) {
		max := e.cfg.Limits[group]
		e.mu.Unlock()
		return fmt.Errorf("%w: limit of %d reached for %s", ErrGroupLimit, max, group)
	}
	prev := e.modules
	next := AddModule(e.modules, name)
	next[len(next)-1].Group = []string{group}
	e.modules = next
	e.mu.Unlock()

	return e.commit(ctx, prev, next)
}

// Remove drops a module after confirmation.
//
// # Outputs
//
//   - bool: True if the module was removed, false if declined.
//   - error: ErrUnknownModule, a confirmation error or the OnChange error.
func (e *Editor) Remove(ctx context.Context, uuid string) (bool, error) {
	e.mu.Lock()
	idx, ok := find(e.modules, uuid)
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownModule, uuid)
	}
	name := e.modules[idx].Name
	e.mu.Unlock()

	confirmed, err := e.cfg.Confirm.Confirm(ctx, fmt.Sprintf("Delete module %s?", name))
	if err != nil || !confirmed {
		return false, err
	}

	e.mu.Lock()
	prev := e.modules
	next := RemoveModule(e.modules, uuid)
	e.modules = next
	delete(e.filesOpen, uuid)
	e.mu.Unlock()

	if err := e.commit(ctx, prev, next); err != nil {
		return false, err
	}
	return true, nil
}

// Copy appends a copy of a module.
func (e *Editor) Copy(ctx context.Context, uuid string) error {
	e.mu.Lock()
	idx, ok := find(e.modules, uuid)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownModule, uuid)
	}
	group := e.modules[idx].PrimaryGroup()
	if !e.cfg.Limits.CanAdd(group, e.modules) {
		e.mu.Unlock()
		return fmt.Errorf("%w: limit of %d reached for %s", ErrGroupLimit, e.cfg.Limits[group], group)
	}
	prev := e.modules
	next := CopyModule(e.modules, uuid)
	next[len(next)-1].Group = append([]string(nil), e.modules[idx].Group...)
	e.modules = next
	e.mu.Unlock()

	return e.commit(ctx, prev, next)
}

// Reorder moves source in front of target within their common group.
func (e *Editor) Reorder(ctx context.Context, sourceUUID, targetUUID string) error {
	e.mu.Lock()
	if !CanReorder(e.modules, sourceUUID, targetUUID) {
		e.mu.Unlock()
		return ErrInvalidMove
	}
	prev := e.modules
	next := Reorder(e.modules, sourceUUID, targetUUID)
	e.modules = next
	e.mu.Unlock()

	return e.commit(ctx, prev, next)
}

// =============================================================================
// Edit Lock
// =============================================================================

// Editing returns the module being edited and, for a single-parameter
// edit, the parameter name.
func (e *Editor) Editing() (uuid, param string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.editing == nil {
		return "", "", false
	}
	return *e.editing, e.param, true
}

// CanEdit reports whether the edit affordance of a module is enabled:
// nothing is being edited, or this module is.
func (e *Editor) CanEdit(uuid string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editing == nil || *e.editing == uuid
}

// BeginEdit puts a module into editing mode.
func (e *Editor) BeginEdit(uuid string) error {
	return e.begin(uuid, "")
}

// BeginEditParameter edits a single parameter of a module inline.
func (e *Editor) BeginEditParameter(uuid, param string) error {
	return e.begin(uuid, param)
}

func (e *Editor) begin(uuid, param string) error {
	e.mu.Lock()
	idx, ok := find(e.modules, uuid)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownModule, uuid)
	}
	if e.editing != nil && *e.editing != uuid {
		e.mu.Unlock()
		return ErrEditLocked
	}
	id := uuid
	e.editing = &id
	e.param = param
	e.filesOpen[uuid] = false
	module := e.modules[idx].Clone()
	e.mu.Unlock()

	e.notifyEdited(&module)
	return nil
}

// FormChanged forwards a value change of the edited module.
func (e *Editor) FormChanged(values model.Values) error {
	e.mu.Lock()
	if e.editing == nil {
		e.mu.Unlock()
		return ErrNotEditing
	}
	idx, _ := find(e.modules, *e.editing)
	module := e.modules[idx].Clone()
	cb := e.cfg.OnModuleFormChange
	e.mu.Unlock()

	if cb != nil {
		cb(module, values.Clone())
	}
	return nil
}

// CommitEdit merges the submitted values into the edited module's
// parameter values, ends the edit and hands the new list to OnChange.
// Keys not submitted keep their previous value.
func (e *Editor) CommitEdit(ctx context.Context, values model.Values) error {
	e.mu.Lock()
	if e.editing == nil {
		e.mu.Unlock()
		return ErrNotEditing
	}
	idx, ok := find(e.modules, *e.editing)
	if !ok {
		e.editing = nil
		e.param = ""
		e.mu.Unlock()
		return ErrUnknownModule
	}
	updated := e.modules[idx].Clone()
	if updated.ParameterValues == nil {
		updated.ParameterValues = model.Values{}
	}
	for k, v := range values.Clone() {
		updated.ParameterValues[k] = v
	}
	prev := e.modules
	next := ReplaceModule(e.modules, updated)
	e.modules = next
	e.editing = nil
	e.param = ""
	e.mu.Unlock()

	e.notifyEdited(nil)
	return e.commit(ctx, prev, next)
}

// CancelEdit ends the edit without changes.
func (e *Editor) CancelEdit() {
	e.mu.Lock()
	was := e.editing != nil
	e.editing = nil
	e.param = ""
	e.mu.Unlock()

	if was {
		e.notifyEdited(nil)
	}
}

// =============================================================================
// Files Overlay
// =============================================================================

// ToggleFiles flips the processed-files overlay of a module. The overlay
// is unavailable while that module is being edited.
func (e *Editor) ToggleFiles(uuid string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := find(e.modules, uuid); !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownModule, uuid)
	}
	if e.editing != nil && *e.editing == uuid {
		return false, ErrFilesWhileEditing
	}
	e.filesOpen[uuid] = !e.filesOpen[uuid]
	return e.filesOpen[uuid], nil
}

// FilesOpen reports whether the files overlay of a module is shown.
func (e *Editor) FilesOpen(uuid string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.editing != nil && *e.editing == uuid {
		return false
	}
	return e.filesOpen[uuid]
}

// =============================================================================
// Internal
// =============================================================================

func (e *Editor) commit(ctx context.Context, prev, next []model.Module) error {
	if e.cfg.OnChange == nil {
		return nil
	}
	if err := e.cfg.OnChange(ctx, model.CloneModules(next)); err != nil {
		e.mu.Lock()
		e.modules = prev
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *Editor) notifyEdited(module *model.Module) {
	if e.cfg.OnEditedModuleChange != nil {
		e.cfg.OnEditedModuleChange(module)
	}
}

// ObjectCount is the count shown on a module's files badge for a run.
func (e *Editor) ObjectCount(uuid string, run *model.ProcessRun) int {
	return model.ModuleObjectCount(run, uuid)
}
