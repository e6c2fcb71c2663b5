// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brainage/bad-designer/pkg/form"
	"github.com/brainage/bad-designer/pkg/modgraph"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/pipeline"
)

func newModuleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "module",
		Aliases: []string{"m"},
		Short:   "Edit the modules of a pipeline",
	}
	cmd.AddCommand(
		newModuleListCmd(a),
		newModuleAvailableCmd(a),
		newModuleShowCmd(a),
		newModuleAddCmd(a),
		newModuleRemoveCmd(a),
		newModuleCopyCmd(a),
		newModuleMoveCmd(a),
		newModuleEditCmd(a),
		newModuleFilesCmd(a),
	)
	return cmd
}

// withEditor runs fn with the module editor of the pipeline named by the
// first two arguments.
func (a *app) withEditor(cmd *cobra.Command, args []string, fn func(*pipeline.Controller, *modgraph.Editor) error) error {
	return a.withController(cmd, args, func(ctrl *pipeline.Controller) error {
		editor, err := ctrl.Editor()
		if err != nil {
			return err
		}
		return fn(ctrl, editor)
	})
}

// printModules prints the module groups after a change.
func (a *app) printModules(ctrl *pipeline.Controller, editor *modgraph.Editor) {
	pl, _ := ctrl.Pipeline()
	editing, _, _ := editor.Editing()
	a.out.Modules(editor.Groups(), pl.LatestProcessData, editing)
}

func findModule(ctrl *pipeline.Controller, id string) (model.Module, error) {
	pl, ok := ctrl.Pipeline()
	if !ok {
		return model.Module{}, pipeline.ErrNotLoaded
	}
	m, ok := pl.ModuleByUUID(id)
	if !ok {
		return model.Module{}, fmt.Errorf("%w: %s", modgraph.ErrUnknownModule, id)
	}
	return m, nil
}

func newModuleListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <kind> <uuid>",
		Short: "List the modules of a pipeline by group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEditor(cmd, args, func(ctrl *pipeline.Controller, editor *modgraph.Editor) error {
				a.printModules(ctrl, editor)
				return nil
			})
		},
	}
}

func newModuleAvailableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "available <kind> <uuid> [group]",
		Short: "List the modules that can be added to a pipeline",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, args, func(ctrl *pipeline.Controller) error {
				pl, _ := ctrl.Pipeline()
				for _, section := range modgraph.SectionsFor(ctrl.Kind()) {
					for _, rank := range section.Order {
						if len(args) == 3 && args[2] != rank.Name {
							continue
						}
						a.out.Title(rank.Name)
						for _, entry := range modgraph.Catalog(pl.AvailableModules, rank.Name) {
							for _, name := range entry.Modules {
								a.out.KeyValue(entry.Path, name)
							}
						}
					}
				}
				return nil
			})
		},
	}
}

func newModuleShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind> <uuid> <module>",
		Short: "Show the parameters of a module",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, args, func(ctrl *pipeline.Controller) error {
				m, err := findModule(ctrl, args[2])
				if err != nil {
					return err
				}
				a.out.Title(m.Name)
				if m.Help != "" {
					a.out.Muted(m.Help)
				}
				a.out.Fields(form.Project(m.Form, m.ParameterValues))
				return nil
			})
		},
	}
}

func newModuleAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <kind> <uuid> <group> <name>",
		Short: "Add a module to a group",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEditor(cmd, args, func(ctrl *pipeline.Controller, editor *modgraph.Editor) error {
				group, name := args[2], args[3]
				pl, _ := ctrl.Pipeline()
				if len(pl.AvailableModules) > 0 && !modgraph.Available(pl.AvailableModules, group, name) {
					return fmt.Errorf("module %q is not available in group %s", name, group)
				}
				if err := editor.Add(cmd.Context(), group, name); err != nil {
					return remoteErr(err)
				}
				a.printModules(ctrl, editor)
				return nil
			})
		},
	}
}

func newModuleRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <kind> <uuid> <module>",
		Short: "Remove a module after confirmation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEditor(cmd, args, func(ctrl *pipeline.Controller, editor *modgraph.Editor) error {
				removed, err := editor.Remove(cmd.Context(), args[2])
				if err != nil {
					return remoteErr(err)
				}
				if !removed {
					a.out.Muted("Remove cancelled")
					return nil
				}
				a.printModules(ctrl, editor)
				return nil
			})
		},
	}
}

func newModuleCopyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <kind> <uuid> <module>",
		Short: "Append a copy of a module to its group",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEditor(cmd, args, func(ctrl *pipeline.Controller, editor *modgraph.Editor) error {
				if err := editor.Copy(cmd.Context(), args[2]); err != nil {
					return remoteErr(err)
				}
				a.printModules(ctrl, editor)
				return nil
			})
		},
	}
}

func newModuleMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move <kind> <uuid> <module> <before-module>",
		Short: "Move a module in front of another module of its group",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEditor(cmd, args, func(ctrl *pipeline.Controller, editor *modgraph.Editor) error {
				if err := editor.Reorder(cmd.Context(), args[2], args[3]); err != nil {
					return remoteErr(err)
				}
				a.printModules(ctrl, editor)
				return nil
			})
		},
	}
}

func newModuleEditCmd(a *app) *cobra.Command {
	var param string
	cmd := &cobra.Command{
		Use:   "edit <kind> <uuid> <module> key=value...",
		Short: "Change parameter values of a module",
		Example: `  badctl module edit preprocess 5f0c... 9a1b... fwhm=8 normalize=true
  badctl module edit preprocess 5f0c... 9a1b... --param fwhm fwhm=6`,
		Args: cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEditor(cmd, args, func(ctrl *pipeline.Controller, editor *modgraph.Editor) error {
				m, err := findModule(ctrl, args[2])
				if err != nil {
					return err
				}
				assignments := args[3:]
				if param != "" {
					changes, err := parseAssignments(m.Form, assignments)
					if err != nil {
						return err
					}
					if _, ok := changes[param]; !ok || len(changes) != 1 {
						return fmt.Errorf("--param %s allows only %s=value", param, param)
					}
					err = editor.BeginEditParameter(m.UUID, param)
					if err != nil {
						return err
					}
				} else if err := editor.BeginEdit(m.UUID); err != nil {
					return err
				}

				values, err := editValues(m.Form, m.ParameterValues, assignments)
				if err != nil {
					editor.CancelEdit()
					return a.printValidation(err)
				}
				if err := editor.FormChanged(values); err != nil {
					return err
				}
				if err := editor.CommitEdit(cmd.Context(), values); err != nil {
					return remoteErr(err)
				}
				a.out.Fields(form.Project(m.Form, values))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&param, "param", "", "edit a single parameter inline")
	return cmd
}

func newModuleFilesCmd(a *app) *cobra.Command {
	var source bool
	cmd := &cobra.Command{
		Use:   "files <kind> <uuid> <module>",
		Short: "List the files a module wrote in the latest run",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEditor(cmd, args, func(ctrl *pipeline.Controller, editor *modgraph.Editor) error {
				if _, err := editor.ToggleFiles(args[2]); err != nil {
					return err
				}
				files, err := ctrl.ModuleObjects(cmd.Context(), args[2], source)
				if err != nil {
					return err
				}
				pl, _ := ctrl.Pipeline()
				if pl.LatestProcessData == nil {
					a.out.Muted("pipeline has not run yet")
					return nil
				}
				for _, f := range files {
					fmt.Fprintln(a.out.Out, f)
				}
				a.out.Muted(fmt.Sprintf("%d of %d files", len(files), editor.ObjectCount(args[2], pl.LatestProcessData)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&source, "source", false, "list the files the module read instead")
	return cmd
}
