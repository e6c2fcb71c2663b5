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

	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/form"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/pipeline"
	"github.com/brainage/bad-designer/pkg/ux"
)

func newPipelineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pipeline",
		Aliases: []string{"p"},
		Short:   "List, edit and run preprocessing and analysis pipelines",
	}
	cmd.AddCommand(
		newPipelineListCmd(a),
		newPipelineShowCmd(a),
		newPipelineCreateCmd(a),
		newPipelineRunCmd(a),
		newPipelineStopCmd(a),
		newPipelineCopyCmd(a),
		newPipelineDeleteCmd(a),
		newPipelineSetCmd(a),
		newPipelineWatchCmd(a),
	)
	return cmd
}

// withController runs fn on the loaded pipeline named by args[0] (kind)
// and args[1] (uuid).
func (a *app) withController(cmd *cobra.Command, args []string, fn func(*pipeline.Controller) error) error {
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	ctrl, err := a.loadController(cmd.Context(), kind, args[1])
	if err != nil {
		return reported(err)
	}
	defer ctrl.Close()
	return fn(ctrl)
}

func newPipelineListCmd(a *app) *cobra.Command {
	var f tableFlags
	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List the pipelines of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			return a.showTable(cmd, api.TablePath(kind), &f)
		},
	}
	f.register(cmd)
	return cmd
}

func newPipelineShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind> <uuid>",
		Short: "Show a pipeline, its modules and its latest run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, args, a.showPipeline)
		},
	}
}

// showPipeline prints the header, module groups, forms and results of a
// loaded pipeline.
func (a *app) showPipeline(ctrl *pipeline.Controller) error {
	pl, ok := ctrl.Pipeline()
	if !ok {
		return pipeline.ErrNotLoaded
	}
	a.out.Pipeline(ctrl.Kind(), pl, ctrl.Status(), ctrl.Progress())

	editor, err := ctrl.Editor()
	if err != nil {
		return err
	}
	editing, _, _ := editor.Editing()
	a.out.Modules(editor.Groups(), pl.LatestProcessData, editing)

	if pl.SeparationForm != nil {
		a.out.Title("Separation")
		a.out.Fields(form.Project(pl.SeparationForm, pl.SeparationValues))
	}
	if pl.AnalysisForm != nil {
		a.out.Title("Analysis")
		a.out.Fields(form.Project(pl.AnalysisForm, pl.AnalysisValues))
	}
	if ctrl.Kind() == model.KindAnalysis {
		if avg, ok := ctrl.FetchedAverageResult(); ok && avg != nil {
			a.out.Map("Average result", avg)
		}
	}
	return nil
}

func newPipelineCreateCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <kind> <name>",
		Short: "Create an empty pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			p, err := pipeline.Create(cmd.Context(), a.client, a.store, a.tables, kind, args[1], description)
			if err != nil && p.UUID == "" {
				return err
			}
			a.out.Success(pipeline.MsgCreated)
			a.out.KeyValue("uuid", p.UUID)
			a.out.Muted(a.out.Icon(ux.IconArrow) + " " + kind.ViewPath(p.UUID))
			if err != nil {
				a.out.Warning(err.Error())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "pipeline description")
	return cmd
}

func newPipelineRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <kind> <uuid>",
		Short: "Queue a run of a pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, args, func(ctrl *pipeline.Controller) error {
				if !ctrl.Status().CanStart {
					return fmt.Errorf("pipeline is %s and cannot be started", ctrl.Status().State)
				}
				if err := ctrl.Run(cmd.Context()); err != nil {
					return reported(err)
				}
				a.out.KeyValue("status", a.out.StatusText(ctrl.Status()))
				return nil
			})
		},
	}
}

func newPipelineStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <kind> <uuid>",
		Short: "Stop the running process of a pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, args, func(ctrl *pipeline.Controller) error {
				if !ctrl.Status().CanStop {
					return fmt.Errorf("pipeline is %s and cannot be stopped", ctrl.Status().State)
				}
				return reported(ctrl.Stop(cmd.Context()))
			})
		},
	}
}

func newPipelineCopyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <kind> <uuid>",
		Short: "Duplicate a pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, args, func(ctrl *pipeline.Controller) error {
				id, err := ctrl.Copy(cmd.Context())
				if err != nil {
					return reported(err)
				}
				a.out.KeyValue("uuid", id)
				return nil
			})
		},
	}
}

func newPipelineDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <uuid>",
		Short: "Delete a pipeline after confirmation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, args, func(ctrl *pipeline.Controller) error {
				deleted, err := ctrl.Delete(cmd.Context())
				if err != nil {
					return remoteErr(err)
				}
				if !deleted {
					a.out.Muted("Delete cancelled")
				}
				return nil
			})
		},
	}
}

func newPipelineSetCmd(a *app) *cobra.Command {
	var (
		name        string
		description string
		separation  []string
		analysis    []string
	)
	cmd := &cobra.Command{
		Use:   "set <kind> <uuid>",
		Short: "Change the name, description or form values of a pipeline",
		Example: `  badctl pipeline set analysis 5f0c... --name "BrainAGE v2"
  badctl pipeline set analysis 5f0c... --separation folds=5 --analysis model=svr`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd, args, func(ctrl *pipeline.Controller) error {
				pl, _ := ctrl.Pipeline()
				patch := map[string]any{}
				if cmd.Flags().Changed("name") {
					patch["name"] = name
				}
				if cmd.Flags().Changed("description") {
					patch["description"] = description
				}
				if len(separation) > 0 {
					values, err := editValues(pl.SeparationForm, pl.SeparationValues, separation)
					if err != nil {
						return a.printValidation(err)
					}
					patch["separation_values"] = values
				}
				if len(analysis) > 0 {
					values, err := editValues(pl.AnalysisForm, pl.AnalysisValues, analysis)
					if err != nil {
						return a.printValidation(err)
					}
					patch["analysis_values"] = values
				}
				if len(patch) == 0 {
					return fmt.Errorf("nothing to change")
				}
				if err := ctrl.Update(cmd.Context(), patch); err != nil {
					return reported(err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new pipeline name")
	cmd.Flags().StringVar(&description, "description", "", "new pipeline description")
	cmd.Flags().StringArrayVar(&separation, "separation", nil, "separation form value key=value, repeatable")
	cmd.Flags().StringArrayVar(&analysis, "analysis", nil, "analysis form value key=value, repeatable")
	return cmd
}
