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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brainage/bad-designer/pkg/modgraph"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/pipeline"
	"github.com/brainage/bad-designer/pkg/push"
	"github.com/brainage/bad-designer/pkg/store"
)

func newPreviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview the inputs and results of analysis pipelines",
	}
	cmd.AddCommand(
		newPreviewSourceCmd(a),
		newPreviewResultCmd(a),
		newPreviewReductionCmd(a),
	)
	return cmd
}

// sourceModule returns the source module of a loaded analysis.
func sourceModule(ctrl *pipeline.Controller) (model.Module, error) {
	pl, ok := ctrl.Pipeline()
	if !ok {
		return model.Module{}, pipeline.ErrNotLoaded
	}
	for _, m := range pl.Modules {
		if m.Name == model.SourceModuleName {
			return m, nil
		}
	}
	return model.Module{}, errors.New("analysis has no source module")
}

func newPreviewSourceCmd(a *app) *cobra.Command {
	var (
		mapping []string
		save    bool
	)
	cmd := &cobra.Command{
		Use:   "source <uuid> [key=value...]",
		Short: "Resolve the files and attributes the source module would read",
		Long: `Resolve the files and attributes the source module of an analysis would
read with the given parameter values. Values not given keep their stored
value. With --save the values are stored on the module afterwards.`,
		Example: `  badctl preview source 5f0c... pattern='sub-*/anat/*.nii.gz'
  badctl preview source 5f0c... --mapping age=Age --mapping sex=Sex`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := a.loadController(ctx, model.KindAnalysis, args[0])
			if err != nil {
				return reported(err)
			}
			defer ctrl.Close()

			src, err := sourceModule(ctrl)
			if err != nil {
				return err
			}
			values, err := editValues(src.Form, src.ParameterValues, args[1:])
			if err != nil {
				return a.printValidation(err)
			}
			if len(mapping) > 0 {
				m, err := parseFilters(mapping)
				if err != nil {
					return err
				}
				attrs := make(map[string]any, len(m))
				for k, v := range m {
					attrs[k] = v
				}
				values[model.TableMappingParam] = attrs
			}

			var editor *modgraph.Editor
			if save {
				if editor, err = ctrl.Editor(); err != nil {
					return err
				}
				if err := editor.BeginEdit(src.UUID); err != nil {
					return err
				}
			}

			ctrl.RequestSourcePreview(ctx, values)
			preview, _ := ctrl.CurrentSourcePreview()
			a.out.SourcePreview(preview)

			if editor != nil {
				if err := editor.CommitEdit(ctx, values); err != nil {
					return remoteErr(err)
				}
			}
			if preview != nil && preview.Failed() {
				return reported(errors.New(preview.Error))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&mapping, "mapping", nil, "attribute=column mapping of the attribute table, repeatable")
	cmd.Flags().BoolVar(&save, "save", false, "store the values on the source module")
	return cmd
}

func newPreviewResultCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "result <uuid> [result-uuid]",
		Short: "Show the average result of an analysis or a single result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.loadController(cmd.Context(), model.KindAnalysis, args[0])
			if err != nil {
				return reported(err)
			}
			defer ctrl.Close()

			if len(args) == 2 {
				r, err := ctrl.ShowResult(cmd.Context(), args[1])
				if err != nil {
					return reported(err)
				}
				a.out.Map("Result", r)
				return nil
			}
			avg, ok := ctrl.FetchedAverageResult()
			if !ok || avg == nil {
				a.out.Muted("no average result")
				return nil
			}
			a.out.Map("Average result", avg)
			return nil
		},
	}
}

func newPreviewReductionCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "reduction <uuid>",
		Short: "Wait for the reduction preview of an analysis on the push channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pc, err := a.pushClient()
			if err != nil {
				return err
			}
			ctrl, err := a.controller(a.cfg, model.KindAnalysis, args[0], pc)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			key := store.PushKey{Plugin: model.KindAnalysis.Plugin(), UUID: args[0], Topic: model.ReductionPreviewTopic}
			arrived := make(chan struct{}, 1)
			unobserve := a.store.Observe(func(ch store.Change) {
				if ch.Topic == store.TopicPush && ch.Key == key.String() {
					select {
					case arrived <- struct{}{}:
					default:
					}
				}
			})
			defer unobserve()

			go func() { _ = pc.Run(ctx) }()
			if err := ctrl.Load(ctx); err != nil {
				return reported(err)
			}

			select {
			case <-arrived:
			case <-ctx.Done():
				return fmt.Errorf("no reduction preview within %s", timeout)
			}
			data, _ := ctrl.ReductionPreview()
			if m, ok := data.(map[string]any); ok {
				a.out.Map("Reduction preview", m)
			} else {
				a.out.KeyValue("reduction preview", data)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the preview")
	return cmd
}

// pushClient creates a push client for the configured server.
func (a *app) pushClient() (*push.Client, error) {
	url := a.cfg.Server.WSURL
	if url == "" {
		url = a.cfg.Server.APIURL
	}
	return push.New(push.Config{
		URL:               url,
		Store:             a.store,
		Logger:            a.logger,
		Metrics:           a.metrics,
		ReconnectInterval: a.cfg.Sync.ReconnectInterval,
	})
}
