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
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/model"
)

// browseNamespace is the listing namespace of `files browse`.
const browseNamespace = "cli"

func newFilesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "files",
		Aliases: []string{"f"},
		Short:   "Browse input files and inspect images",
	}
	cmd.AddCommand(
		newFilesBrowseCmd(a),
		newFilesTableCmd(a),
		newFilesMetaCmd(a),
		newFilesVolumeCmd(a),
		newFilesRenderCmd(a),
	)
	return cmd
}

func newFilesBrowseCmd(a *app) *cobra.Command {
	var (
		recursive bool
		expand    []string
		up        bool
	)
	cmd := &cobra.Command{
		Use:   "browse [path]",
		Short: "List a directory below the data root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			b := a.browser()
			if _, err := b.List(cmd.Context(), browseNamespace, path, recursive); err != nil {
				return fmt.Errorf("browse %s: %w", path, err)
			}
			if up {
				if _, err := b.Up(cmd.Context(), browseNamespace); err != nil {
					return fmt.Errorf("browse parent of %s: %w", path, err)
				}
			}
			for _, dir := range expand {
				if _, err := b.Expand(cmd.Context(), browseNamespace, dir); err != nil {
					return fmt.Errorf("expand %s: %w", dir, err)
				}
			}
			tree, _ := b.Tree(browseNamespace)
			a.out.Listing(tree.Listing)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list from the root down to path")
	cmd.Flags().StringArrayVarP(&expand, "expand", "e", nil, "also list this sub-directory, repeatable")
	cmd.Flags().BoolVar(&up, "up", false, "list the parent directory of path instead")
	return cmd
}

func newFilesTableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "table <path>",
		Short: "Show an attribute table file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.browser().Table(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("read table %s: %w", args[0], err)
			}
			if t.Error != "" {
				a.out.Error(args[0] + ": " + t.Error)
				return reported(errors.New(t.Error))
			}
			a.out.Table(fileTableResponse(t))
			return nil
		},
	}
}

// fileTableResponse shows an attribute table like a listing page, with the
// columns of its rows in name order.
func fileTableResponse(t model.FileTable) model.TableResponse {
	seen := map[string]bool{}
	var names []string
	for _, row := range t.Rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	cols := make([]model.TableColumn, len(names))
	for i, n := range names {
		cols[i] = model.TableColumn{Name: n, Type: "str"}
	}
	return model.TableResponse{
		Total:           len(t.Rows),
		TotalUnfiltered: len(t.Rows),
		Columns:         cols,
		Rows:            t.Rows,
	}
}

func newFilesMetaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "meta <path>",
		Short: "Show the metadata of an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.images().Meta(cmd.Context(), args[0])
			a.out.ImageMeta(m)
			if m.Error != "" {
				return reported(errors.New(m.Error))
			}
			return nil
		},
	}
}

func newFilesVolumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "volume <path>",
		Short: "Fetch the voxel data of an image file and summarize it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := a.images().Volume(cmd.Context(), args[0])
			a.out.Volume(v)
			if v.Error != "" {
				return reported(errors.New(v.Error))
			}
			return nil
		},
	}
}

// renderEndpoints maps `files render --view` to image endpoints.
var renderEndpoints = map[string]string{
	"slice":  api.ImageSlicePath,
	"slices": api.ImageSlicesPath,
	"plot":   api.ImagePlotPath,
}

func newFilesRenderCmd(a *app) *cobra.Command {
	var (
		view   string
		params []string
		out    string
	)
	cmd := &cobra.Command{
		Use:     "render <path>",
		Short:   "Render an image file to PNG",
		Example: `  badctl files render /data/sub-01/T1w.nii.gz --view slice --param axis=2 -O slice.png`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, ok := renderEndpoints[view]
			if !ok {
				return fmt.Errorf("unknown view %q (want slice, slices or plot)", view)
			}
			q, err := parseFilters(params)
			if err != nil {
				return err
			}
			extra := url.Values{}
			for k, v := range q {
				extra.Set(k, v)
			}
			var png []byte
			fetch := func() error {
				var err error
				png, err = a.images().Render(cmd.Context(), endpoint, args[0], extra)
				return err
			}
			if out == "" || out == "-" {
				if err := fetch(); err != nil {
					return fmt.Errorf("render %s: %w", args[0], err)
				}
				_, err := a.out.Out.Write(png)
				return err
			}
			if err := a.out.WithSpinner("Rendering "+args[0], fetch); err != nil {
				return reported(err)
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			a.out.Success(fmt.Sprintf("wrote %d bytes to %s", len(png), out))
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "slice", "rendering: slice, slices or plot")
	cmd.Flags().StringArrayVar(&params, "param", nil, "extra query parameter key=value, repeatable")
	cmd.Flags().StringVarP(&out, "out-file", "O", "", "output file, - for stdout")
	return cmd
}
