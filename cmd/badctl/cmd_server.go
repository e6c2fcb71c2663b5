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
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/tableview"
)

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the dashboard summary of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.client.Dashboard(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch dashboard: %w", err)
			}
			a.store.SetDashboard(data)
			a.out.Map("Dashboard", a.store.Dashboard())
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the global processing status of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}
			a.store.SetStatus(data)
			a.out.Map("Status", a.store.Status())
			return nil
		},
	}
}

// =============================================================================
// Tables
// =============================================================================

// tableNames maps the arguments of `badctl table` to listing URLs.
var tableNames = map[string]string{
	"preprocess": api.TablePath(model.KindPreprocess),
	"analysis":   api.TablePath(model.KindAnalysis),
	"processes":  api.ProcessTablePath,
	"events":     api.EventTablePath,
	"objects":    api.ObjectTablePath,
	"results":    api.ResultTablePath,
}

func tableNameList() string {
	names := make([]string, 0, len(tableNames))
	for n := range tableNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

type tableFlags struct {
	offset  int
	limit   int
	sort    string
	filters []string
}

func (f *tableFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.offset, "offset", 0, "first row to show")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "rows per page (server default if 0)")
	cmd.Flags().StringVar(&f.sort, "sort", "", "sort column, prefix with - for descending")
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "column=value filter, repeatable")
}

func (f *tableFlags) options() (tableview.Options, error) {
	filters, err := parseFilters(f.filters)
	if err != nil {
		return tableview.Options{}, err
	}
	return tableview.Options{
		Offset:  f.offset,
		Limit:   f.limit,
		Sort:    f.sort,
		Filters: filters,
	}, nil
}

// showTable fetches one page of a listing and prints it.
func (a *app) showTable(cmd *cobra.Command, listURL string, f *tableFlags) error {
	opts, err := f.options()
	if err != nil {
		return err
	}
	a.tables.SetOptions("cli", listURL, opts)
	resp, err := a.tables.Request(cmd.Context(), "cli", listURL)
	if err != nil {
		return fmt.Errorf("fetch table: %w", err)
	}
	a.out.Table(resp)
	return nil
}

func newTableCmd(a *app) *cobra.Command {
	var f tableFlags
	cmd := &cobra.Command{
		Use:   "table <name>",
		Short: "Show a server table listing",
		Long:  "Show a server table listing. Names: " + tableNameList() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listURL, ok := tableNames[args[0]]
			if !ok {
				return fmt.Errorf("unknown table %q (want one of %s)", args[0], tableNameList())
			}
			return a.showTable(cmd, listURL, &f)
		},
	}
	f.register(cmd)
	return cmd
}
