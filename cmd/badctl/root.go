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
	"github.com/spf13/cobra"

	"github.com/brainage/bad-designer/pkg/model"
)

// newRootCmd builds the command tree of one invocation.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "badctl",
		Short: "Edit, run and watch BrainAGE pipelines",
		Long: `badctl talks to a BrainAGE pipeline server. It edits preprocessing and
analysis pipelines, starts and stops their runs, browses input files and
follows running pipelines over the push channel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	f := root.PersistentFlags()
	f.StringVar(&a.flags.configPath, "config", "", "config file (default ~/.bad/badctl.yaml)")
	f.StringVar(&a.flags.apiURL, "api-url", "", "pipeline server URL (overrides config and BAD_API_URL)")
	f.StringVar(&a.flags.wsURL, "ws-url", "", "push channel URL (default derived from the API URL)")
	f.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.BoolVar(&a.flags.jsonLogs, "json-logs", false, "write logs as JSON")
	f.BoolVar(&a.flags.trace, "trace", false, "print trace spans to stderr")
	f.BoolVarP(&a.flags.yes, "yes", "y", false, "answer every confirmation with yes")
	f.StringVarP(&a.flags.output, "output", "o", "", "output mode: auto, rich, plain or machine")

	root.AddCommand(
		newDashboardCmd(a),
		newStatusCmd(a),
		newTableCmd(a),
		newPipelineCmd(a),
		newModuleCmd(a),
		newPreviewCmd(a),
		newFilesCmd(a),
	)
	return root
}

// kindArg parses the pipeline kind positional argument.
func kindArg(args []string) (model.Kind, error) {
	return model.ParseKind(args[0])
}
