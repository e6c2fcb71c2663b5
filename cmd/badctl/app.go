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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brainage/bad-designer/cmd/badctl/config"
	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/files"
	"github.com/brainage/bad-designer/pkg/form"
	"github.com/brainage/bad-designer/pkg/logging"
	"github.com/brainage/bad-designer/pkg/metrics"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/pipeline"
	"github.com/brainage/bad-designer/pkg/schedule"
	"github.com/brainage/bad-designer/pkg/store"
	"github.com/brainage/bad-designer/pkg/tableview"
	"github.com/brainage/bad-designer/pkg/ux"
)

// globalFlags are the persistent flags of the root command. Set flags
// override the configuration file.
type globalFlags struct {
	configPath string
	apiURL     string
	wsURL      string
	logLevel   string
	jsonLogs   bool
	trace      bool
	yes        bool
	output     string
}

// app holds everything one invocation shares between its commands. It is
// filled by setup, which runs before every command.
type app struct {
	stdin  *os.File
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	// loadConfig defaults to the process-wide config.Load.
	loadConfig func(path string) (config.Config, error)

	flags globalFlags

	cfg      config.Config
	logger   *logging.Logger
	out      *ux.Printer
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	client   *api.Client
	store    *store.Store
	tables   *tableview.Tables
	confirm  ux.Confirmer

	shutdownTracing func(context.Context) error
}

func newApp(stdin *os.File, stdout, stderr io.Writer, getenv func(string) string) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		getenv: getenv,
		loadConfig: func(path string) (config.Config, error) {
			if err := config.Load(path); err != nil {
				return config.Config{}, err
			}
			return config.Global, nil
		},
	}
}

// setup loads the configuration and builds the shared clients.
func (a *app) setup() error {
	cfg, err := a.loadConfig(a.flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.applyFlags(&cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	a.cfg = cfg

	outFile, _ := a.stdout.(*os.File)
	mode, err := ux.ParseMode(cfg.Output.Mode, outFile)
	if err != nil {
		return err
	}
	a.out = ux.NewPrinter(a.stdout, a.stderr, mode)

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "badctl",
		JSON:    cfg.Logging.JSON,
		Output:  a.stderr,
	})

	if a.flags.trace {
		shutdown, err := setupTracing(a.stderr)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		a.shutdownTracing = shutdown
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	a.client, err = api.New(api.Config{
		BaseURL:   cfg.Server.APIURL,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
		UserAgent: cfg.Server.UserAgent,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
	if err != nil {
		return err
	}
	a.store = store.New()
	a.tables = tableview.New(a.client, a.store, a.logger)
	a.confirm = ux.Confirmer{
		AssumeYes:   a.flags.yes,
		Interactive: ux.IsTerminal(a.stdin),
	}
	return nil
}

func (a *app) applyFlags(cfg *config.Config) {
	if a.flags.apiURL != "" {
		cfg.Server.APIURL = a.flags.apiURL
	}
	if a.flags.wsURL != "" {
		cfg.Server.WSURL = a.flags.wsURL
	}
	if a.flags.logLevel != "" {
		cfg.Logging.Level = a.flags.logLevel
	}
	if a.flags.jsonLogs {
		cfg.Logging.JSON = true
	}
	if a.flags.output != "" {
		cfg.Output.Mode = a.flags.output
	}
}

// close flushes the trace exporter and the log file.
func (a *app) close() {
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTracing(ctx); err != nil {
			fmt.Fprintln(a.stderr, "trace shutdown:", err)
		}
		cancel()
		a.shutdownTracing = nil
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// pollDelay is the configured poll delay of a kind, zero for the kind's
// built-in one.
func (a *app) pollDelay(cfg config.Config, kind model.Kind) time.Duration {
	if kind == model.KindAnalysis {
		return cfg.Sync.AnalysisPollDelay
	}
	return cfg.Sync.PreprocessPollDelay
}

// controller creates a pipeline controller. push may be nil.
func (a *app) controller(cfg config.Config, kind model.Kind, id string, push pipeline.Pusher) (*pipeline.Controller, error) {
	return pipeline.New(pipeline.Config{
		Kind:         kind,
		UUID:         id,
		API:          a.client,
		Store:        a.store,
		Push:         push,
		Logger:       a.logger,
		Metrics:      a.metrics,
		PollDelay:    a.pollDelay(cfg, kind),
		PreviewDelay: cfg.Sync.PreviewDelay,
		Notifier:     ux.Notifier{P: a.out},
		Navigator: pipeline.NavigatorFunc(func(path string) {
			a.out.Muted(a.out.Icon(ux.IconArrow) + " " + path)
		}),
		Confirm: a.confirm,
	})
}

// loadController creates a controller and loads its pipeline.
func (a *app) loadController(ctx context.Context, kind model.Kind, id string) (*pipeline.Controller, error) {
	ctrl, err := a.controller(a.cfg, kind, id, nil)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Load(ctx); err != nil {
		ctrl.Close()
		return nil, err
	}
	return ctrl, nil
}

func (a *app) browser() *files.Browser {
	return files.NewBrowser(a.client, a.store, a.logger, schedule.RealClock())
}

func (a *app) images() *files.Images {
	return files.NewImages(a.client, a.store, a.logger, schedule.RealClock())
}

// =============================================================================
// Argument Helpers
// =============================================================================

// parseAssignments splits key=value arguments. Parameters of schema keep
// their text for form.Normalize to convert; other keys are decoded as JSON
// when they parse as JSON, so that `threshold=0.5` is a number.
func parseAssignments(schema *model.FormSchema, args []string) (model.Values, error) {
	values := model.Values{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		if schema != nil {
			if _, known := schema.Parameter(key); known {
				values[key] = raw
				continue
			}
		}
		values[key] = parseValue(raw)
	}
	return values, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// editValues applies key=value arguments to the current values of a form
// and returns the normalized result. Invalid input yields
// form.ValidationErrors together with the values.
func editValues(schema *model.FormSchema, current model.Values, args []string) (model.Values, error) {
	changes, err := parseAssignments(schema, args)
	if err != nil {
		return nil, err
	}
	merged := form.MergedValues(schema, current)
	for k, v := range changes {
		merged[k] = v
	}
	values := form.Normalize(schema, merged)
	return values, form.Validate(schema, values)
}

// printValidation prints every field error of err and returns a summary
// error, or err unchanged if it is not a validation failure.
func (a *app) printValidation(err error) error {
	var verrs form.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		a.out.Error(fe.Error())
	}
	return fmt.Errorf("%d invalid value(s)", len(verrs))
}

// remoteErr marks failed requests as reported, since the controller
// already notified them.
func remoteErr(err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) || api.IsTransport(err) {
		return reported(err)
	}
	return err
}

func parseFilters(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected column=value filter, got %q", arg)
		}
		filters[key] = value
	}
	return filters, nil
}
