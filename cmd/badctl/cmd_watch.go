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
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/brainage/bad-designer/cmd/badctl/config"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/pipeline"
	"github.com/brainage/bad-designer/pkg/push"
	"github.com/brainage/bad-designer/pkg/store"
)

func newPipelineWatchCmd(a *app) *cobra.Command {
	var (
		untilDone   bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch <kind> <uuid>",
		Short: "Follow a pipeline until interrupted",
		Long: `Follow a pipeline: poll it while it runs, keep the push channel open and
print every status change. Changes of the poll and debounce settings in the
config file apply without a restart.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := kindArg(args)
			if err != nil {
				return err
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, kind, args[1], untilDone, metricsAddr)
		},
	}
	cmd.Flags().BoolVar(&untilDone, "until-done", false, "exit once the pipeline is not running")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve /metrics on this address (overrides metrics.listen)")
	return cmd
}

// watcher follows one pipeline. The controller is replaced when the
// configuration changes.
type watcher struct {
	a         *app
	kind      model.Kind
	uuid      string
	push      *push.Client
	untilDone bool
	done      context.CancelFunc

	mu         sync.Mutex
	ctrl       *pipeline.Controller
	lastStatus string
}

func (a *app) watch(ctx context.Context, kind model.Kind, id string, untilDone bool, metricsAddr string) error {
	pc, err := a.pushClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &watcher{a: a, kind: kind, uuid: id, push: pc, untilDone: untilDone, done: cancel}
	ctrl, err := a.controller(a.cfg, kind, id, pc)
	if err != nil {
		return err
	}
	w.ctrl = ctrl
	defer func() { w.current().Close() }()

	unobserve := a.store.Observe(w.onChange)
	defer unobserve()

	if err := ctrl.Load(ctx); err != nil {
		return reported(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pc.Run(gctx)
	})
	if metricsAddr != "" {
		g.Go(func() error {
			return a.serveMetrics(gctx, metricsAddr)
		})
	}
	if path := a.configPath(); path != "" {
		g.Go(func() error {
			err := config.Watch(gctx, path, a.getenv, a.logger, func(cfg config.Config) {
				w.reload(gctx, cfg)
			})
			if err != nil && gctx.Err() == nil {
				a.logger.Warn("config watch stopped", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// configPath is the file the configuration was loaded from.
func (a *app) configPath() string {
	if a.flags.configPath != "" {
		return a.flags.configPath
	}
	path, err := config.DefaultPath()
	if err != nil {
		return ""
	}
	return path
}

func (w *watcher) current() *pipeline.Controller {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctrl
}

// onChange prints status changes of the watched pipeline and of the
// server.
func (w *watcher) onChange(ch store.Change) {
	out := w.a.out
	switch ch.Topic {
	case store.TopicPipeline:
		if ch.Key != string(w.kind) {
			return
		}
		ctrl := w.current()
		if _, ok := ctrl.Pipeline(); !ok {
			return
		}
		status := ctrl.Status()
		line := out.StatusText(status)
		if p := ctrl.Progress(); p != nil {
			line += " " + out.ProgressBar(p.Done, p.All, 20)
		}
		w.mu.Lock()
		changed := line != w.lastStatus
		w.lastStatus = line
		w.mu.Unlock()
		if changed {
			out.Info(line)
		}
		if w.untilDone && !status.Running {
			w.done()
		}

	case store.TopicPush:
		key := store.PushKey{Plugin: w.kind.Plugin(), UUID: w.uuid, Topic: model.ReductionPreviewTopic}
		if ch.Key == key.String() {
			out.Muted("reduction preview updated")
		}

	case store.TopicStatus:
		out.Map("Server status", w.a.store.Status())
	}
}

// reload replaces the controller with one using the new settings.
func (w *watcher) reload(ctx context.Context, cfg config.Config) {
	next, err := w.a.controller(cfg, w.kind, w.uuid, w.push)
	if err != nil {
		w.a.logger.Warn("controller reload failed", "error", err)
		return
	}
	w.mu.Lock()
	prev := w.ctrl
	w.ctrl = next
	w.mu.Unlock()
	prev.Close()

	if err := next.Load(ctx); err != nil && ctx.Err() == nil {
		w.a.logger.Warn("reload failed", "error", err)
	}
	w.a.logger.Info("watch settings applied",
		"poll_delay", w.a.pollDelay(cfg, w.kind), "preview_delay", cfg.Sync.PreviewDelay)
}

// serveMetrics serves the registry of the invocation until ctx is done.
func (a *app) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.logger.Info("serving metrics", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}
