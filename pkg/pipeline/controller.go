// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline keeps one focused pipeline consistent with the server.
//
// # Description
//
// A Controller owns the view of one pipeline (kind and uuid). It merges
// three time sources into the store:
//
//	┌─────────────────┐   ┌──────────────────┐   ┌──────────────────┐
//	│ explicit calls  │   │ poll slot        │   │ preview slot     │
//	│ Load/Update/Run │   │ re-fetch while   │   │ debounced source │
//	│                 │   │ a run is active  │   │ preview requests │
//	└────────┬────────┘   └────────┬─────────┘   └────────┬─────────┘
//	         └─────────────────────┼──────────────────────┘
//	                               ▼
//	                  store (sequence fenced writes)
//
// Push notifications arrive through the store: a status_change trigger
// re-fetches the global status, a new push session re-requests the
// reduction preview. Polling continues regardless of the push channel.
//
// # Thread Safety
//
// Controller is safe for concurrent use. Timer callbacks run on their own
// goroutines with the controller's background context, which Close
// cancels.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/logging"
	"github.com/brainage/bad-designer/pkg/metrics"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/modgraph"
	"github.com/brainage/bad-designer/pkg/schedule"
	"github.com/brainage/bad-designer/pkg/store"
)

var tracer = otel.Tracer("bad.pipeline")

// ErrNotLoaded is returned by operations that need the cached resource
// before it was loaded.
var ErrNotLoaded = errors.New("pipeline not loaded")

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("controller closed")

// DefaultPreviewDelay is the debounce window of source previews.
const DefaultPreviewDelay = time.Second

// Pusher is the part of the push channel a controller uses.
type Pusher interface {
	SendToPlugin(plugin, uuid, topic string, data any) error
	Focus(plugin, uuid string)
}

// Config wires a Controller.
type Config struct {
	Kind model.Kind
	UUID string

	API   *api.Client
	Store *store.Store

	// Push is optional. Without it no reduction previews are requested.
	Push Pusher

	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Clock   schedule.Clock

	// PollDelay defaults to Kind.PollDelay(), StopDelay to
	// Kind.StopDelay() and PreviewDelay to DefaultPreviewDelay.
	PollDelay    time.Duration
	StopDelay    time.Duration
	PreviewDelay time.Duration

	Notifier  Notifier
	Navigator Navigator
	Confirm   modgraph.Confirmer

	// Limits defaults to the merged section limits of Kind.
	Limits modgraph.Limits
}

// Controller synchronizes one pipeline view.
type Controller struct {
	kind      model.Kind
	uuid      string
	api       *api.Client
	store     *store.Store
	push      Pusher
	logger    *logging.Logger
	metrics   *metrics.Metrics
	notifier  Notifier
	navigator Navigator
	confirm   modgraph.Confirmer
	limits    modgraph.Limits

	pollDelay    time.Duration
	stopDelay    time.Duration
	previewDelay time.Duration

	poll    *schedule.Slot
	preview *schedule.Slot
	flight  singleflight.Group

	ctx       context.Context
	cancel    context.CancelFunc
	unobserve func()

	mu            sync.Mutex
	previewModule string
	editor        *modgraph.Editor
	closed        bool
}

// New creates a controller for one pipeline. Call Load to fetch it and
// Close when the view goes away.
func New(cfg Config) (*Controller, error) {
	if _, err := model.ParseKind(string(cfg.Kind)); err != nil {
		return nil, err
	}
	if cfg.UUID == "" {
		return nil, errors.New("pipeline: uuid is required")
	}
	if cfg.API == nil || cfg.Store == nil {
		return nil, errors.New("pipeline: api client and store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = schedule.RealClock()
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = cfg.Kind.PollDelay()
	}
	if cfg.StopDelay <= 0 {
		cfg.StopDelay = cfg.Kind.StopDelay()
	}
	if cfg.PreviewDelay <= 0 {
		cfg.PreviewDelay = DefaultPreviewDelay
	}
	logger := cfg.Logger.With("component", "pipeline", "kind", string(cfg.Kind), "uuid", cfg.UUID)
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{Logger: logger}
	}
	if cfg.Navigator == nil {
		cfg.Navigator = nopNavigator{}
	}
	if cfg.Confirm == nil {
		cfg.Confirm = modgraph.AlwaysConfirm
	}
	if cfg.Limits == nil {
		cfg.Limits = modgraph.MergedLimits(modgraph.SectionsFor(cfg.Kind))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		kind:         cfg.Kind,
		uuid:         cfg.UUID,
		api:          cfg.API,
		store:        cfg.Store,
		push:         cfg.Push,
		logger:       logger,
		metrics:      cfg.Metrics,
		notifier:     cfg.Notifier,
		navigator:    cfg.Navigator,
		confirm:      cfg.Confirm,
		limits:       cfg.Limits,
		pollDelay:    cfg.PollDelay,
		stopDelay:    cfg.StopDelay,
		previewDelay: cfg.PreviewDelay,
		poll:         schedule.NewSlot(cfg.Clock),
		preview:      schedule.NewSlot(cfg.Clock),
		ctx:          ctx,
		cancel:       cancel,
	}
	if c.push != nil {
		c.push.Focus(c.kind.Plugin(), c.uuid)
	}
	c.unobserve = c.store.Observe(c.onChange)
	return c, nil
}

// Kind returns the pipeline kind.
func (c *Controller) Kind() model.Kind { return c.kind }

// UUID returns the pipeline identity.
func (c *Controller) UUID() string { return c.uuid }

// Close cancels every pending timer and background request.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.poll.Cancel()
	c.preview.Cancel()
	c.unobserve()
	c.cancel()
}

// =============================================================================
// Loading
// =============================================================================

// NeedsLoad reports whether the store caches a different pipeline of this
// kind, or none.
func (c *Controller) NeedsLoad() bool {
	return c.store.NeedsLoad(c.kind, c.uuid)
}

// Pipeline returns the cached resource.
func (c *Controller) Pipeline() (model.Pipeline, bool) {
	p, ok := c.store.Pipeline(c.kind)
	if !ok || p.UUID != c.uuid {
		return model.Pipeline{}, false
	}
	return p, true
}

// Load fetches the pipeline and applies it to the store.
//
// # Description
//
// A source preview that belongs to another pipeline, or that predates
// the first load of this one, is cleared before the request. After the
// fetch, a running process schedules the next poll. Analysis pipelines
// also refresh their average result and ask the push channel for a
// reduction preview.
//
// # Outputs
//
//   - error: Request error. The previously cached resource is kept.
func (c *Controller) Load(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	ctx, span := tracer.Start(ctx, "pipeline.Load")
	span.SetAttributes(attribute.String("pipeline.kind", string(c.kind)), attribute.String("pipeline.uuid", c.uuid))
	defer span.End()

	if _, previewUUID := c.store.SourcePreview(); c.NeedsLoad() || (previewUUID != "" && previewUUID != c.uuid) {
		c.store.ClearSourcePreview(c.uuid)
	}

	seq := c.store.NextSeq(store.PipelineKey(c.kind, c.uuid))
	p, err := c.api.GetPipeline(ctx, c.kind, c.uuid)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get pipeline")
		c.logger.Error("load pipeline failed", "error", err)
		c.notifier.Failure("loading the pipeline failed", err)
		return fmt.Errorf("load %s %s: %w", c.kind, c.uuid, err)
	}
	c.apply(p, seq)

	if c.kind == model.KindAnalysis {
		c.loadAverageResult(ctx)
		c.requestReductionPreview()
	}
	return nil
}

// apply writes a response into the store and derives the follow-ups.
func (c *Controller) apply(p model.Pipeline, seq uint64) bool {
	if p.UUID == "" {
		p.UUID = c.uuid
	}
	if !c.store.ApplyPipeline(c.kind, p, seq) {
		c.metrics.StaleResponses.WithLabelValues("pipeline").Inc()
		c.logger.Debug("stale pipeline response discarded", "seq", seq)
		return false
	}
	if model.DeriveStatus(p.LatestProcessData).Running {
		c.schedulePoll(c.pollDelay)
	}
	return true
}

func (c *Controller) schedulePoll(d time.Duration) {
	c.poll.Schedule(d, func() {
		c.metrics.Polls.WithLabelValues(string(c.kind)).Inc()
		if err := c.Load(c.ctx); err != nil && !errors.Is(err, ErrClosed) {
			c.logger.Warn("poll failed", "error", err)
		}
	})
}

// PollPending reports whether a re-fetch is scheduled.
func (c *Controller) PollPending() bool {
	return c.poll.Pending()
}

func (c *Controller) loadAverageResult(ctx context.Context) {
	result, err := c.api.AverageResult(ctx, c.uuid)
	if err != nil {
		c.logger.Debug("no average result", "error", err)
		result = nil
	}
	c.store.SetAverageResult(c.uuid, result)
}

// =============================================================================
// Updates
// =============================================================================

// Update sends the cached resource merged with patch and caches the
// server's answer.
//
// # Inputs
//
//   - patch: Top-level resource keys and their new values, e.g.
//     {"name": "new name"} or {"analysis_values": {...}}.
func (c *Controller) Update(ctx context.Context, patch map[string]any) error {
	cur, ok := c.Pipeline()
	if !ok {
		return ErrNotLoaded
	}
	next, err := cur.Patch(patch)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", c.kind, c.uuid, err)
	}
	return c.save(ctx, next)
}

// UpdateModules replaces the module list.
//
// # Description
//
// The store holds the new list right away; the server's answer then
// overwrites it. If the request fails the previous list is restored. A
// list over a group limit is refused before anything is sent.
func (c *Controller) UpdateModules(ctx context.Context, modules []model.Module) error {
	if group, ok := c.limits.Check(modules); !ok {
		return fmt.Errorf("%w: %s allows %d", modgraph.ErrGroupLimit, group, c.limits[group])
	}
	prev, ok := c.store.SetOptimisticModules(c.kind, c.uuid, modules)
	if !ok {
		return ErrNotLoaded
	}
	next, ok := c.Pipeline()
	if !ok {
		return ErrNotLoaded
	}
	if err := c.save(ctx, next); err != nil {
		c.store.SetOptimisticModules(c.kind, c.uuid, prev)
		return err
	}
	return nil
}

func (c *Controller) save(ctx context.Context, p model.Pipeline) error {
	ctx, span := tracer.Start(ctx, "pipeline.Update")
	span.SetAttributes(attribute.String("pipeline.kind", string(c.kind)), attribute.String("pipeline.uuid", c.uuid))
	defer span.End()

	seq := c.store.NextSeq(store.PipelineKey(c.kind, c.uuid))
	stored, err := c.api.UpdatePipeline(ctx, c.kind, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update pipeline")
		c.logger.Error("store pipeline failed", "error", err)
		c.notifier.Failure("storing the pipeline failed", err)
		return fmt.Errorf("update %s %s: %w", c.kind, c.uuid, err)
	}
	c.apply(stored, seq)
	c.notifier.Success(MsgStored)
	return nil
}

// =============================================================================
// Process Control
// =============================================================================

// Status derives the process status of the cached resource.
func (c *Controller) Status() model.Status {
	p, _ := c.Pipeline()
	return model.DeriveStatus(p.LatestProcessData)
}

// Progress aggregates the object counts of the latest run, nil without
// progress data.
func (c *Controller) Progress() *model.Progress {
	p, _ := c.Pipeline()
	return model.ComputeProgress(p.LatestProcessData)
}

// Run queues a run and reloads to show the requested state.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.api.StartPipeline(ctx, c.kind, c.uuid); err != nil {
		c.logger.Error("start pipeline failed", "error", err)
		c.notifier.Failure("starting the pipeline failed", err)
		return fmt.Errorf("run %s %s: %w", c.kind, c.uuid, err)
	}
	c.notifier.Success(MsgQueued)
	return c.Load(ctx)
}

// Stop asks the running process to stop and schedules a quick re-fetch.
func (c *Controller) Stop(ctx context.Context) error {
	if err := c.api.StopPipeline(ctx, c.kind, c.uuid); err != nil {
		c.logger.Error("stop pipeline failed", "error", err)
		c.notifier.Failure("stopping the pipeline failed", err)
		return fmt.Errorf("stop %s %s: %w", c.kind, c.uuid, err)
	}
	c.notifier.Success(MsgStopped)
	c.schedulePoll(c.stopDelay)
	return nil
}

// Copy duplicates the pipeline and navigates to the copy.
func (c *Controller) Copy(ctx context.Context) (string, error) {
	id, err := c.api.CopyPipeline(ctx, c.kind, c.uuid)
	if err != nil {
		c.logger.Error("copy pipeline failed", "error", err)
		c.notifier.Failure("copying the pipeline failed", err)
		return "", fmt.Errorf("copy %s %s: %w", c.kind, c.uuid, err)
	}
	c.notifier.Success(MsgCopied)
	c.navigator.Navigate(c.kind.ViewPath(id))
	return id, nil
}

// Delete asks for confirmation, deletes the pipeline and navigates to the
// dashboard.
//
// # Outputs
//
//   - bool: False if the user declined.
//   - error: Confirmation or request error.
func (c *Controller) Delete(ctx context.Context) (bool, error) {
	ok, err := c.confirm.Confirm(ctx, DeletePrompt)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := c.api.DeletePipeline(ctx, c.kind, c.uuid); err != nil {
		c.logger.Error("delete pipeline failed", "error", err)
		c.notifier.Failure("deleting the pipeline failed", err)
		return false, fmt.Errorf("delete %s %s: %w", c.kind, c.uuid, err)
	}
	c.poll.Cancel()
	c.store.ClearPipeline(c.kind)
	c.notifier.Success(MsgDeleted)
	c.navigator.Navigate(model.DashboardPath)
	return true, nil
}

// =============================================================================
// Source Preview
// =============================================================================

// SourcePreview requests a source preview after the debounce window. A
// call within the window replaces the pending one.
func (c *Controller) SourcePreview(values model.Values) {
	values = values.Clone()
	c.preview.Schedule(c.previewDelay, func() {
		c.RequestSourcePreview(c.ctx, values)
	})
}

// PreviewPending reports whether a debounced preview is waiting.
func (c *Controller) PreviewPending() bool {
	return c.preview.Pending()
}

// RequestSourcePreview resolves the source files of values now.
//
// # Description
//
// Failures are stored inline as {error} with the server's message or
// PreviewFallback; they are not returned. A response that arrives after
// a newer request was issued, or after the preview was cleared, is
// dropped.
func (c *Controller) RequestSourcePreview(ctx context.Context, values model.Values) {
	seq := c.store.NextSeq(store.SourcePreviewKey(c.uuid))
	preview, err := c.api.SourcePreview(ctx, c.uuid, values)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("source preview failed", "error", err)
		preview = model.SourcePreview{Error: api.ServerMessage(err, PreviewFallback)}
	}
	if !c.store.SetSourcePreview(c.uuid, preview, seq) {
		c.metrics.StaleResponses.WithLabelValues("source_preview").Inc()
	}
}

// CurrentSourcePreview returns the stored preview of this pipeline.
func (c *Controller) CurrentSourcePreview() (*model.SourcePreview, bool) {
	preview, id := c.store.SourcePreview()
	if preview == nil || id != c.uuid {
		return nil, false
	}
	return preview, true
}

// EditedModuleChanged is told when a module edit starts (module) or ends
// (nil). Starting to edit the source module previews its current values
// immediately.
func (c *Controller) EditedModuleChanged(module *model.Module) {
	c.mu.Lock()
	if module != nil && module.Name == model.SourceModuleName && module.UUID != c.previewModule {
		c.previewModule = module.UUID
		c.mu.Unlock()
		c.RequestSourcePreview(c.ctx, module.ParameterValues)
		return
	}
	c.previewModule = ""
	c.mu.Unlock()
}

// ModuleFormChanged is told about every value change of the edited
// module. Changes of the source module are previewed debounced.
func (c *Controller) ModuleFormChanged(module model.Module, values model.Values) {
	if module.Name == model.SourceModuleName {
		c.SourcePreview(values)
	}
}

// SetAttributeMapping replaces the attribute table mapping in the edited
// values and previews the result debounced.
//
// # Outputs
//
//   - model.Values: The edited values with the new mapping.
func (c *Controller) SetAttributeMapping(values model.Values, mapping any) model.Values {
	next := values.Clone()
	if next == nil {
		next = model.Values{}
	}
	next[model.TableMappingParam] = mapping
	c.SourcePreview(next)
	return next
}

// =============================================================================
// Results and Push Data
// =============================================================================

// AverageResult returns the average of the first analysis_result event of
// the latest run.
func (c *Controller) AverageResult() any {
	p, _ := c.Pipeline()
	return model.AverageResult(p.LatestProcessData)
}

// FetchedAverageResult returns the average result fetched on load; nil if
// the server had none.
func (c *Controller) FetchedAverageResult() (map[string]any, bool) {
	return c.store.AverageResult(c.uuid)
}

// ShowResult fetches one analysis result unless it is cached.
func (c *Controller) ShowResult(ctx context.Context, resultUUID string) (map[string]any, error) {
	if r, ok := c.store.Result(resultUUID); ok {
		return r, nil
	}
	r, err := c.api.Result(ctx, resultUUID)
	if err != nil {
		c.notifier.Failure("loading the result failed", err)
		return nil, fmt.Errorf("result %s: %w", resultUUID, err)
	}
	c.store.SetResult(resultUUID, r)
	return r, nil
}

// ReductionPreview returns the latest reduction preview pushed for this
// pipeline.
func (c *Controller) ReductionPreview() (any, bool) {
	return c.store.PushPayload(c.reductionKey())
}

func (c *Controller) reductionKey() store.PushKey {
	return store.PushKey{Plugin: c.kind.Plugin(), UUID: c.uuid, Topic: model.ReductionPreviewTopic}
}

func (c *Controller) requestReductionPreview() {
	if c.push == nil {
		return
	}
	if err := c.push.SendToPlugin(c.kind.Plugin(), c.uuid, model.ReductionPreviewTopic, nil); err != nil {
		c.logger.Debug("reduction preview not requested", "error", err)
	}
}

// ModuleObjects fetches the files a module read or wrote in the latest
// run.
func (c *Controller) ModuleObjects(ctx context.Context, moduleUUID string, source bool) ([]string, error) {
	p, ok := c.Pipeline()
	if !ok {
		return nil, ErrNotLoaded
	}
	if p.LatestProcessData == nil || p.LatestProcessData.UUID == "" {
		return nil, nil
	}
	runUUID := p.LatestProcessData.UUID
	key := store.ObjectsKey{ProcessUUID: runUUID, ModuleUUID: moduleUUID, Source: source}
	files, err := c.api.ModuleObjects(ctx, runUUID, moduleUUID, source)
	if err != nil {
		return nil, fmt.Errorf("module objects %s: %w", moduleUUID, err)
	}
	c.store.SetModuleObjects(key, files)
	return files, nil
}

// RefreshStatus re-fetches the global status. Concurrent calls share one
// request.
func (c *Controller) RefreshStatus(ctx context.Context) (map[string]any, error) {
	v, err, _ := c.flight.Do("status", func() (any, error) {
		status, err := c.api.Status(ctx)
		if err != nil {
			return nil, err
		}
		c.store.SetStatus(status)
		return status, nil
	})
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return v.(map[string]any), nil
}

// =============================================================================
// Store Observation
// =============================================================================

func (c *Controller) onChange(change store.Change) {
	switch change.Topic {
	case store.TopicStatusTrigger:
		go func() {
			if _, err := c.RefreshStatus(c.ctx); err != nil && c.ctx.Err() == nil {
				c.logger.Warn("status refresh failed", "error", err)
			}
		}()

	case store.TopicSession:
		if c.kind != model.KindAnalysis || c.store.Session() == "" {
			return
		}
		if _, ok := c.ReductionPreview(); !ok {
			c.requestReductionPreview()
		}

	case store.TopicPipeline:
		if change.Key != string(c.kind) {
			return
		}
		c.mu.Lock()
		editor := c.editor
		c.mu.Unlock()
		if editor == nil {
			return
		}
		if p, ok := c.Pipeline(); ok {
			editor.SetModules(p.Modules)
		}
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
