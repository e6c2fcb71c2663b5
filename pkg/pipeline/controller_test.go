// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainage/bad-designer/internal/testserver"
	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/metrics"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/modgraph"
	"github.com/brainage/bad-designer/pkg/schedule"
	"github.com/brainage/bad-designer/pkg/store"
	"github.com/brainage/bad-designer/pkg/tableview"
)

// =============================================================================
// Test Doubles
// =============================================================================

type recordingNotifier struct {
	mu       sync.Mutex
	success  []string
	failures []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.success = append(n.success, msg)
}

func (n *recordingNotifier) Failure(msg string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, msg)
}

func (n *recordingNotifier) Successes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.success...)
}

func (n *recordingNotifier) Failures() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.failures...)
}

type pushCall struct {
	Plugin, UUID, Topic string
}

type fakePusher struct {
	mu      sync.Mutex
	sent    []pushCall
	focused []pushCall
	err     error
}

func (p *fakePusher) SendToPlugin(plugin, uuid, topic string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, pushCall{plugin, uuid, topic})
	return nil
}

func (p *fakePusher) Focus(plugin, uuid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.focused = append(p.focused, pushCall{Plugin: plugin, UUID: uuid})
}

func (p *fakePusher) Sent() []pushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushCall(nil), p.sent...)
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	srv       *testserver.Server
	client    *api.Client
	store     *store.Store
	clock     *schedule.FakeClock
	notifier  *recordingNotifier
	pusher    *fakePusher
	metrics   *metrics.Metrics
	navigated []string
	confirm   bool
	ctrl      *Controller
}

func newHarness(t *testing.T, kind model.Kind, p model.Pipeline) *harness {
	t.Helper()
	h := &harness{
		srv:      testserver.New(t),
		store:    store.New(),
		clock:    schedule.NewFakeClock(time.Unix(0, 0)),
		notifier: &recordingNotifier{},
		pusher:   &fakePusher{},
		metrics:  metrics.New(prometheus.NewRegistry()),
		confirm:  true,
	}
	h.srv.PutPipeline(kind, p)

	client, err := api.New(api.Config{BaseURL: h.srv.URL, RateLimit: 1000, RateBurst: 1000})
	require.NoError(t, err)
	h.client = client

	ctrl, err := New(Config{
		Kind:      kind,
		UUID:      p.UUID,
		API:       client,
		Store:     h.store,
		Push:      h.pusher,
		Metrics:   h.metrics,
		Clock:     h.clock,
		Notifier:  h.notifier,
		Navigator: NavigatorFunc(func(path string) { h.navigated = append(h.navigated, path) }),
		Confirm: modgraph.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
			assert.Equal(t, DeletePrompt, prompt)
			return h.confirm, nil
		}),
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	t.Cleanup(ctrl.Close)
	return h
}

func running(state model.ProcessState) *model.ProcessRun {
	return &model.ProcessRun{UUID: "run-1", Status: state}
}

func analysisPipeline(run *model.ProcessRun) model.Pipeline {
	return model.Pipeline{
		UUID: "a1",
		Name: "brain age",
		Modules: []model.Module{
			{UUID: "m-src", Name: model.SourceModuleName, Group: []string{"source"}, ParameterValues: model.Values{"glob": "*.nii"}},
			{UUID: "m-red", Name: "pca", Group: []string{"reduction"}},
		},
		LatestProcessData: run,
	}
}

const analysisPath = "/api/analysis/a1/"
const previewPath = "/api/analysis/a1/source-preview/"

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_Validation(t *testing.T) {
	client, err := api.New(api.Config{BaseURL: "http://localhost"})
	require.NoError(t, err)

	_, err = New(Config{Kind: "bogus", UUID: "x", API: client, Store: store.New()})
	assert.Error(t, err)
	_, err = New(Config{Kind: model.KindAnalysis, API: client, Store: store.New()})
	assert.Error(t, err)
	_, err = New(Config{Kind: model.KindAnalysis, UUID: "x", Store: store.New()})
	assert.Error(t, err)
}

func TestNew_FocusesPushChannel(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))

	assert.Equal(t, []pushCall{{Plugin: "analysis", UUID: "a1"}}, h.pusher.focused)
}

// =============================================================================
// Load and Polling Tests
// =============================================================================

func TestLoad_RunningSchedulesSinglePoll(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(running(model.StateRequested)))
	ctx := context.Background()

	require.True(t, h.ctrl.NeedsLoad())
	require.NoError(t, h.ctrl.Load(ctx))
	assert.False(t, h.ctrl.NeedsLoad())
	assert.True(t, h.ctrl.PollPending())
	assert.Equal(t, 1, h.clock.Pending())

	// a second load before the timer fires replaces the pending poll
	require.NoError(t, h.ctrl.Load(ctx))
	assert.Equal(t, 1, h.clock.Pending())
	assert.Equal(t, 2, h.srv.RequestCount(http.MethodGet, analysisPath))

	h.clock.Advance(5*time.Second - time.Millisecond)
	assert.Equal(t, 2, h.srv.RequestCount(http.MethodGet, analysisPath))

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, 3, h.srv.RequestCount(http.MethodGet, analysisPath))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Polls.WithLabelValues("analysis")))

	// still running: exactly one follow-up is pending again
	assert.Equal(t, 1, h.clock.Pending())
}

func TestLoad_PreprocessPollDelay(t *testing.T) {
	p := model.Pipeline{UUID: "p1", LatestProcessData: running(model.StateStarted)}
	h := newHarness(t, model.KindPreprocess, p)

	require.NoError(t, h.ctrl.Load(context.Background()))
	h.clock.Advance(2 * time.Second)

	assert.Equal(t, 2, h.srv.RequestCount(http.MethodGet, "/api/preprocess/p1/"))
}

func TestLoad_PollStopsWhenFinished(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(running(model.StateStarted)))
	require.NoError(t, h.ctrl.Load(context.Background()))

	h.srv.SetRun(model.KindAnalysis, "a1", running(model.StateFinished))
	h.clock.Advance(5 * time.Second)

	assert.False(t, h.ctrl.PollPending())
	assert.Equal(t, model.Status{State: model.StateFinished, CanStart: true}, h.ctrl.Status())
}

func TestLoad_FailureKeepsResource(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	require.NoError(t, h.ctrl.Load(context.Background()))

	h.srv.Fail(http.MethodGet, analysisPath, http.StatusInternalServerError, "db down")
	err := h.ctrl.Load(context.Background())

	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "db down", apiErr.Message)
	p, ok := h.ctrl.Pipeline()
	require.True(t, ok)
	assert.Equal(t, "brain age", p.Name)
	assert.Len(t, h.notifier.Failures(), 1)
}

func TestLoad_AnalysisExtras(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))

	require.NoError(t, h.ctrl.Load(context.Background()))
	avg, ok := h.ctrl.FetchedAverageResult()
	assert.True(t, ok)
	assert.Nil(t, avg)
	assert.Equal(t, []pushCall{{"analysis", "a1", model.ReductionPreviewTopic}}, h.pusher.Sent())

	h.srv.SetAverageResult("a1", map[string]any{"mae": 4.2})
	require.NoError(t, h.ctrl.Load(context.Background()))
	avg, _ = h.ctrl.FetchedAverageResult()
	assert.Equal(t, map[string]any{"mae": 4.2}, avg)
}

func TestLoad_ClearsForeignSourcePreview(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	h.store.SetSourcePreview("other", model.SourcePreview{Attributes: []string{"age"}}, 0)

	require.NoError(t, h.ctrl.Load(context.Background()))

	preview, _ := h.store.SourcePreview()
	assert.Nil(t, preview)
}

func TestLoad_DerivedViews(t *testing.T) {
	run := &model.ProcessRun{
		UUID:              "run-1",
		Status:            model.StateStarted,
		SourceObjectCount: map[string]int{"m1": 10, "m2": 5},
		ObjectCount:       &model.ObjectCount{Source: map[string]int{"m1": 10, "m2": 0}},
		Events: []model.Event{
			{Type: "graph_result"},
			{Type: model.EventAnalysisResult, Data: map[string]any{"average": 3.5}},
		},
	}
	h := newHarness(t, model.KindAnalysis, analysisPipeline(run))
	require.NoError(t, h.ctrl.Load(context.Background()))

	assert.Equal(t, model.Status{State: model.StateStarted, Running: true, CanStop: true}, h.ctrl.Status())
	assert.Equal(t, &model.Progress{All: 15, Done: 10, Percent: 66.7}, h.ctrl.Progress())
	assert.Equal(t, 3.5, h.ctrl.AverageResult())
}

func TestStatus_BeforeLoad(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))

	assert.Equal(t, model.Status{State: model.StateStopped, CanStart: true}, h.ctrl.Status())
	assert.Nil(t, h.ctrl.Progress())
}

// =============================================================================
// Update Tests
// =============================================================================

func TestUpdate_PatchAndNotify(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	ctx := context.Background()
	assert.ErrorIs(t, h.ctrl.Update(ctx, map[string]any{"name": "x"}), ErrNotLoaded)

	require.NoError(t, h.ctrl.Load(ctx))
	require.NoError(t, h.ctrl.Update(ctx, map[string]any{"name": "renamed"}))

	p, _ := h.ctrl.Pipeline()
	assert.Equal(t, "renamed", p.Name)
	assert.Len(t, p.Modules, 2)
	server, _ := h.srv.Pipeline(model.KindAnalysis, "a1")
	assert.Equal(t, "renamed", server.Name)
	assert.Equal(t, []string{MsgStored}, h.notifier.Successes())
}

func TestUpdateModules_OptimisticThenServer(t *testing.T) {
	h := newHarness(t, model.KindPreprocess, model.Pipeline{UUID: "p1"})
	ctx := context.Background()
	require.NoError(t, h.ctrl.Load(ctx))

	release := h.srv.Hold(http.MethodPost, "/api/preprocess/p1/")
	done := make(chan error, 1)
	go func() { done <- h.ctrl.UpdateModules(ctx, []model.Module{{Name: "resample", Group: []string{"process"}}}) }()

	require.Eventually(t, func() bool {
		p, _ := h.ctrl.Pipeline()
		return len(p.Modules) == 1 && p.Modules[0].UUID == ""
	}, 2*time.Second, 5*time.Millisecond)

	release()
	require.NoError(t, <-done)
	p, _ := h.ctrl.Pipeline()
	require.Len(t, p.Modules, 1)
	assert.NotEmpty(t, p.Modules[0].UUID)
}

func TestUpdateModules_FailureRestoresList(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	ctx := context.Background()
	require.NoError(t, h.ctrl.Load(ctx))
	h.srv.Fail(http.MethodPost, analysisPath, http.StatusBadRequest, "invalid module")

	err := h.ctrl.UpdateModules(ctx, nil)

	require.Error(t, err)
	p, _ := h.ctrl.Pipeline()
	assert.Len(t, p.Modules, 2)
	assert.Equal(t, []string{"storing the pipeline failed"}, h.notifier.Failures())
}

func TestUpdateModules_GroupLimit(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	ctx := context.Background()
	require.NoError(t, h.ctrl.Load(ctx))
	p, _ := h.ctrl.Pipeline()

	modules := modgraph.AddModule(p.Modules, "pls")
	modules[len(modules)-1].Group = []string{"reduction"}
	err := h.ctrl.UpdateModules(ctx, modules)

	assert.ErrorIs(t, err, modgraph.ErrGroupLimit)
	assert.Zero(t, h.srv.RequestCount(http.MethodPost, analysisPath))
}

func TestUpdate_StaleResponseDiscarded(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	ctx := context.Background()
	require.NoError(t, h.ctrl.Load(ctx))

	// a load is held at the server while an update completes
	release := h.srv.Hold(http.MethodGet, analysisPath)
	loaded := make(chan error, 1)
	go func() { loaded <- h.ctrl.Load(ctx) }()
	require.Eventually(t, func() bool { return h.srv.RequestCount(http.MethodGet, analysisPath) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Update(ctx, map[string]any{"name": "newer"}))
	h.srv.PutPipeline(model.KindAnalysis, analysisPipeline(nil))
	release()
	require.NoError(t, <-loaded)

	p, _ := h.ctrl.Pipeline()
	assert.Equal(t, "newer", p.Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StaleResponses.WithLabelValues("pipeline")))
}

// =============================================================================
// Process Control Tests
// =============================================================================

func TestRun_QueuesAndReloads(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))

	require.NoError(t, h.ctrl.Run(context.Background()))

	assert.Equal(t, []string{MsgQueued}, h.notifier.Successes())
	assert.True(t, h.ctrl.Status().Running)
	assert.True(t, h.ctrl.PollPending())
}

func TestStop_SchedulesQuickRefetch(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(running(model.StateFinished)))
	ctx := context.Background()
	require.NoError(t, h.ctrl.Load(ctx))

	require.NoError(t, h.ctrl.Stop(ctx))
	assert.Equal(t, []string{MsgStopped}, h.notifier.Successes())
	assert.True(t, h.ctrl.PollPending())

	h.clock.Advance(time.Second)
	assert.Equal(t, 2, h.srv.RequestCount(http.MethodGet, analysisPath))
	assert.Equal(t, model.StateKilled, h.ctrl.Status().State)
}

func TestStop_Failure(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	h.srv.Fail(http.MethodPost, analysisPath+"stop/", http.StatusConflict, "not running")

	err := h.ctrl.Stop(context.Background())

	assert.Error(t, err)
	assert.False(t, h.ctrl.PollPending())
	assert.Equal(t, []string{"stopping the pipeline failed"}, h.notifier.Failures())
}

func TestCopy_NavigatesToCopy(t *testing.T) {
	h := newHarness(t, model.KindPreprocess, model.Pipeline{UUID: "p1", Name: "base"})

	id, err := h.ctrl.Copy(context.Background())

	require.NoError(t, err)
	assert.NotEqual(t, "p1", id)
	assert.Equal(t, []string{"/preprocessing/" + id}, h.navigated)
	assert.Equal(t, []string{MsgCopied}, h.notifier.Successes())
	_, ok := h.srv.Pipeline(model.KindPreprocess, id)
	assert.True(t, ok)
}

func TestDelete_Declined(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	h.confirm = false

	deleted, err := h.ctrl.Delete(context.Background())

	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Zero(t, h.srv.RequestCount(http.MethodDelete, analysisPath))
	assert.Empty(t, h.navigated)
}

func TestDelete_Confirmed(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(running(model.StateStarted)))
	require.NoError(t, h.ctrl.Load(context.Background()))

	deleted, err := h.ctrl.Delete(context.Background())

	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{model.DashboardPath}, h.navigated)
	assert.Equal(t, []string{MsgDeleted}, h.notifier.Successes())
	assert.True(t, h.ctrl.NeedsLoad())
	assert.False(t, h.ctrl.PollPending())
}

// =============================================================================
// Source Preview Tests
// =============================================================================

func previewBodies(t *testing.T, srv *testserver.Server) []model.Values {
	t.Helper()
	var out []model.Values
	for _, r := range srv.Requests(http.MethodPost, previewPath) {
		var body struct {
			ParameterValues model.Values `json:"parameter_values"`
		}
		require.NoError(t, json.Unmarshal(r.Body, &body))
		out = append(out, body.ParameterValues)
	}
	return out
}

func TestSourcePreview_DebounceCollapses(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))

	h.ctrl.SourcePreview(model.Values{"glob": "A"})
	h.clock.Advance(500 * time.Millisecond)
	h.ctrl.SourcePreview(model.Values{"glob": "B"})
	assert.True(t, h.ctrl.PreviewPending())

	h.clock.Advance(999 * time.Millisecond)
	assert.Empty(t, previewBodies(t, h.srv))

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, []model.Values{{"glob": "B"}}, previewBodies(t, h.srv))
	_, ok := h.ctrl.CurrentSourcePreview()
	assert.True(t, ok)
}

func TestRequestSourcePreview_InlineErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		want   string
	}{
		{name: "server message", status: http.StatusBadRequest, body: map[string]string{"error": "no files match"}, want: "no files match"},
		{name: "no message", status: http.StatusInternalServerError, body: map[string]string{}, want: PreviewFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
			h.srv.SetSourcePreview(func(string, model.Values) (int, any) { return tt.status, tt.body })

			h.ctrl.RequestSourcePreview(context.Background(), model.Values{"glob": "x"})

			preview, ok := h.ctrl.CurrentSourcePreview()
			require.True(t, ok)
			assert.True(t, preview.Failed())
			assert.Equal(t, tt.want, preview.Error)
		})
	}
}

func TestRequestSourcePreview_ClearedWhileInFlight(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	release := h.srv.Hold(http.MethodPost, previewPath)
	done := make(chan struct{})
	go func() {
		h.ctrl.RequestSourcePreview(context.Background(), model.Values{"glob": "old"})
		close(done)
	}()
	require.Eventually(t, func() bool { return h.srv.RequestCount(http.MethodPost, previewPath) == 1 }, 2*time.Second, 5*time.Millisecond)

	h.store.ClearSourcePreview("a1")
	release()
	<-done

	_, ok := h.ctrl.CurrentSourcePreview()
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StaleResponses.WithLabelValues("source_preview")))
}

func TestEditedModuleChanged(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	src := &model.Module{UUID: "m-src", Name: model.SourceModuleName, ParameterValues: model.Values{"glob": "*.nii"}}
	other := &model.Module{UUID: "m-red", Name: "pca"}

	h.ctrl.EditedModuleChanged(src)
	assert.Equal(t, []model.Values{{"glob": "*.nii"}}, previewBodies(t, h.srv))

	// the same module again toggles the focus off
	h.ctrl.EditedModuleChanged(src)
	assert.Len(t, previewBodies(t, h.srv), 1)

	h.ctrl.EditedModuleChanged(other)
	h.ctrl.EditedModuleChanged(nil)
	assert.Len(t, previewBodies(t, h.srv), 1)

	h.ctrl.EditedModuleChanged(src)
	assert.Len(t, previewBodies(t, h.srv), 2)
}

func TestModuleFormChanged_OnlySourceModule(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))

	h.ctrl.ModuleFormChanged(model.Module{Name: "pca"}, model.Values{"n": 3})
	assert.False(t, h.ctrl.PreviewPending())

	h.ctrl.ModuleFormChanged(model.Module{Name: model.SourceModuleName}, model.Values{"glob": "*.csv"})
	assert.True(t, h.ctrl.PreviewPending())
	h.clock.Advance(time.Second)
	assert.Equal(t, []model.Values{{"glob": "*.csv"}}, previewBodies(t, h.srv))
}

func TestSetAttributeMapping(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	values := model.Values{"glob": "*.nii", model.TableMappingParam: map[string]any{"old": "x"}}

	next := h.ctrl.SetAttributeMapping(values, map[string]any{"age": "Age"})

	assert.Equal(t, map[string]any{"age": "Age"}, next[model.TableMappingParam])
	assert.Equal(t, map[string]any{"old": "x"}, values[model.TableMappingParam])
	h.clock.Advance(time.Second)
	bodies := previewBodies(t, h.srv)
	require.Len(t, bodies, 1)
	assert.Equal(t, map[string]any{"age": "Age"}, bodies[0][model.TableMappingParam])
}

// =============================================================================
// Push Observation Tests
// =============================================================================

func TestStatusTrigger_RefetchesStatus(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	h.srv.SetStatus(map[string]any{"workers": 2.0})

	h.store.TriggerStatus()

	require.Eventually(t, func() bool { return h.store.Status() != nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]any{"workers": 2.0}, h.store.Status())
}

func TestSession_RequestsMissingReductionPreview(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))

	h.store.SetSession("s1")
	assert.Len(t, h.pusher.Sent(), 1)

	h.store.SetPushPayload(store.PushKey{Plugin: "analysis", UUID: "a1", Topic: model.ReductionPreviewTopic}, "img")
	h.store.SetSession("s2")
	assert.Len(t, h.pusher.Sent(), 1)

	preview, ok := h.ctrl.ReductionPreview()
	require.True(t, ok)
	assert.Equal(t, "img", preview)
}

func TestLoad_PushFailureIgnored(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	h.pusher.err = errors.New("push channel not connected")

	assert.NoError(t, h.ctrl.Load(context.Background()))
}

// =============================================================================
// Editor Wiring Tests
// =============================================================================

func TestEditor_ChangesGoThroughController(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	ctx := context.Background()
	_, err := h.ctrl.Editor()
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, h.ctrl.Load(ctx))
	editor, err := h.ctrl.Editor()
	require.NoError(t, err)

	assert.False(t, editor.CanAdd("reduction"))
	assert.ErrorIs(t, editor.Add(ctx, "reduction", "pls"), modgraph.ErrGroupLimit)

	require.NoError(t, editor.Add(ctx, "process", "harmonize"))
	modules := editor.Modules()
	require.Len(t, modules, 3)
	assert.NotEmpty(t, modules[2].UUID, "server identity flows back into the editor")

	// editing the source module previews it immediately
	require.NoError(t, editor.BeginEdit("m-src"))
	assert.Len(t, previewBodies(t, h.srv), 1)
	require.NoError(t, editor.FormChanged(model.Values{"glob": "*.gz"}))
	assert.True(t, h.ctrl.PreviewPending())
	require.NoError(t, editor.CommitEdit(ctx, model.Values{"glob": "*.gz"}))

	p, _ := h.ctrl.Pipeline()
	src, _ := p.ModuleByUUID("m-src")
	assert.Equal(t, "*.gz", src.ParameterValues["glob"])
}

func TestModuleObjects(t *testing.T) {
	h := newHarness(t, model.KindPreprocess, model.Pipeline{UUID: "p1", LatestProcessData: running(model.StateFinished)})
	h.srv.SetModuleObjects("run-1", "m1", true, []string{"/data/a.nii"})
	ctx := context.Background()

	_, err := h.ctrl.ModuleObjects(ctx, "m1", true)
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, h.ctrl.Load(ctx))
	files, err := h.ctrl.ModuleObjects(ctx, "m1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/a.nii"}, files)
	cached, ok := h.store.ModuleObjects(store.ObjectsKey{ProcessUUID: "run-1", ModuleUUID: "m1", Source: true})
	assert.True(t, ok)
	assert.Equal(t, files, cached)
}

func TestShowResult_Cached(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(nil))
	h.srv.SetResult("r1", map[string]any{"score": 1.0})
	ctx := context.Background()

	r, err := h.ctrl.ShowResult(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"score": 1.0}, r)
	_, err = h.ctrl.ShowResult(ctx, "r1")
	require.NoError(t, err)

	assert.Equal(t, 1, h.srv.RequestCount(http.MethodGet, "/api/analysis/results/r1/"))
}

func TestClose_CancelsTimers(t *testing.T) {
	h := newHarness(t, model.KindAnalysis, analysisPipeline(running(model.StateStarted)))
	require.NoError(t, h.ctrl.Load(context.Background()))
	h.ctrl.SourcePreview(model.Values{})
	require.Equal(t, 2, h.clock.Pending())

	h.ctrl.Close()

	assert.Zero(t, h.clock.Pending())
	assert.ErrorIs(t, h.ctrl.Load(context.Background()), ErrClosed)
}

func TestCreate_RefreshesTable(t *testing.T) {
	srv := testserver.New(t)
	client, err := api.New(api.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	st := store.New()
	tables := tableview.New(client, st, nil)

	_, err = Create(context.Background(), client, st, tables, model.KindAnalysis, "", "")
	assert.Error(t, err)

	p, err := Create(context.Background(), client, st, tables, model.KindAnalysis, "new", "desc")
	require.NoError(t, err)
	created, ok := st.Created(model.KindAnalysis)
	require.True(t, ok)
	assert.Equal(t, p.UUID, created.UUID)
	assert.Equal(t, 1, srv.RequestCount(http.MethodGet, "/api/analysis/table/"))
}
