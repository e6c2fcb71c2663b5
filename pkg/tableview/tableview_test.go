// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tableview

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainage/bad-designer/internal/testserver"
	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/store"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want url.Values
	}{
		{name: "zero values omitted", opts: Options{}, want: url.Values{}},
		{
			name: "paging and sort",
			opts: Options{Offset: 20, Limit: 10, Sort: "-date_created"},
			want: url.Values{"_offset": {"20"}, "_limit": {"10"}, "_sort": {"-date_created"}},
		},
		{
			name: "filters are plain keys",
			opts: Options{Limit: 5, Filters: map[string]string{"status": "finished", "name": "x"}},
			want: url.Values{"_limit": {"5"}, "status": {"finished"}, "name": {"x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.opts))
		})
	}
}

func newTables(t *testing.T) (*Tables, *store.Store, *testserver.Server) {
	t.Helper()
	srv := testserver.New(t)
	client, err := api.New(api.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	st := store.New()
	return New(client, st, nil), st, srv
}

func TestRequest_SendsStoredOptions(t *testing.T) {
	tables, st, srv := newTables(t)
	path := api.TablePath(model.KindAnalysis)
	srv.SetTable(path, model.TableResponse{Total: 42, Rows: []map[string]any{{"name": "a"}}})

	tables.SetOptions("dashboard", path, Options{Limit: 10, Sort: "name", Filters: map[string]string{"q": "x"}})
	entry, _ := st.Table(store.TableKey{Namespace: "dashboard", URL: path})
	assert.True(t, entry.NeedsUpdate)

	resp, err := tables.Request(context.Background(), "dashboard", path)
	require.NoError(t, err)
	assert.Equal(t, 42, resp.Total)
	assert.False(t, resp.FetchedAt.IsZero())

	reqs := srv.Requests(http.MethodGet, path)
	require.Len(t, reqs, 1)
	assert.Equal(t, url.Values{"_limit": {"10"}, "_sort": {"name"}, "q": {"x"}}, reqs[0].Query)

	entry, _ = st.Table(store.TableKey{Namespace: "dashboard", URL: path})
	assert.False(t, entry.NeedsUpdate)
	require.NotNil(t, entry.Response)
	assert.Equal(t, 42, entry.Response.Total)
}

func TestRequest_NamespacesAreIndependent(t *testing.T) {
	tables, _, srv := newTables(t)
	path := "/api/process/table/"

	tables.Page("a", path, 2, 10)
	tables.Page("b", path, 0, 25)
	_, err := tables.Request(context.Background(), "a", path)
	require.NoError(t, err)
	_, err = tables.Request(context.Background(), "b", path)
	require.NoError(t, err)

	reqs := srv.Requests(http.MethodGet, path)
	require.Len(t, reqs, 2)
	assert.Equal(t, "20", reqs[0].Query.Get("_offset"))
	assert.Equal(t, "", reqs[1].Query.Get("_offset"))
	assert.Equal(t, "25", reqs[1].Query.Get("_limit"))
}

func TestRequest_FailureKeepsCachedPage(t *testing.T) {
	tables, st, srv := newTables(t)
	path := "/api/process/event/table/"
	srv.SetTable(path, model.TableResponse{Total: 1})
	_, err := tables.Request(context.Background(), "", path)
	require.NoError(t, err)

	srv.Fail(http.MethodGet, path, http.StatusInternalServerError, "boom")
	_, err = tables.Request(context.Background(), "", path)

	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
	entry, _ := st.Table(store.TableKey{URL: path})
	require.NotNil(t, entry.Response)
	assert.Equal(t, 1, entry.Response.Total)
}

func TestRefreshStale(t *testing.T) {
	tables, _, srv := newTables(t)
	tables.SetOptions("x", "/api/process/table/", Options{Limit: 1})
	tables.SetOptions("y", "/api/analysis/results/table/", Options{Limit: 2})
	_, err := tables.Request(context.Background(), "y", "/api/analysis/results/table/")
	require.NoError(t, err)

	require.NoError(t, tables.RefreshStale(context.Background()))

	assert.Equal(t, 1, srv.RequestCount(http.MethodGet, "/api/process/table/"))
	assert.Equal(t, 1, srv.RequestCount(http.MethodGet, "/api/analysis/results/table/"))
}
