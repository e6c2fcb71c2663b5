// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tableview fetches and caches paged table listings.
//
// A table view is addressed by a namespace and the listing URL, so the
// same listing can be shown twice with independent paging. Options are
// kept in the store; Request sends them as `_offset`, `_limit`, `_sort`
// and one plain query key per filter.
package tableview

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/logging"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/schedule"
	"github.com/brainage/bad-designer/pkg/store"
)

// Options is the paging, sorting and filtering of one table view.
type Options = model.TableQuery

// Query parameter names of the paging options.
const (
	ParamOffset = "_offset"
	ParamLimit  = "_limit"
	ParamSort   = "_sort"
)

// BuildQuery renders options as query parameters. Zero values are left
// out.
func BuildQuery(opts Options) url.Values {
	q := url.Values{}
	if opts.Offset != 0 {
		q.Set(ParamOffset, strconv.Itoa(opts.Offset))
	}
	if opts.Limit != 0 {
		q.Set(ParamLimit, strconv.Itoa(opts.Limit))
	}
	if opts.Sort != "" {
		q.Set(ParamSort, opts.Sort)
	}
	for k, v := range opts.Filters {
		q.Set(k, v)
	}
	return q
}

// Tables fetches table pages into the store.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent requests of the same view share one
// round trip.
type Tables struct {
	api    *api.Client
	store  *store.Store
	logger *logging.Logger
	clock  schedule.Clock
	group  singleflight.Group
}

// New creates a table fetcher. A nil logger discards.
func New(client *api.Client, st *store.Store, logger *logging.Logger) *Tables {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tables{
		api:    client,
		store:  st,
		logger: logger.With("component", "tableview"),
		clock:  schedule.RealClock(),
	}
}

// SetOptions replaces the options of a view and marks it for re-fetch.
func (t *Tables) SetOptions(namespace, listURL string, opts Options) {
	t.store.UpdateTableQuery(store.TableKey{Namespace: namespace, URL: listURL}, opts)
}

// Options returns the options of a view.
func (t *Tables) Options(namespace, listURL string) Options {
	e, _ := t.store.Table(store.TableKey{Namespace: namespace, URL: listURL})
	return e.Query
}

// Page moves a view to a page. page is zero based.
func (t *Tables) Page(namespace, listURL string, page, size int) {
	opts := t.Options(namespace, listURL)
	opts.Limit = size
	opts.Offset = page * size
	t.SetOptions(namespace, listURL, opts)
}

// Request fetches the current page of a view with its stored options.
//
// # Outputs
//
//   - model.TableResponse: The page, also cached in the store.
//   - error: Request error. The cached page is kept.
func (t *Tables) Request(ctx context.Context, namespace, listURL string) (model.TableResponse, error) {
	key := store.TableKey{Namespace: namespace, URL: listURL}
	v, err, _ := t.group.Do(namespace+"\x00"+listURL, func() (any, error) {
		entry, _ := t.store.Table(key)
		resp, err := t.api.Table(ctx, listURL, BuildQuery(entry.Query))
		if err != nil {
			t.logger.Warn("table request failed", "namespace", namespace, "url", listURL, "error", err)
			return nil, fmt.Errorf("table %s: %w", listURL, err)
		}
		resp.FetchedAt = t.clock.Now()
		t.store.SetTableResponse(key, resp)
		return resp, nil
	})
	if err != nil {
		return model.TableResponse{}, err
	}
	return v.(model.TableResponse), nil
}

// RefreshStale re-fetches every cached view marked for update.
func (t *Tables) RefreshStale(ctx context.Context) error {
	var keys []store.TableKey
	for key, e := range t.store.Snapshot().Tables {
		if e.NeedsUpdate {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Namespace != keys[j].Namespace {
			return keys[i].Namespace < keys[j].Namespace
		}
		return keys[i].URL < keys[j].URL
	})

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, key := range keys {
		g.Go(func() error {
			_, err := t.Request(ctx, key.Namespace, key.URL)
			return err
		})
	}
	return g.Wait()
}
