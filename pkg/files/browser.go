// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package files

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/logging"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/schedule"
	"github.com/brainage/bad-designer/pkg/store"
)

var tracer = otel.Tracer("bad.files")

// ErrNotInTree is returned by Expand for a directory that the cached tree
// of the namespace does not contain.
var ErrNotInTree = errors.New("directory not in listing")

// Browser lists directories into the store.
//
// # Description
//
// Listings are cached per namespace, so two views (e.g. the source module
// form and the file browser command) keep separate trees. Listing a new
// root path replaces the tree of the namespace; Expand grows it in place.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent lists of the same namespace and path
// share one round trip.
type Browser struct {
	api    *api.Client
	store  *store.Store
	logger *logging.Logger
	clock  schedule.Clock
	group  singleflight.Group
}

// NewBrowser creates a browser. A nil logger discards, a nil clock is the
// wall clock.
func NewBrowser(client *api.Client, st *store.Store, logger *logging.Logger, clock schedule.Clock) *Browser {
	if logger == nil {
		logger = logging.Discard()
	}
	if clock == nil {
		clock = schedule.RealClock()
	}
	return &Browser{api: client, store: st, logger: logger.With("component", "files"), clock: clock}
}

// List fetches a directory and makes it the tree of a namespace.
//
// # Inputs
//
//   - namespace: Cache namespace of the view.
//   - path: Directory below the data root; normalized first.
//   - recursive: Ask the server to expand every directory from the root
//     down to path.
//
// # Outputs
//
//   - model.DirListing: The listing, also cached.
//   - error: Request error. The cached tree is kept.
func (b *Browser) List(ctx context.Context, namespace, path string, recursive bool) (model.DirListing, error) {
	path = TrimTrailingSlash(NormalizePath(path))
	key := namespace + "\x00" + path + "\x00" + strconv.FormatBool(recursive)
	v, err, _ := b.group.Do(key, func() (any, error) {
		ctx, span := tracer.Start(ctx, "files.List")
		span.SetAttributes(attribute.String("files.path", path), attribute.Bool("files.recursive", recursive))
		defer span.End()

		listing, err := b.api.Browse(ctx, path, recursive)
		if err != nil {
			span.RecordError(err)
			b.logger.Warn("browse failed", "namespace", namespace, "path", path, "error", err)
			return nil, fmt.Errorf("browse %s: %w", path, err)
		}
		b.store.SetListing(namespace, path, listing, b.clock.Now())
		tree, _ := b.store.Listing(namespace)
		return tree.Listing, nil
	})
	if err != nil {
		return model.DirListing{}, err
	}
	return v.(model.DirListing), nil
}

// Expand fetches a sub-directory of the cached tree and attaches it.
func (b *Browser) Expand(ctx context.Context, namespace, dir string) (model.DirListing, error) {
	dir = TrimTrailingSlash(NormalizePath(dir))
	child, err := b.api.Browse(ctx, dir, false)
	if err != nil {
		b.logger.Warn("expand failed", "namespace", namespace, "path", dir, "error", err)
		return model.DirListing{}, fmt.Errorf("browse %s: %w", dir, err)
	}
	if child.Path == "" {
		child.Path = dir
	}
	if !b.store.MergeListing(namespace, child) {
		return model.DirListing{}, fmt.Errorf("%w: %s", ErrNotInTree, dir)
	}
	return child, nil
}

// Up lists the parent of the namespace's current directory.
func (b *Browser) Up(ctx context.Context, namespace string) (model.DirListing, error) {
	tree, ok := b.store.Listing(namespace)
	if !ok {
		return b.List(ctx, namespace, "/", false)
	}
	return b.List(ctx, namespace, ParentPath(tree.Path), false)
}

// Tree returns the cached tree of a namespace.
func (b *Browser) Tree(namespace string) (store.FileTree, bool) {
	return b.store.Listing(namespace)
}

// Table reads an attribute table file. Read failures of the file itself
// come back inline in FileTable.Error.
func (b *Browser) Table(ctx context.Context, path string) (model.FileTable, error) {
	table, err := b.api.FileTable(ctx, NormalizePath(path))
	if err != nil {
		return model.FileTable{}, fmt.Errorf("file table %s: %w", path, err)
	}
	return table, nil
}
