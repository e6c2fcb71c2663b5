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
	"fmt"

	"github.com/brainage/bad-designer/pkg/api"
	"github.com/brainage/bad-designer/pkg/model"
	"github.com/brainage/bad-designer/pkg/store"
	"github.com/brainage/bad-designer/pkg/tableview"
)

// Create creates an empty pipeline, records the answer in the store and
// refreshes the kind's pipeline table if tables is not nil.
func Create(ctx context.Context, client *api.Client, st *store.Store, tables *tableview.Tables,
	kind model.Kind, name, description string) (model.Pipeline, error) {

	if name == "" {
		return model.Pipeline{}, fmt.Errorf("create %s: name is required", kind)
	}
	p, err := client.CreatePipeline(ctx, kind, name, description)
	if err != nil {
		return model.Pipeline{}, fmt.Errorf("create %s: %w", kind, err)
	}
	st.SetCreated(kind, p)

	if tables != nil {
		if _, err := tables.Request(ctx, "", api.TablePath(kind)); err != nil {
			return p, fmt.Errorf("create %s: refresh table: %w", kind, err)
		}
	}
	return p, nil
}
