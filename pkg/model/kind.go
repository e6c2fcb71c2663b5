// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model holds the client-side data model of the designer: pipelines,
// modules, form schemas, process runs and file listings, together with the
// pure derivations computed from them (process status, progress, average
// analysis result).
//
// Everything in this package is plain data. Types are decoded straight from
// the server's JSON resources and never talk to the network.
package model

import (
	"fmt"
	"time"
)

// Kind selects one of the two pipeline families served by the backend.
type Kind string

const (
	KindPreprocess Kind = "preprocess"
	KindAnalysis   Kind = "analysis"
)

// Kinds lists every pipeline kind in display order.
var Kinds = []Kind{KindPreprocess, KindAnalysis}

// ParseKind validates a user supplied kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPreprocess, KindAnalysis:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown pipeline kind %q (want preprocess or analysis)", s)
}

// BasePath is the REST prefix of the kind, e.g. "/api/analysis/".
func (k Kind) BasePath() string {
	return "/api/" + string(k) + "/"
}

// ResourcePath is the REST template of a single pipeline of this kind.
// The ":uuid" placeholder is substituted by the remote access layer.
func (k Kind) ResourcePath() string {
	return k.BasePath() + ":uuid/"
}

// Plugin is the push-channel plugin name serving pipelines of this kind.
func (k Kind) Plugin() string {
	return string(k)
}

// ViewPath is the navigation target for a pipeline of this kind.
func (k Kind) ViewPath(uuid string) string {
	if k == KindPreprocess {
		return "/preprocessing/" + uuid
	}
	return "/" + string(k) + "/" + uuid
}

// DashboardPath is the navigation target after a pipeline was deleted.
const DashboardPath = "/"

// PollDelay is the default delay between two fetches of a running pipeline.
func (k Kind) PollDelay() time.Duration {
	if k == KindAnalysis {
		return 5 * time.Second
	}
	return 2 * time.Second
}

// StopDelay is the default delay of the re-fetch that follows a stop request.
func (k Kind) StopDelay() time.Duration {
	if k == KindAnalysis {
		return time.Second
	}
	return 2 * time.Second
}
