// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"math"

	"github.com/go-openapi/strfmt"
)

// ProcessState is the state of the latest process run of a pipeline.
type ProcessState string

const (
	StateStopped   ProcessState = "stopped"
	StateStub      ProcessState = "stub"
	StateRequested ProcessState = "requested"
	StateStarted   ProcessState = "started"
	StateFinished  ProcessState = "finished"
	StateFailed    ProcessState = "failed"
	StateKilled    ProcessState = "killed"
)

// EventAnalysisResult is the event type carrying the average analysis result.
const EventAnalysisResult = "analysis_result"

// Event is one entry of a process run's event log.
type Event struct {
	Type        string          `json:"type"`
	Timestamp   strfmt.DateTime `json:"timestamp"`
	DateCreated strfmt.DateTime `json:"date_created"`
	Data        map[string]any  `json:"data,omitempty"`
}

// ObjectCount holds per-module object counts of a run, split by the side
// of the module (source modules read objects, all others write them).
type ObjectCount struct {
	Source map[string]int `json:"source"`
	Target map[string]int `json:"target"`
}

// RunProgress is the server's free-form progress report.
type RunProgress struct {
	Title string         `json:"title"`
	Data  map[string]any `json:"data,omitempty"`
}

// ProcessRun is the latest execution attempt of a pipeline.
type ProcessRun struct {
	UUID              string          `json:"uuid"`
	Name              string          `json:"name,omitempty"`
	SourceUUID        string          `json:"source_uuid,omitempty"`
	Status            ProcessState    `json:"status"`
	DateCreated       strfmt.DateTime `json:"date_created"`
	DateUpdated       strfmt.DateTime `json:"date_updated"`
	Events            []Event         `json:"events,omitempty"`
	SourceObjectCount map[string]int  `json:"source_object_count,omitempty"`
	ObjectCount       *ObjectCount    `json:"object_count,omitempty"`
	Progress          *RunProgress    `json:"progress,omitempty"`
}

// Status is the derived run status shown by a pipeline view.
type Status struct {
	State    ProcessState
	Running  bool
	CanStart bool
	CanStop  bool
}

// DeriveStatus computes the view status of a run.
//
// # Description
//
// No run means stopped and startable. A run is running while requested or
// started and can be (re)started once finished, failed or killed. A stub run
// is neither.
//
// # Inputs
//
//   - run: The latest process run, nil if the pipeline never ran.
//
// # Outputs
//
//   - Status: Derived flags.
func DeriveStatus(run *ProcessRun) Status {
	if run == nil || run.Status == "" {
		return Status{State: StateStopped, CanStart: true}
	}
	s := Status{State: run.Status}
	switch run.Status {
	case StateRequested, StateStarted:
		s.Running = true
		s.CanStop = true
	case StateFinished, StateFailed, StateKilled:
		s.CanStart = true
	}
	return s
}

// Progress is the aggregate object progress of a run.
type Progress struct {
	All     int
	Done    int
	Percent float64
}

// ComputeProgress aggregates per-module counts of a run.
//
// # Description
//
// All is the sum of source_object_count over every module, Done the sum of
// object_count.source. Percent is rounded to one decimal.
//
// # Outputs
//
//   - *Progress: nil when either count is missing or All is zero.
//
// # Example
//
//	ComputeProgress(&ProcessRun{
//	    SourceObjectCount: map[string]int{"m1": 2, "m2": 1},
//	    ObjectCount:       &ObjectCount{Source: map[string]int{"m1": 1}},
//	}) // {All: 3, Done: 1, Percent: 33.3}
func ComputeProgress(run *ProcessRun) *Progress {
	if run == nil || run.SourceObjectCount == nil || run.ObjectCount == nil || run.ObjectCount.Source == nil {
		return nil
	}
	all := 0
	for _, n := range run.SourceObjectCount {
		all += n
	}
	if all == 0 {
		return nil
	}
	done := 0
	for _, n := range run.ObjectCount.Source {
		done += n
	}
	return &Progress{
		All:     all,
		Done:    done,
		Percent: math.Round(float64(done)/float64(all)*1000) / 10,
	}
}

// AverageResult returns data.average of the first analysis_result event,
// or nil when no such event exists.
func AverageResult(run *ProcessRun) any {
	if run == nil {
		return nil
	}
	for _, e := range run.Events {
		if e.Type == EventAnalysisResult {
			if e.Data == nil {
				return nil
			}
			return e.Data["average"]
		}
	}
	return nil
}

// ModuleObjectCount is the object count shown on a module's files badge:
// the target count when present, else the source count, else zero.
func ModuleObjectCount(run *ProcessRun, moduleUUID string) int {
	if run == nil || run.ObjectCount == nil || moduleUUID == "" {
		return 0
	}
	count := 0
	if n := run.ObjectCount.Source[moduleUUID]; n != 0 {
		count = n
	}
	if n := run.ObjectCount.Target[moduleUUID]; n != 0 {
		count = n
	}
	return count
}
