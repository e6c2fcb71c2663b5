// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schedule

import (
	"sync"
	"time"
)

// Slot holds at most one pending deferred action.
//
// # Description
//
// Scheduling replaces whatever was pending. A generation counter guards
// against a superseded timer whose callback was already running when it
// got replaced: such a callback returns without calling its function.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
//
// # Example
//
//	poll := schedule.NewSlot(schedule.RealClock())
//	poll.Schedule(5*time.Second, func() { ctrl.Load(ctx) })
//	defer poll.Cancel()
type Slot struct {
	clock Clock

	mu    sync.Mutex
	gen   uint64
	timer Timer
}

// NewSlot creates an empty slot. A nil clock means the wall clock.
func NewSlot(clock Clock) *Slot {
	if clock == nil {
		clock = RealClock()
	}
	return &Slot{clock: clock}
}

// Schedule cancels the pending action, if any, and arranges for fn to run
// after d.
func (s *Slot) Schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending action. Returns true if one was pending.
func (s *Slot) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	return true
}

// Pending reports whether an action is waiting to fire.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
