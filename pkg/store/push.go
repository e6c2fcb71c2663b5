// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"maps"
	"strings"
)

// PushKey addresses one cached push payload.
type PushKey struct {
	Plugin string
	UUID   string
	Topic  string
}

// String renders the wire name "plugin:uuid:topic".
func (k PushKey) String() string {
	return k.Plugin + ":" + k.UUID + ":" + k.Topic
}

// ParsePushKey splits a namespaced message name. Names without exactly
// three non-empty parts are rejected.
func ParsePushKey(name string) (PushKey, bool) {
	parts := strings.Split(name, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return PushKey{}, false
	}
	return PushKey{Plugin: parts[0], UUID: parts[1], Topic: parts[2]}, true
}

// SetPushPayload caches the latest payload of a key. Earlier payloads of
// the same key are replaced, other topics of the uuid are kept.
func (s *Store) SetPushPayload(key PushKey, data any) {
	s.update(Change{Topic: TopicPush, Key: key.String()}, func(st State) *State {
		byUUID := st.Push[key.Plugin]
		topics := with(byUUID[key.UUID], key.Topic, data)
		st.Push = with(st.Push, key.Plugin, with(byUUID, key.UUID, topics))
		return &st
	})
}

// PushPayload returns the cached payload of a key.
func (s *Store) PushPayload(key PushKey) (any, bool) {
	st := s.Snapshot()
	data, ok := st.Push[key.Plugin][key.UUID][key.Topic]
	return data, ok
}

// PushTopics returns a copy of every cached topic of a plugin uuid.
func (s *Store) PushTopics(plugin, uuid string) map[string]any {
	st := s.Snapshot()
	return maps.Clone(st.Push[plugin][uuid])
}

// FocusPush makes uuid the current pipeline of a plugin: cached topics of
// every other uuid of that plugin are dropped, topics of uuid are kept.
func (s *Store) FocusPush(plugin, uuid string) {
	s.update(Change{Topic: TopicPush, Key: plugin + ":" + uuid}, func(st State) *State {
		topics := st.Push[plugin][uuid]
		if topics == nil {
			topics = map[string]any{}
		}
		st.Push = with(st.Push, plugin, map[string]map[string]any{uuid: topics})
		return &st
	})
}

// SetSession records the push session id announced by the server.
func (s *Store) SetSession(id string) {
	s.update(Change{Topic: TopicSession}, func(st State) *State {
		st.SessionID = id
		return &st
	})
}

// Session returns the push session id, empty while disconnected.
func (s *Store) Session() string {
	return s.Snapshot().SessionID
}

// TriggerStatus records a status_change notification. Observers of
// TopicStatusTrigger re-fetch the global status.
func (s *Store) TriggerStatus() uint64 {
	var n uint64
	s.update(Change{Topic: TopicStatusTrigger}, func(st State) *State {
		st.StatusTrigger++
		n = st.StatusTrigger
		return &st
	})
	return n
}

// SetDashboard stores the dashboard summary.
func (s *Store) SetDashboard(data map[string]any) {
	s.update(Change{Topic: TopicDashboard}, func(st State) *State {
		st.Dashboard = data
		return &st
	})
}

// Dashboard returns the stored dashboard summary.
func (s *Store) Dashboard() map[string]any {
	return s.Snapshot().Dashboard
}

// SetStatus stores the global server status.
func (s *Store) SetStatus(data map[string]any) {
	s.update(Change{Topic: TopicStatus}, func(st State) *State {
		st.Status = data
		return &st
	})
}

// Status returns the stored global server status.
func (s *Store) Status() map[string]any {
	return s.Snapshot().Status
}
