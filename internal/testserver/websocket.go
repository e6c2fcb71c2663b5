// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package testserver

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s.wsMu.Lock()
	s.conns[conn] = struct{}{}
	s.accepted++
	welcome := s.welcome
	s.wsMu.Unlock()

	if welcome {
		_ = s.write(conn, "welcome", map[string]string{"client_id": uuid.NewString()})
	}

	defer func() {
		s.wsMu.Lock()
		delete(s.conns, conn)
		s.wsMu.Unlock()
		_ = conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.wsMu.Lock()
		s.received = append(s.received, json.RawMessage(raw))
		s.wsMu.Unlock()
	}
}

func (s *Server) write(conn *websocket.Conn, name string, data any) error {
	msg := map[string]any{"name": name}
	if data != nil {
		msg["data"] = data
	}
	// serialize writers of the same connection
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return conn.WriteJSON(msg)
}

// SetWelcome controls whether new connections receive a welcome message.
func (s *Server) SetWelcome(enabled bool) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	s.welcome = enabled
}

// Push sends an envelope to every connected client.
func (s *Server) Push(name string, data any) {
	for _, conn := range s.connections() {
		_ = s.write(conn, name, data)
	}
}

// PushRaw sends raw bytes to every connected client.
func (s *Server) PushRaw(raw []byte) {
	for _, conn := range s.connections() {
		s.wsMu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, raw)
		s.wsMu.Unlock()
	}
}

// Connections returns the number of open push connections.
func (s *Server) Connections() int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return len(s.conns)
}

// Accepted returns the number of push connections accepted so far.
func (s *Server) Accepted() int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return s.accepted
}

// Received returns the envelopes clients sent.
func (s *Server) Received() []json.RawMessage {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return append([]json.RawMessage(nil), s.received...)
}

// CloseWebsockets drops every push connection.
func (s *Server) CloseWebsockets() {
	for _, conn := range s.connections() {
		_ = conn.Close()
	}
}

func (s *Server) connections() []*websocket.Conn {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	out := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		out = append(out, conn)
	}
	return out
}
