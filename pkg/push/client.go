// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package push implements the push notification channel of the designer
// client.
//
// # Description
//
// The server pushes `{name, data}` JSON envelopes over a websocket. Three
// kinds of names are understood:
//
//	welcome              data.client_id is the session id
//	status_change        content-free trigger to re-fetch the status
//	plugin:uuid:topic    payload cached per plugin, uuid and topic
//
// Run keeps the channel connected for the lifetime of its context. There
// is no attempt cap: whenever the connection fails or closes a new attempt
// is made, the first one immediately and later ones through a rate limiter.
//
// # Thread Safety
//
// Client is safe for concurrent use. Send may be called while Run is
// reading.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/brainage/bad-designer/pkg/logging"
	"github.com/brainage/bad-designer/pkg/metrics"
	"github.com/brainage/bad-designer/pkg/store"
)

// ErrNotConnected is returned by Send while the channel is down.
var ErrNotConnected = errors.New("push channel not connected")

// EndpointPath is the websocket endpoint below the push base URL.
const EndpointPath = "/ws/"

const (
	nameWelcome      = "welcome"
	nameStatusChange = "status_change"
)

// =============================================================================
// Connection State
// =============================================================================

// State is the connection state of the channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns "disconnected", "connecting" or "connected".
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Message is the wire envelope in both directions.
type Message struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// =============================================================================
// Client
// =============================================================================

// Config configures a push Client.
type Config struct {
	// URL is the push base URL, e.g. "ws://localhost:9009". EndpointPath is
	// appended unless the URL already ends with it.
	URL string

	// Store receives session ids, status triggers and plugin payloads.
	Store *store.Store

	Logger  *logging.Logger
	Metrics *metrics.Metrics

	// ReconnectInterval spaces reconnect attempts after the first one.
	// Only the first reconnect after a healthy period is immediate; later
	// ones wait for the limiter so a dead server is not dialled in a tight
	// loop. Default: 1s.
	ReconnectInterval time.Duration

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Header http.Header
}

// Client is the push channel.
type Client struct {
	url     string
	store   *store.Store
	logger  *logging.Logger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer
	header  http.Header
	limiter *rate.Limiter

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	writeMu sync.Mutex
}

// New creates a push client. Call Run to connect.
//
// # Inputs
//
//   - cfg: Client configuration. URL and Store are required.
//
// # Outputs
//
//   - *Client: Disconnected client.
//   - error: Non-nil if the URL is not a ws(s) or http(s) URL.
func New(cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, errors.New("push: store is required")
	}
	endpoint, err := endpointURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		url:     endpoint,
		store:   cfg.Store,
		logger:  cfg.Logger.With("component", "push"),
		metrics: cfg.Metrics,
		dialer:  cfg.Dialer,
		header:  cfg.Header,
		limiter: rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
	}, nil
}

// endpointURL maps http(s) to ws(s) and appends EndpointPath.
func endpointURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("push: invalid url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("push: invalid url %q: scheme must be ws or wss", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("push: invalid url %q: missing host", raw)
	}
	if !strings.HasSuffix(u.Path, EndpointPath) {
		u.Path = strings.TrimSuffix(u.Path, "/") + EndpointPath
	}
	return u.String(), nil
}

// URL returns the websocket endpoint the client dials.
func (c *Client) URL() string {
	return c.url
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State, conn *websocket.Conn) {
	if s == StateConnected {
		c.metrics.PushConnected.Set(1)
	} else {
		c.metrics.PushConnected.Set(0)
	}

	c.mu.Lock()
	c.state = s
	c.conn = conn
	c.mu.Unlock()
}

// Run connects and keeps the channel connected until ctx is cancelled.
//
// # Description
//
// Every closed or failed connection leads to a new attempt. The initial
// connect does not wait; reconnects pass through the limiter, whose single
// token makes the first reconnect after a healthy period immediate.
//
// # Outputs
//
//   - error: Always ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !first {
			if err := c.wait(ctx); err != nil {
				return err
			}
		}
		first = false

		c.setState(StateConnecting, nil)
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			c.setState(StateDisconnected, nil)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("push connect failed", "url", c.url, "error", err)
			continue
		}

		c.metrics.PushConnects.Inc()
		c.setState(StateConnected, conn)
		c.logger.Info("push channel connected", "url", c.url)

		err = c.serve(ctx, conn)

		c.setState(StateDisconnected, nil)
		c.store.SetSession("")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("push channel closed", "error", err)
	}
}

// wait blocks until the limiter grants the next reconnect or ctx ends.
// Unlike rate.Limiter.Wait it does not give up early when the next token
// lies beyond the context deadline.
func (c *Client) wait(ctx context.Context) error {
	r := c.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// serve reads envelopes until the connection fails or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handle(raw)
	}
}

// handle dispatches one inbound envelope into the store.
func (c *Client) handle(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.metrics.PushMessages.WithLabelValues("invalid").Inc()
		c.logger.Warn("push message dropped", "reason", "malformed json", "error", err)
		return
	}

	switch msg.Name {
	case nameWelcome:
		var welcome struct {
			ClientID string `json:"client_id"`
		}
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &welcome); err != nil {
				c.metrics.PushMessages.WithLabelValues("invalid").Inc()
				c.logger.Warn("push message dropped", "reason", "malformed welcome", "error", err)
				return
			}
		}
		c.metrics.PushMessages.WithLabelValues("welcome").Inc()
		c.store.SetSession(welcome.ClientID)
		c.logger.Debug("push session", "client_id", welcome.ClientID)

	case nameStatusChange:
		c.metrics.PushMessages.WithLabelValues("status_change").Inc()
		c.store.TriggerStatus()

	default:
		key, ok := store.ParsePushKey(msg.Name)
		if !ok {
			c.metrics.PushMessages.WithLabelValues("invalid").Inc()
			c.logger.Warn("push message dropped", "reason", "unknown name", "name", msg.Name)
			return
		}
		var data any
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.metrics.PushMessages.WithLabelValues("invalid").Inc()
				c.logger.Warn("push message dropped", "reason", "malformed data", "name", msg.Name)
				return
			}
		}
		c.metrics.PushMessages.WithLabelValues("plugin").Inc()
		c.store.SetPushPayload(key, data)
	}
}

// =============================================================================
// Outbound
// =============================================================================

// Send writes an envelope with the given name. data may be nil.
//
// # Outputs
//
//   - error: ErrNotConnected while the channel is down, or the write error.
func (c *Client) Send(name string, data any) error {
	msg := Message{Name: name}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("push: encode %s: %w", name, err)
		}
		msg.Data = raw
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("push: send %s: %w", name, err)
	}
	return nil
}

// SendToPlugin writes an envelope named "plugin:uuid:topic".
func (c *Client) SendToPlugin(plugin, uuid, topic string, data any) error {
	return c.Send(store.PushKey{Plugin: plugin, UUID: uuid, Topic: topic}.String(), data)
}

// Focus makes uuid the current pipeline of a plugin. Cached payloads of
// every other uuid of that plugin are dropped.
func (c *Client) Focus(plugin, uuid string) {
	c.store.FocusPush(plugin, uuid)
}
