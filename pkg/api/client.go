// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api is the remote access layer of the designer client.
//
// # Description
//
// Client sends JSON requests to the pipeline server and turns replies into
// either a Response or a typed error. It never retries and never touches
// client-side state: every result flows back to the caller, which decides
// what to cache.
//
// Every request is rate limited, tagged with an X-Request-ID, wrapped in an
// OpenTelemetry span and counted in the client metrics.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/brainage/bad-designer/pkg/logging"
	"github.com/brainage/bad-designer/pkg/metrics"
)

// UUIDPlaceholder is substituted by Path.
const UUIDPlaceholder = ":uuid"

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

var tracer = otel.Tracer("bad.api")

// =============================================================================
// Configuration
// =============================================================================

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:9009". Paths
	// passed to Send start with "/api/".
	BaseURL string

	// HTTPClient performs the requests. Default: a client without timeout,
	// so that only the caller's context bounds a request.
	HTTPClient *http.Client

	// RateLimit is the sustained request rate per second. Default: 20.
	RateLimit float64

	// RateBurst is the maximum burst. Default: 10.
	RateBurst int

	// UserAgent is sent with every request. Default: "badctl".
	UserAgent string

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Client talks to the pipeline server.
//
// # Thread Safety
//
// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	agent   string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New creates a Client.
//
// # Outputs
//
//   - *Client: Ready client.
//   - error: Non-nil if BaseURL is not an absolute http(s) URL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", cfg.BaseURL)
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "badctl"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}

	return &Client{
		base:    base,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		agent:   cfg.UserAgent,
		logger:  cfg.Logger.With("component", "api"),
		metrics: cfg.Metrics,
	}, nil
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Path substitutes the :uuid placeholder of a path template.
//
// # Example
//
//	Path("/api/analysis/:uuid/start/", "ap-1") // "/api/analysis/ap-1/start/"
func Path(template, id string) string {
	return strings.Replace(template, UUIDPlaceholder, id, 1)
}

// =============================================================================
// Request Options
// =============================================================================

type requestOptions struct {
	uuid    string
	query   url.Values
	headers http.Header
	raw     bool
}

// Option customizes a single request.
type Option func(*requestOptions)

// WithUUID substitutes the :uuid placeholder of the path. The unsubstituted
// template is used as the route label in metrics and spans.
func WithUUID(id string) Option {
	return func(o *requestOptions) { o.uuid = id }
}

// WithQuery adds query parameters.
func WithQuery(q url.Values) Option {
	return func(o *requestOptions) {
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) Option {
	return func(o *requestOptions) { o.headers.Add(key, value) }
}

// WithRaw asks for a binary body instead of JSON.
func WithRaw() Option {
	return func(o *requestOptions) { o.raw = true }
}

// =============================================================================
// Response
// =============================================================================

// Response is a successful server reply.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// =============================================================================
// Send
// =============================================================================

// Send performs one request.
//
// # Description
//
// The body, when non-nil, is sent as JSON. A reply with status >= 400
// becomes an *APIError carrying the server's "error" (or "detail")
// message; a request that never got a reply becomes a *TransportError.
// There are no retries.
//
// # Inputs
//
//   - ctx: Bounds the rate limiter wait and the round trip.
//   - method: HTTP method.
//   - path: Path template below the base URL, e.g. "/api/status/".
//   - body: JSON body or nil.
//   - opts: Request options.
//
// # Outputs
//
//   - *Response: The reply for statuses below 400.
//   - error: *APIError, *TransportError or an encoding error.
//
// # Example
//
//	resp, err := client.Send(ctx, http.MethodGet, "/api/analysis/:uuid/", nil, api.WithUUID(id))
func (c *Client) Send(ctx context.Context, method, path string, body any, opts ...Option) (*Response, error) {
	o := requestOptions{query: url.Values{}, headers: http.Header{}}
	for _, opt := range opts {
		opt(&o)
	}

	route := path
	if o.uuid != "" {
		path = Path(path, o.uuid)
	}
	requestID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "api."+method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "encode body")
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter")
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	target := *c.base
	target.Path = c.base.Path + path
	if len(o.query) > 0 {
		target.RawQuery = o.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.raw {
		req.Header.Set("Accept", "application/octet-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	for k, vs := range o.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	c.metrics.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())

	if err != nil {
		c.metrics.Requests.WithLabelValues(method, route, metrics.Outcome(0)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.Debug("api request failed",
			"method", method, "path", path, "request_id", requestID,
			"duration_ms", elapsed.Milliseconds(), "error", err)
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.Requests.WithLabelValues(method, route, metrics.Outcome(0)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}

	c.metrics.Requests.WithLabelValues(method, route, metrics.Outcome(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("api request",
		"method", method, "path", path, "status", resp.StatusCode,
		"request_id", requestID, "duration_ms", elapsed.Milliseconds())

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: serverMessage(data),
			Body:    data,
		}
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}

	return &Response{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      data,
		RequestID: requestID,
	}, nil
}

// sendJSON sends a request and decodes the JSON reply into out. A nil out
// discards the body.
func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any, opts ...Option) error {
	resp, err := c.Send(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	return resp.Decode(out)
}
