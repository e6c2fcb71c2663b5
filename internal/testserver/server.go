// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package testserver is an in-process fake of the pipeline server used by
// package and command tests.
//
// # Description
//
// Server serves the REST surface and the push websocket over httptest. It
// keeps pipelines, runs, listings and images in memory, records every
// request, and lets a test inject failures, hold responses back or push
// messages to connected clients.
//
// # Example
//
//	srv := testserver.New(t)
//	srv.PutPipeline(model.KindAnalysis, model.Pipeline{UUID: "a1"})
//	client, _ := api.New(api.Config{BaseURL: srv.URL})
package testserver

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brainage/bad-designer/pkg/model"
)

// Request is one recorded REST request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Image is a fake image file.
type Image struct {
	Meta  model.ImageMeta
	Zooms []float64
	Data  []float32
}

type failure struct {
	status int
	body   any
}

// Server is the fake pipeline server.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	pipelines     map[model.Kind]map[string]model.Pipeline
	averages      map[string]map[string]any
	results       map[string]map[string]any
	processes     map[string]model.ProcessRun
	tables        map[string]model.TableResponse
	listings      map[string]model.DirListing
	fileTables    map[string]model.FileTable
	images        map[string]Image
	objects       map[string][]string
	dashboard     map[string]any
	status        map[string]any
	sourcePreview func(id string, values model.Values) (int, any)
	failures      map[string]failure
	holds         map[string]chan struct{}
	requests      []Request

	wsMu     sync.Mutex
	upgrader websocket.Upgrader
	conns    map[*websocket.Conn]struct{}
	received []json.RawMessage
	accepted int
	welcome  bool
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		pipelines:  map[model.Kind]map[string]model.Pipeline{},
		averages:   map[string]map[string]any{},
		results:    map[string]map[string]any{},
		processes:  map[string]model.ProcessRun{},
		tables:     map[string]model.TableResponse{},
		listings:   map[string]model.DirListing{},
		fileTables: map[string]model.FileTable{},
		images:     map[string]Image{},
		objects:    map[string][]string{},
		dashboard:  map[string]any{},
		status:     map[string]any{},
		failures:   map[string]failure{},
		holds:      map[string]chan struct{}{},
		conns:      map[*websocket.Conn]struct{}{},
		welcome:    true,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(func() {
		s.CloseWebsockets()
		s.Server.Close()
	})
	return s
}

// WSURL returns the push base URL of the server.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(s.intercept)

	r.GET("/ws/", s.handleWebsocket)

	r.GET("/api/dashboard/", func(c *gin.Context) { s.respondMap(c, s.dashboard) })
	r.GET("/api/status/", func(c *gin.Context) { s.respondMap(c, s.status) })

	for _, kind := range model.Kinds {
		k := kind
		g := r.Group("/api/" + string(k))
		g.POST("/", func(c *gin.Context) { s.createPipeline(c, k) })
		g.GET("/table/", s.table)
		g.GET("/:uuid/", func(c *gin.Context) { s.getPipeline(c, k) })
		g.POST("/:uuid/", func(c *gin.Context) { s.updatePipeline(c, k) })
		g.DELETE("/:uuid/", func(c *gin.Context) { s.deletePipeline(c, k) })
		g.POST("/:uuid/start/", func(c *gin.Context) { s.setRunState(c, k, model.StateRequested) })
		g.POST("/:uuid/stop/", func(c *gin.Context) { s.setRunState(c, k, model.StateKilled) })
		g.POST("/:uuid/copy/", func(c *gin.Context) { s.copyPipeline(c, k) })
	}

	r.POST("/api/analysis/:uuid/source-preview/", s.handleSourcePreview)
	r.GET("/api/analysis/:uuid/result/", func(c *gin.Context) { s.respondKeyed(c, s.averages, c.Param("uuid")) })
	r.GET("/api/analysis/results/table/", s.table)
	r.GET("/api/analysis/results/:uuid/", func(c *gin.Context) { s.respondKeyed(c, s.results, c.Param("uuid")) })

	r.GET("/api/process/table/", s.table)
	r.GET("/api/process/event/table/", s.table)
	r.GET("/api/process/object/table/", s.table)
	r.GET("/api/process/object/module/", s.moduleObjects)
	r.GET("/api/process/:uuid/", s.process)

	r.GET("/api/files/browse/", s.browse)
	r.GET("/api/files/table/", s.fileTable)
	r.GET("/api/files/image/meta/", s.imageMeta)
	r.GET("/api/files/image/slice/", s.imagePNG)
	r.GET("/api/files/image/slices/", s.imagePNG)
	r.GET("/api/files/image/plot/", s.imagePNG)
	r.GET("/api/files/image/blob/", s.imageBlob)
	return r
}

// =============================================================================
// Test Controls
// =============================================================================

// PutPipeline stores a pipeline.
func (s *Server) PutPipeline(kind model.Kind, p model.Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipelines[kind] == nil {
		s.pipelines[kind] = map[string]model.Pipeline{}
	}
	s.pipelines[kind][p.UUID] = p.Clone()
}

// Pipeline returns a stored pipeline.
func (s *Server) Pipeline(kind model.Kind, id string) (model.Pipeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[kind][id]
	return p.Clone(), ok
}

// SetRun replaces the latest run of a stored pipeline.
func (s *Server) SetRun(kind model.Kind, id string, run *model.ProcessRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[kind][id]
	if !ok {
		return
	}
	p.LatestProcessData = run
	s.pipelines[kind][id] = p
}

// SetAverageResult stores the average result of an analysis.
func (s *Server) SetAverageResult(id string, result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.averages[id] = result
}

// SetResult stores one analysis result.
func (s *Server) SetResult(id string, result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = result
}

// SetProcess stores a process run.
func (s *Server) SetProcess(run model.ProcessRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes[run.UUID] = run
}

// SetTable stores the response of a table path.
func (s *Server) SetTable(path string, resp model.TableResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[path] = resp
}

// SetListing stores the listing returned for a browse path.
func (s *Server) SetListing(path string, listing model.DirListing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[path] = listing
}

// SetFileTable stores the attribute table of a file.
func (s *Server) SetFileTable(path string, table model.FileTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileTables[path] = table
}

// SetImage stores a fake image file.
func (s *Server) SetImage(path string, img Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img.Meta.Path = path
	s.images[path] = img
}

// SetModuleObjects stores the files of a module in a run.
func (s *Server) SetModuleObjects(processUUID, moduleUUID string, source bool, files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectsKey(processUUID, moduleUUID, source)] = files
}

// SetDashboard stores the dashboard summary.
func (s *Server) SetDashboard(data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dashboard = data
}

// SetStatus stores the global status.
func (s *Server) SetStatus(data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = data
}

// SetSourcePreview installs the handler of source preview requests.
func (s *Server) SetSourcePreview(fn func(id string, values model.Values) (int, any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourcePreview = fn
}

// Fail makes every request with method and path answer with status and an
// {"error": message} body until Recover is called.
func (s *Server) Fail(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, body: gin.H{"error": message}}
}

// Recover removes an injected failure.
func (s *Server) Recover(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, method+" "+path)
}

// Hold blocks requests with method and path before they are answered. The
// returned function releases every held and future request.
func (s *Server) Hold(method, path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[method+" "+path] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, method+" "+path)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns the recorded requests with method and path. An empty
// method matches any.
func (s *Server) Requests(method, path string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if (method == "" || r.Method == method) && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount returns the number of requests with method and path.
func (s *Server) RequestCount(method, path string) int {
	return len(s.Requests(method, path))
}

// =============================================================================
// Middleware
// =============================================================================

// intercept records the request, applies holds and injected failures.
func (s *Server) intercept(c *gin.Context) {
	body, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
	key := c.Request.Method + " " + c.Request.URL.Path

	s.mu.Lock()
	if c.Request.URL.Path != "/ws/" {
		s.requests = append(s.requests, Request{
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
			Query:  c.Request.URL.Query(),
			Body:   body,
		})
	}
	hold := s.holds[key]
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}

	s.mu.Lock()
	f, failed := s.failures[key]
	s.mu.Unlock()
	if failed {
		c.AbortWithStatusJSON(f.status, f.body)
		return
	}
	c.Next()
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) respondMap(c *gin.Context, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, data)
}

func (s *Server) respondKeyed(c *gin.Context, m map[string]map[string]any, key string) {
	s.mu.Lock()
	data, ok := m[key]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) createPipeline(c *gin.Context, kind model.Kind) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	p := model.Pipeline{UUID: uuid.NewString(), Name: req.Name, Description: req.Description}
	s.PutPipeline(kind, p)
	c.JSON(http.StatusOK, p)
}

func (s *Server) getPipeline(c *gin.Context, kind model.Kind) {
	p, ok := s.Pipeline(kind, c.Param("uuid"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updatePipeline(c *gin.Context, kind model.Kind) {
	id := c.Param("uuid")
	if _, ok := s.Pipeline(kind, id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not found"})
		return
	}
	var p model.Pipeline
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.UUID = id
	for i := range p.Modules {
		if p.Modules[i].UUID == "" {
			p.Modules[i].UUID = uuid.NewString()
		}
	}
	s.PutPipeline(kind, p)
	c.JSON(http.StatusOK, p)
}

func (s *Server) deletePipeline(c *gin.Context, kind model.Kind) {
	id := c.Param("uuid")
	s.mu.Lock()
	_, ok := s.pipelines[kind][id]
	delete(s.pipelines[kind], id)
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) setRunState(c *gin.Context, kind model.Kind, state model.ProcessState) {
	id := c.Param("uuid")
	s.mu.Lock()
	p, ok := s.pipelines[kind][id]
	if ok {
		run := model.ProcessRun{UUID: uuid.NewString()}
		if p.LatestProcessData != nil {
			run = *p.LatestProcessData
		}
		run.Status = state
		p.LatestProcessData = &run
		s.pipelines[kind][id] = p
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) copyPipeline(c *gin.Context, kind model.Kind) {
	p, ok := s.Pipeline(kind, c.Param("uuid"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not found"})
		return
	}
	p.UUID = uuid.NewString()
	p.Name += " (copy)"
	p.LatestProcessData = nil
	s.PutPipeline(kind, p)
	c.JSON(http.StatusOK, gin.H{"uuid": p.UUID})
}

func (s *Server) handleSourcePreview(c *gin.Context) {
	var req struct {
		ParameterValues model.Values `json:"parameter_values"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	fn := s.sourcePreview
	s.mu.Unlock()
	if fn == nil {
		c.JSON(http.StatusOK, model.SourcePreview{Files: []map[string]any{}, Attributes: []string{}})
		return
	}
	status, body := fn(c.Param("uuid"), req.ParameterValues)
	c.JSON(status, body)
}

func (s *Server) table(c *gin.Context) {
	s.mu.Lock()
	resp, ok := s.tables[c.Request.URL.Path]
	s.mu.Unlock()
	if !ok {
		resp = model.TableResponse{Rows: []map[string]any{}}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) process(c *gin.Context) {
	s.mu.Lock()
	run, ok := s.processes[c.Param("uuid")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "process not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func objectsKey(processUUID, moduleUUID string, source bool) string {
	return processUUID + "/" + moduleUUID + "/" + strconv.FormatBool(source)
}

func (s *Server) moduleObjects(c *gin.Context) {
	key := objectsKey(c.Query("process_uuid"), c.Query("module_uuid"), c.Query("source") == "source")
	s.mu.Lock()
	files := s.objects[key]
	s.mu.Unlock()
	if files == nil {
		files = []string{}
	}
	c.JSON(http.StatusOK, model.ModuleObjects{Result: files})
}

func (s *Server) browse(c *gin.Context) {
	s.mu.Lock()
	listing, ok := s.listings[c.Query("path")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "directory not found"})
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (s *Server) fileTable(c *gin.Context) {
	s.mu.Lock()
	table, ok := s.fileTables[c.Query("path")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusOK, model.FileTable{File: c.Query("path"), Error: "file not found"})
		return
	}
	c.JSON(http.StatusOK, table)
}

func (s *Server) image(c *gin.Context) (Image, bool) {
	s.mu.Lock()
	img, ok := s.images[c.Query("path")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
	}
	return img, ok
}

func (s *Server) imageMeta(c *gin.Context) {
	if img, ok := s.image(c); ok {
		c.JSON(http.StatusOK, img.Meta)
	}
}

// pngSignature is enough of a PNG for clients that only pass bytes on.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func (s *Server) imagePNG(c *gin.Context) {
	if _, ok := s.image(c); ok {
		c.Data(http.StatusOK, "image/png", pngSignature)
	}
}

func (s *Server) imageBlob(c *gin.Context) {
	img, ok := s.image(c)
	if !ok {
		return
	}
	buf := make([]byte, 4*len(img.Data))
	for i, v := range img.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	c.Header("X-Image-Meta", fmt.Sprintf("%s;%s;%s;float32",
		joinInts(img.Meta.Shape), joinFloats(img.Zooms), joinFloats(img.Meta.Range)))
	c.Data(http.StatusOK, "application/octet-stream", buf)
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
