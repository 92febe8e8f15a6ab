package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/jitter/internal/gesture"
	"github.com/loykin/jitter/internal/history"
	"github.com/loykin/jitter/internal/system"
)

// Router provides embeddable HTTP handlers for producers and consumers.
// Endpoints:
//
//	POST {basePath}/notify/{category}  body: one gesture record (JSON)
//	GET  {basePath}/batch/{category}   query: min_progress, min_radius (circle only)
//	GET  {basePath}/status
//	PUT  {basePath}/consumption        query: enabled=true|false, category (optional, default all)
//	POST {basePath}/reset
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sys      *system.System
	basePath string
	recorder *history.Recorder
	metrics  http.Handler
	log      *slog.Logger
}

// Option customizes a Router.
type Option func(*Router)

// WithHistory reports the recorder's counters in /status.
func WithHistory(rec *history.Recorder) Option { return func(r *Router) { r.recorder = rec } }

// WithMetrics serves h at /metrics, outside basePath.
func WithMetrics(h http.Handler) Option { return func(r *Router) { r.metrics = h } }

func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.log = l } }

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/notify/circle, /api/batch/circle, ...
func NewRouter(sys *system.System, basePath string, opts ...Option) *Router {
	r := &Router{sys: sys, basePath: sanitizeBase(basePath), log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	group := g.Group(r.basePath)
	group.POST("/notify/:category", r.handleNotify)
	group.GET("/batch/:category", r.handleBatch)
	group.GET("/status", r.handleStatus)
	group.PUT("/consumption", r.handleConsumption)
	group.POST("/consumption", r.handleConsumption)
	group.POST("/reset", r.handleReset)
	return g
}

// Server is a standalone HTTP(S) server around a Router.
type Server struct {
	srv *http.Server
	ln  net.Listener
	log *slog.Logger
}

// NewServer binds addr and starts serving r in the background. A non-nil
// tlsCfg serves HTTPS.
func NewServer(addr string, r *Router, tlsCfg *tls.Config) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	s := &Server{
		srv: &http.Server{
			Handler:           r.Handler(),
			TLSConfig:         tlsCfg,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ln:  ln,
		log: r.log,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server stopped", "error", err)
		}
	}()
	s.log.Info("HTTP server listening", "addr", ln.Addr().String(), "tls", tlsCfg != nil)
	return s, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// --- Handlers ---

func (r *Router) category(c *gin.Context) (gesture.Category, bool) {
	cat, err := gesture.ParseCategory(c.Param("category"))
	if err != nil {
		writeError(c, http.StatusNotFound, err.Error())
		return 0, false
	}
	return cat, true
}

func (r *Router) handleNotify(c *gin.Context) {
	cat, ok := r.category(c)
	if !ok {
		return
	}
	var (
		rec gesture.Record
		err error
	)
	switch cat {
	case gesture.CategoryCircle:
		rec, err = bindRecord[gesture.Circle](c)
	case gesture.CategorySwipe:
		rec, err = bindRecord[gesture.Swipe](c)
	case gesture.CategoryScreenTap:
		rec, err = bindRecord[gesture.ScreenTap](c)
	case gesture.CategoryKeyTap:
		rec, err = bindRecord[gesture.KeyTap](c)
	}
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := r.sys.Notify(rec); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, system.ErrCategoryDisabled) {
			code = http.StatusConflict
		}
		writeError(c, code, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, OKResponse{OK: true})
}

func bindRecord[T gesture.Record](c *gin.Context) (T, error) {
	var g T
	err := c.ShouldBindJSON(&g)
	return g, err
}

func (r *Router) handleBatch(c *gin.Context) {
	cat, ok := r.category(c)
	if !ok {
		return
	}
	var f system.Filter
	var err error
	if f.MinProgress, err = queryFloat(c, "min_progress"); err != nil {
		writeError(c, http.StatusBadRequest, "invalid min_progress: "+err.Error())
		return
	}
	if f.MinRadius, err = queryFloat(c, "min_radius"); err != nil {
		writeError(c, http.StatusBadRequest, "invalid min_radius: "+err.Error())
		return
	}
	recs, err := r.sys.Batch(cat, f)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, BatchResponse{Category: cat, Gestures: recs})
}

func (r *Router) handleStatus(c *gin.Context) {
	stats := r.sys.Stats()
	resp := StatusResponse{Categories: make([]CategoryStatus, 0, len(stats))}
	for _, st := range stats {
		resp.Categories = append(resp.Categories, CategoryStatus{Stats: st, Enabled: r.sys.Enabled(st.Category)})
	}
	if r.recorder != nil {
		hs := r.recorder.Stats()
		resp.History = &hs
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleConsumption(c *gin.Context) {
	enabled, err := strconv.ParseBool(c.Query("enabled"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "enabled must be true or false")
		return
	}
	if name := c.Query("category"); name != "" && name != "all" {
		cat, err := gesture.ParseCategory(name)
		if err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := r.sys.SetConsumption(cat, enabled); err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		r.sys.SetConsumptionAll(enabled)
	}
	resp := ConsumptionResponse{Consumption: make(map[string]bool)}
	for _, st := range r.sys.Stats() {
		resp.Consumption[st.Category.String()] = st.ConsumptionEnabled
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleReset(c *gin.Context) {
	r.sys.Reset()
	writeJSON(c, http.StatusOK, OKResponse{OK: true})
}
