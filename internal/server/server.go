// Package server exposes the agent's local HTTP surface: component and
// relay status, the current telemetry record, the persisted event log,
// manual image capture, and Prometheus metrics. It binds to loopback by
// default; the dashboard reaches the rover through the relay, not this.
package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harry0537/AstraBackup-sub001/internal/images"
	"github.com/harry0537/AstraBackup-sub001/internal/metrics"
	"github.com/harry0537/AstraBackup-sub001/internal/relay"
	"github.com/harry0537/AstraBackup-sub001/internal/store"
	"github.com/harry0537/AstraBackup-sub001/internal/supervisor"
	"github.com/harry0537/AstraBackup-sub001/internal/telemetry"
)

// ComponentSource reports supervised component states.
type ComponentSource interface {
	StatusSnapshot() []supervisor.Status
}

// TelemetrySource reports the current merged telemetry record.
type TelemetrySource interface {
	Snapshot(now time.Time) telemetry.Record
}

// RelaySource reports uplink delivery statistics.
type RelaySource interface {
	Snapshot() relay.Stats
}

// Router provides the embeddable HTTP handlers. Any of the optional
// sources may be nil; their endpoints then report 503.
type Router struct {
	Components ComponentSource
	Telemetry  TelemetrySource
	Relay      RelaySource
	Events     *store.DB
	Queue      *images.Queue
	Shutdown   func() // requests a clean agent stop
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", r.handleHealthz)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	api := g.Group("/api")
	api.GET("/status", r.handleStatus)
	api.GET("/telemetry", r.handleTelemetry)
	api.GET("/events", r.handleEvents)
	api.POST("/capture", r.handleCapture)
	api.POST("/shutdown", r.handleShutdown)
	return g
}

// NewServer starts a standalone HTTP server on addr serving this router.
// Call Close or Shutdown on the returned server to stop it.
func NewServer(addr string, r *Router) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	Components []supervisor.Status `json:"components"`
	Relay      *relay.Stats        `json:"relay,omitempty"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	if r.Components == nil {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "supervisor not running"})
		return
	}
	resp := statusResp{Components: r.Components.StatusSnapshot()}
	if r.Relay != nil {
		stats := r.Relay.Snapshot()
		resp.Relay = &stats
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleTelemetry(c *gin.Context) {
	if r.Telemetry == nil {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "telemetry not running"})
		return
	}
	c.JSON(http.StatusOK, r.Telemetry.Snapshot(time.Now()))
}

func (r *Router) handleEvents(c *gin.Context) {
	if r.Events == nil {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "event store not configured"})
		return
	}
	limit := 50
	if q := c.Query("limit"); q != "" {
		if n, err := parsePositive(q); err == nil {
			limit = n
		}
	}
	events, err := r.Events.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	c.JSON(http.StatusOK, events)
}

type captureReq struct {
	Path string `json:"path"`
}

// handleCapture enqueues an existing image file for immediate relay,
// ahead of the scheduled cadence.
func (r *Router) handleCapture(c *gin.Context) {
	if r.Queue == nil {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "image relay not running"})
		return
	}
	var req captureReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeAbsPath(req.Path) {
		c.JSON(http.StatusBadRequest, errorResp{Error: "path must be absolute without traversal"})
		return
	}
	if _, err := os.Stat(req.Path); err != nil {
		c.JSON(http.StatusNotFound, errorResp{Error: "no such image: " + req.Path})
		return
	}
	r.Queue.Push(images.Task{
		Path:      req.Path,
		Trigger:   images.TriggerManual,
		Timestamp: time.Now(),
	})
	c.JSON(http.StatusOK, okResp{OK: true})
}

// handleShutdown asks the agent to stop. The response is written before
// the cancel propagates, so the caller sees the acknowledgement.
func (r *Router) handleShutdown(c *gin.Context) {
	if r.Shutdown == nil {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "shutdown not supported"})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
	go r.Shutdown()
}
