package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/punchd/punchd/internal/journal"
	"github.com/punchd/punchd/internal/tracker"
)

// Router provides embeddable HTTP handlers for the tracker.
// Endpoints:
//   POST {basePath}/start        body: {"logId": "...", "taskId": "..."}
//   POST {basePath}/stop         body (optional): {"idleSeconds": 120}
//   GET  {basePath}/status
//   POST {basePath}/reconcile
//   GET  {basePath}/instance-id
//   GET  {basePath}/events       query: limit=N (default 50)
//   GET  {basePath}/ws           feed stream, server to client
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	trk      *tracker.Tracker
	reader   journal.Reader
	basePath string
	origins  []string
	logger   *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/stop, and so on.
func NewRouter(trk *tracker.Tracker, basePath string) *Router {
	return &Router{trk: trk, basePath: sanitizeBase(basePath), logger: slog.Default()}
}

// SetJournalReader wires the sink queried by GET /events.
func (r *Router) SetJournalReader(rd journal.Reader) { r.reader = rd }

// SetCORSOrigins enables CORS for the given origins. Empty disables it.
func (r *Router) SetCORSOrigins(origins []string) {
	r.origins = append([]string(nil), origins...)
}

// SetLogger replaces the router logger.
func (r *Router) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if len(r.origins) > 0 {
		g.Use(cors.New(cors.Config{
			AllowOrigins:  r.origins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Content-Type"},
			ExposeHeaders: []string{"Content-Length"},
		}))
	}
	group := g.Group(r.basePath)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/status", r.handleStatus)
	group.POST("/reconcile", r.handleReconcile)
	group.GET("/instance-id", r.handleInstanceID)
	group.GET("/events", r.handleEvents)
	group.GET("/ws", r.handleFeed)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Shutdown or Close.
func NewServer(addr string, router *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startRequest struct {
	LogID  string `json:"logId"`
	TaskID string `json:"taskId"`
}

type startResponse struct {
	OK         bool   `json:"ok"`
	InstanceID string `json:"instanceId"`
}

type stopRequest struct {
	IdleSeconds *uint64 `json:"idleSeconds"`
}

type instanceResponse struct {
	InstanceID string `json:"instanceId"`
}

func (r *Router) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.LogID == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "logId required"})
		return
	}
	if !isSafeID(req.LogID) || (req.TaskID != "" && !isSafeID(req.TaskID)) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid id: allowed [A-Za-z0-9._-]"})
		return
	}
	id, err := r.trk.StartTracking(req.LogID, req.TaskID)
	if errors.Is(err, tracker.ErrAlreadyRunning) {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, startResponse{OK: true, InstanceID: id})
}

func (r *Router) handleStop(c *gin.Context) {
	var req stopRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	err := r.trk.StopTracking(req.IdleSeconds)
	if errors.Is(err, tracker.ErrNotRunning) {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.trk.Status())
}

func (r *Router) handleReconcile(c *gin.Context) {
	r.trk.Reconcile()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleInstanceID(c *gin.Context) {
	writeJSON(c, http.StatusOK, instanceResponse{InstanceID: r.trk.InstanceID()})
}

func (r *Router) handleEvents(c *gin.Context) {
	if r.reader == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "no queryable journal configured"})
		return
	}
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	events, err := r.reader.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, events)
}
