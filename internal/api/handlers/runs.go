package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/TheGojiOG/notion-backup/internal/backup"
	"github.com/gin-gonic/gin"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// RunHandler serves backup run status and triggers runs
type RunHandler struct {
	manager *backup.Manager
	store   *backup.RunStore
	baseCtx context.Context
	nextRun func() time.Time
}

// NewRunHandler creates a run handler. Runs triggered over HTTP use baseCtx,
// so they outlive the request and stop when the process shuts down.
// nextRun may be nil when no schedule is configured.
func NewRunHandler(baseCtx context.Context, manager *backup.Manager, nextRun func() time.Time) *RunHandler {
	return &RunHandler{
		manager: manager,
		store:   manager.Store(),
		baseCtx: baseCtx,
		nextRun: nextRun,
	}
}

// Health reports liveness and whether a run is in progress
// GET /health
func (h *RunHandler) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"running": h.manager.Running(),
	}
	if h.nextRun != nil {
		resp["next_run"] = h.nextRun().UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// ListRuns returns recent runs, newest first
// GET /api/v1/runs?limit=20
func (h *RunHandler) ListRuns(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run history is disabled"})
		return
	}

	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxRunLimit)
	}

	runs, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		log.Printf("[API] Failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun returns one run with its per-page results
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run history is disabled"})
		return
	}

	run, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, backup.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		log.Printf("[API] Failed to get run %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// TriggerRun starts a backup in the background
// POST /api/v1/runs
func (h *RunHandler) TriggerRun(c *gin.Context) {
	pending, err := h.manager.Begin(backup.TriggerAPI)
	if errors.Is(err, backup.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "A backup run is already in progress"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	go func() {
		if _, err := pending.Execute(h.baseCtx); err != nil {
			log.Printf("[API] Triggered backup %s failed: %v", pending.ID(), err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"id":     pending.ID(),
		"status": backup.StatusRunning,
	})
}
