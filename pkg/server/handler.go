package server

import (
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/research-canvas/pkg/checkpoint"
	"github.com/mikeboe/research-canvas/pkg/research"
	"github.com/mikeboe/research-canvas/pkg/state"
)

type Handler struct {
	Service  *Service
	Gatherer prometheus.Gatherer

	mcpMu       sync.RWMutex
	mcpSessions map[string]*MCPSession
}

// NewHandler builds the HTTP surface. A nil gatherer disables /metrics.
func NewHandler(s *Service, gatherer prometheus.Gatherer) *Handler {
	return &Handler{Service: s, Gatherer: gatherer, mcpSessions: make(map[string]*MCPSession)}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/mcp", h.MCPHandler)
	if h.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}
	api := r.Group("/api")
	{
		api.POST("/sessions", h.createSession)
		api.GET("/sessions", h.listSessions)
		api.GET("/sessions/:id", h.getSession)
		api.DELETE("/sessions/:id", h.deleteSession)
		api.GET("/sessions/:id/logs", h.getSessionLogs)
		api.GET("/sessions/:id/report", h.getReport)
		api.POST("/sessions/:id/messages", h.sendMessage)
		api.POST("/sessions/:id/resume", h.resume)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, research.ErrSessionBusy),
		errors.Is(err, research.ErrAwaitingFeedback),
		errors.Is(err, research.ErrNotSuspended):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *Handler) createSession(c *gin.Context) {
	sess, err := h.Service.CreateSession(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) listSessions(c *gin.Context) {
	ids, err := h.Service.ListSessions(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}
	// Return empty list instead of null
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, ids)
}

func (h *Handler) getSession(c *gin.Context) {
	sess, err := h.Service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.Service.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getSessionLogs(c *gin.Context) {
	logs, err := h.Service.GetSessionLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) getReport(c *gin.Context) {
	md, err := h.Service.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	next, err := h.Service.SendMessage(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		abortWith(c, err)
		return
	}
	h.stream(c, next)
}

func (h *Handler) resume(c *gin.Context) {
	var reviewed state.Proposal
	if err := c.ShouldBindJSON(&reviewed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	next, err := h.Service.Resume(c.Request.Context(), c.Param("id"), reviewed)
	if err != nil {
		abortWith(c, err)
		return
	}
	h.stream(c, next)
}

func (h *Handler) stream(c *gin.Context, next iter.Seq2[StreamEvent, error]) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Transfer-Encoding", "chunked")

	for event, err := range next {
		if !writeEvent(c, event) || err != nil {
			return
		}
	}
}

func writeEvent(c *gin.Context, event StreamEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
	return true
}
