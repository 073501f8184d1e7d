package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/rconsole/internal/db"
	"github.com/energizer-project/rconsole/internal/metrics"
	"github.com/energizer-project/rconsole/internal/session"
	"github.com/energizer-project/rconsole/internal/util"
)

const defaultHistoryLimit = 50

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

// handleStatus returns the session snapshot and host information.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session": s.session.Info(),
		"system":  util.GetSystemInfo(),
	})
}

// handleCommand runs one command on the shared session.
func (s *Server) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	start := time.Now()
	out, err := s.session.Execute(c.Request.Context(), req.Command)
	if err != nil {
		result := session.Classify(err)
		c.JSON(statusForResult(result, err), gin.H{
			"error":  err.Error(),
			"result": result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"command":     req.Command,
		"output":      out,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// handleReconnect drops the current connection and opens a new one.
func (s *Server) handleReconnect(c *gin.Context) {
	if err := s.session.Reconnect(c.Request.Context()); err != nil {
		result := session.Classify(err)
		c.JSON(statusForResult(result, err), gin.H{
			"error":  err.Error(),
			"result": result,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s.session.Info()})
}

// handleHistory lists recent commands, optionally filtered by q.
func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	var (
		entries []db.Entry
		err     error
	)
	if q := c.Query("q"); q != "" {
		entries, err = s.history.Search(q, limit)
	} else {
		entries, err = s.history.Recent(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}

	if entries == nil {
		entries = []db.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// statusForResult maps a session failure to an HTTP status.
func statusForResult(result string, err error) int {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch result {
	case metrics.ResultInvalid:
		return http.StatusBadRequest
	case metrics.ResultUnauthorised, metrics.ResultAuthFailed:
		return http.StatusForbidden
	case metrics.ResultClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
