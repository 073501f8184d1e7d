package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/rconsole/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "rconsole",
		"version": util.Version,
	})
}

// handleVersion returns the rconsole version.
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": util.Version,
		"name":    "rconsole",
	})
}
