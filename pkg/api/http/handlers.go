package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": gin.H{
			"ensemble": string(s.supervisor.State()),
		},
	})
}

// handleDescribe returns the full diagnostic snapshot of the ensemble
func (s *Server) handleDescribe(c *gin.Context) {
	c.JSON(http.StatusOK, s.supervisor.Describe())
}

// handleListPerformers returns the performer identifiers and live worker
// addresses of the current generation
func (s *Server) handleListPerformers(c *gin.Context) {
	snap := s.supervisor.Describe()
	c.JSON(http.StatusOK, gin.H{
		"generation":   snap.Generation,
		"performers":   snap.Performers,
		"live_workers": snap.LiveWorkers,
	})
}

// handlePingWorkers broadcasts a debug request asking every worker to log its
// internal path
func (s *Server) handlePingWorkers(c *gin.Context) {
	delivered := s.supervisor.PingWorkers()
	c.JSON(http.StatusOK, gin.H{
		"delivered": delivered,
	})
}

// handleStop stops every worker of the ensemble
func (s *Server) handleStop(c *gin.Context) {
	if err := s.supervisor.Stop(c.Request.Context()); err != nil {
		s.logger.Error("failed to stop ensemble", zap.Error(err))
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STOP_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "stopped",
		"stopped_at": time.Now().UTC().Format(time.RFC3339),
	})
}
