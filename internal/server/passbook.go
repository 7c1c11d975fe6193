package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) HandlePassbookStatus(c *gin.Context) {
	status := s.source.Status()
	c.JSON(http.StatusOK, gin.H{
		"connected":       status.Connected,
		"connected_at":    status.ConnectedAt,
		"last_checked_at": status.LastCheckedAt,
		"last_error":      status.LastError,
		"poll_suspended":  s.verifier.ConnectivityLost(),
	})
}

func (s *Server) HandlePassbookConnect(c *gin.Context) {
	if err := s.source.Connect(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	s.verifier.Resume()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) HandlePassbookDisconnect(c *gin.Context) {
	if err := s.source.Disconnect(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) HandleCheckNow(c *gin.Context) {
	matches, total, err := s.verifier.ForceCheckNow(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"matches":      matches,
		"total_events": total,
	})
}
