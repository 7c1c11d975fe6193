package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	passbookdomain "github.com/smallbiznis/payqr/internal/passbook/domain"
)

type webhookCreditRequest struct {
	Amount    float64    `json:"amount"`
	Reference string     `json:"reference"`
	RawText   string     `json:"raw_text"`
	Timestamp *time.Time `json:"timestamp"`
}

// HandleWebhookCredit ingests one already-parsed credit event pushed by an
// external forwarder (e.g. an SMS relay) and matches it immediately.
func (s *Server) HandleWebhookCredit(c *gin.Context) {
	var req webhookCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.Amount <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	timestamp := s.clock.Now()
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}
	event := passbookdomain.CreditEvent{
		Amount:    req.Amount,
		Timestamp: timestamp,
		Reference: strings.TrimSpace(req.Reference),
		RawText:   req.RawText,
	}

	matched, err := s.verifier.HandleWebhookEvent(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"matched": matched,
	})
}
