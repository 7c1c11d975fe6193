package domain

import (
	"context"
	"fmt"
	"time"
)

// CreditEvent is one observed incoming-funds record, not yet tied to an order.
type CreditEvent struct {
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Reference string    `json:"reference,omitempty"`
	RawText   string    `json:"raw_text,omitempty"`
}

// Fingerprint identifies the underlying real-world credit across polls so a
// credit observed twice is never offered to the matcher twice.
func (e CreditEvent) Fingerprint() string {
	if e.Reference != "" {
		return "ref:" + e.Reference
	}
	return fmt.Sprintf("amt:%.2f|ts:%d", e.Amount, e.Timestamp.Unix())
}

type Status struct {
	Connected     bool       `json:"connected"`
	ConnectedAt   *time.Time `json:"connected_at,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Source observes credit events on the receiving account. Implementations may
// scrape, poll a bank API, or relay forwarded SMS; the engine only asks for
// recent credits.
type Source interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsAvailable() bool
	FetchRecentCredits(ctx context.Context) ([]CreditEvent, error)
	Status() Status
}
