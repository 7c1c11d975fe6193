package domain

import (
	"regexp"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusVerifying Status = "verifying"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

type ConfirmedBy string

const (
	ConfirmedBySelfReport      ConfirmedBy = "self-report"
	ConfirmedByPassbookMatch   ConfirmedBy = "passbook-match"
	ConfirmedByWebhookMatch    ConfirmedBy = "webhook-match"
	ConfirmedByTimeoutFallback ConfirmedBy = "timeout-fallback"
	ConfirmedByManualAdmin     ConfirmedBy = "manual-admin"
)

// Order tracks a payment-link request until it reaches a terminal status.
type Order struct {
	ID              string      `json:"order_id" gorm:"primaryKey;type:text"`
	Amount          float64     `json:"amount" gorm:"not null"`
	Note            string      `json:"note,omitempty" gorm:"type:text"`
	Status          Status      `json:"status" gorm:"type:text;not null;index"`
	Reference       string      `json:"reference,omitempty" gorm:"type:text"`
	ConfirmedBy     ConfirmedBy `json:"confirmed_by,omitempty" gorm:"type:text"`
	MatchedEvidence string      `json:"matched_evidence,omitempty" gorm:"type:text"`
	CreatedAt       time.Time   `json:"created_at" gorm:"not null;index"`
	UpdatedAt       time.Time   `json:"updated_at" gorm:"not null"`
	MarkedPaidAt    *time.Time  `json:"marked_paid_at,omitempty"`
	ConfirmedAt     *time.Time  `json:"confirmed_at,omitempty"`
}

func (Order) TableName() string { return "orders" }

var utrPattern = regexp.MustCompile(`^\d{12}$`)

// NormalizeUTR strips whitespace from a customer-supplied UPI reference and
// returns it only when it is a well-formed 12-digit UTR.
func NormalizeUTR(raw string) string {
	cleaned := strings.Join(strings.Fields(raw), "")
	if utrPattern.MatchString(cleaned) {
		return cleaned
	}
	return ""
}
