package domain

import "context"

type CreateOrderRequest struct {
	Amount float64
	Note   string
}

// Service owns every status mutation. AttemptConfirm is idempotent: the
// second boolean reports whether this call performed the transition; a call
// against an already-terminal order is a benign no-op, never an error.
type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	ListVerifying(ctx context.Context) ([]Order, error)
	MarkPaid(ctx context.Context, id, utr string) (*Order, error)
	AttemptConfirm(ctx context.Context, id string, confirmedBy ConfirmedBy, evidence string) (*Order, bool, error)
	AdminOverride(ctx context.Context, id string, target Status) (*Order, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	TrimToLimit(ctx context.Context, limit int) error
}
