package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository persists orders. The conditional updates are the single point of
// serialization for concurrent confirmation triggers: a guarded UPDATE either
// wins the transition or affects zero rows.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Order, error)
	List(ctx context.Context, db *gorm.DB) ([]Order, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status) ([]Order, error)
	MarkVerifying(ctx context.Context, db *gorm.DB, id, reference string, now time.Time) (bool, error)
	ConfirmCAS(ctx context.Context, db *gorm.DB, id string, confirmedBy ConfirmedBy, evidence string, now time.Time) (bool, error)
	RejectCAS(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id string) (bool, error)
	DeleteAll(ctx context.Context, db *gorm.DB) error
	TrimToLimit(ctx context.Context, db *gorm.DB, limit int) (int64, error)
}
