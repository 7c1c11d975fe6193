package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/payqr/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, amount, note, status, reference, confirmed_by, matched_evidence,
			created_at, updated_at, marked_paid_at, confirmed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.Amount,
		order.Note,
		order.Status,
		order.Reference,
		order.ConfirmedBy,
		order.MatchedEvidence,
		order.CreatedAt,
		order.UpdatedAt,
		order.MarkedPaidAt,
		order.ConfirmedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, amount, note, status, reference, confirmed_by, matched_evidence,
			created_at, updated_at, marked_paid_at, confirmed_at
		 FROM orders
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, amount, note, status, reference, confirmed_by, matched_evidence,
			created_at, updated_at, marked_paid_at, confirmed_at
		 FROM orders
		 ORDER BY created_at DESC, id DESC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListByStatus returns oldest-first so matcher tie-breaks stay deterministic.
func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, amount, note, status, reference, confirmed_by, matched_evidence,
			created_at, updated_at, marked_paid_at, confirmed_at
		 FROM orders
		 WHERE status = ?
		 ORDER BY marked_paid_at ASC, created_at ASC, id ASC`,
		status,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkVerifying(ctx context.Context, db *gorm.DB, id, reference string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?,
			reference = CASE WHEN ? <> '' THEN ? ELSE reference END,
			marked_paid_at = ?,
			updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusVerifying,
		reference,
		reference,
		now,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ConfirmCAS(ctx context.Context, db *gorm.DB, id string, confirmedBy domain.ConfirmedBy, evidence string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, confirmed_by = ?, matched_evidence = ?, confirmed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusConfirmed,
		confirmedBy,
		evidence,
		now,
		now,
		id,
		domain.StatusPending,
		domain.StatusVerifying,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RejectCAS(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusRejected,
		now,
		id,
		domain.StatusPending,
		domain.StatusVerifying,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM orders WHERE id = ?`, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DeleteAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(`DELETE FROM orders`).Error
}

// TrimToLimit drops the oldest orders beyond limit to cap storage.
func (r *repo) TrimToLimit(ctx context.Context, db *gorm.DB, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`DELETE FROM orders
		 WHERE id NOT IN (
			SELECT id FROM (
				SELECT id FROM orders ORDER BY created_at DESC, id DESC LIMIT ?
			) AS keep
		 )`,
		limit,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
