package service

import (
	"context"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payqr/internal/clock"
	obsmetrics "github.com/smallbiznis/payqr/internal/observability/metrics"
	"github.com/smallbiznis/payqr/internal/order/domain"
	"github.com/smallbiznis/payqr/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxNoteLength     = 200
	maxEvidenceLength = 100
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return nil, domain.ErrInvalidAmount
	}
	note := strings.TrimSpace(req.Note)
	if len(note) > maxNoteLength {
		note = note[:maxNoteLength]
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:        "ORD_" + s.genID.Generate().String(),
		Amount:    req.Amount,
		Note:      note,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Snowflake collisions should not happen; retry once with a fresh id
		// rather than failing the checkout.
		order.ID = "ORD_" + s.genID.Generate().String()
		if err := s.repo.Insert(ctx, s.db, order); err != nil {
			return nil, err
		}
	}

	s.metrics.IncOrdersCreated()
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.Float64("amount", order.Amount),
	)
	return order, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Order, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) ListVerifying(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListByStatus(ctx, s.db, domain.StatusVerifying)
}

// MarkPaid moves pending -> verifying. Calls against an order that already
// left pending return the current order unchanged.
func (s *Service) MarkPaid(ctx context.Context, id, utr string) (*domain.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPending {
		return order, nil
	}

	reference := domain.NormalizeUTR(utr)
	won, err := s.repo.MarkVerifying(ctx, s.db, id, reference, s.clock.Now())
	if err != nil {
		return nil, err
	}

	order, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if won {
		s.log.Info("order verifying",
			zap.String("order_id", id),
			zap.Float64("amount", order.Amount),
			zap.String("reference", reference),
		)
	}
	return order, nil
}

// AttemptConfirm performs the one guarded confirm transition. Losing the race
// to another trigger is not an error: the caller gets the winner's order and
// newly=false.
func (s *Service) AttemptConfirm(ctx context.Context, id string, confirmedBy domain.ConfirmedBy, evidence string) (*domain.Order, bool, error) {
	if len(evidence) > maxEvidenceLength {
		evidence = evidence[:maxEvidenceLength]
	}

	won, err := s.repo.ConfirmCAS(ctx, s.db, id, confirmedBy, evidence, s.clock.Now())
	if err != nil {
		return nil, false, err
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, false, err
	}
	if order == nil {
		return nil, false, domain.ErrOrderNotFound
	}
	if !won {
		return order, false, nil
	}

	s.metrics.IncConfirmation(string(confirmedBy))
	s.log.Info("order confirmed",
		zap.String("order_id", id),
		zap.Float64("amount", order.Amount),
		zap.String("confirmed_by", string(confirmedBy)),
	)
	return order, true, nil
}

func (s *Service) AdminOverride(ctx context.Context, id string, target domain.Status) (*domain.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, domain.ErrOrderTerminal
	}

	switch target {
	case domain.StatusConfirmed:
		confirmed, won, err := s.AttemptConfirm(ctx, id, domain.ConfirmedByManualAdmin, "")
		if err != nil {
			return nil, err
		}
		if !won && confirmed.Status != domain.StatusConfirmed {
			return nil, domain.ErrOrderTerminal
		}
		return confirmed, nil
	case domain.StatusRejected:
		won, err := s.repo.RejectCAS(ctx, s.db, id, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if !won {
			return nil, domain.ErrOrderTerminal
		}
		s.log.Info("order rejected", zap.String("order_id", id))
		return s.Get(ctx, id)
	default:
		return nil, domain.ErrInvalidStatus
	}
}

func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s *Service) DeleteAll(ctx context.Context) error {
	return s.repo.DeleteAll(ctx, s.db)
}

func (s *Service) TrimToLimit(ctx context.Context, limit int) error {
	dropped, err := s.repo.TrimToLimit(ctx, s.db, limit)
	if err != nil {
		return err
	}
	if dropped > 0 {
		s.log.Info("old orders trimmed", zap.Int64("dropped", dropped), zap.Int("limit", limit))
	}
	return nil
}
