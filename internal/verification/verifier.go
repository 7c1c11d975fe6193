package verification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payqr/internal/cache"
	"github.com/smallbiznis/payqr/internal/clock"
	"github.com/smallbiznis/payqr/internal/matcher"
	obsmetrics "github.com/smallbiznis/payqr/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/payqr/internal/order/domain"
	passbookdomain "github.com/smallbiznis/payqr/internal/passbook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Trigger names used in logs and metrics.
const (
	TriggerSelfReport = "self_report"
	TriggerPoll       = "poll"
	TriggerWebhook    = "webhook"
	TriggerManual     = "manual"
)

var ErrInvalidConfig = errors.New("verification: missing dependency")

type Params struct {
	fx.In

	Log      *zap.Logger
	OrderSvc orderdomain.Service
	Source   passbookdomain.Source
	Claims   cache.ClaimCache
	Clock    clock.Clock
	Metrics  *obsmetrics.Metrics `optional:"true"`
	Config   Config              `optional:"true"`
}

// Verifier orchestrates when the matcher consults the passbook source. It
// holds no authority over final order state; every confirmation funnels
// through the order service's guarded transition.
type Verifier struct {
	log      *zap.Logger
	cfg      Config
	orderSvc orderdomain.Service
	source   passbookdomain.Source
	claims   cache.ClaimCache
	clock    clock.Clock
	metrics  *obsmetrics.Metrics

	mu     sync.Mutex
	timers map[string]context.CancelFunc

	lost atomic.Bool
}

func New(p Params) (*Verifier, error) {
	if p.Log == nil || p.OrderSvc == nil || p.Source == nil || p.Claims == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Verifier{
		log:      p.Log.Named("verification").With(zap.String("component", "verifier")),
		cfg:      p.Config.withDefaults(),
		orderSvc: p.OrderSvc,
		source:   p.Source,
		claims:   p.Claims,
		clock:    p.Clock,
		metrics:  p.Metrics,
		timers:   make(map[string]context.CancelFunc),
	}, nil
}

// OnMarkPaid arms the per-order fallback timer and kicks off one immediate
// matcher pass. The pass runs detached so a slow passbook read never blocks
// the customer's mark-paid call.
func (v *Verifier) OnMarkPaid(ctx context.Context, orderID string) {
	_ = ctx
	v.armFallback(orderID)

	go func() {
		passCtx, cancel := context.WithTimeout(context.Background(), v.cfg.SourceTimeout)
		defer cancel()
		if _, _, err := v.runPass(passCtx, TriggerSelfReport, orderdomain.ConfirmedByPassbookMatch); err != nil {
			v.log.Debug("self-report verification pass skipped",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
	}()
}

// RunForever is the background poll loop. On a reported session expiry it
// suspends until Resume; on ctx cancellation it returns after the in-flight
// pass finishes.
func (v *Verifier) RunForever(ctx context.Context) {
	ticker := time.NewTicker(v.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if v.ConnectivityLost() {
			continue
		}
		if _, err := v.RunOnce(ctx); err != nil {
			if errors.Is(err, passbookdomain.ErrSessionExpired) {
				v.lost.Store(true)
				v.log.Error("passbook session expired, background verification suspended")
				continue
			}
			if !errors.Is(err, passbookdomain.ErrSourceUnavailable) {
				v.log.Warn("verification poll failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs one poll-trigger pass over all verifying orders, then
// enforces the order retention cap.
func (v *Verifier) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	v.metrics.IncPollRun()
	matches, _, err := v.runPass(ctx, TriggerPoll, orderdomain.ConfirmedByPassbookMatch)
	v.metrics.ObservePollDuration(time.Since(start))
	if err != nil {
		v.metrics.IncPollError(classifyPollError(err))
		return matches, err
	}

	if trimErr := v.orderSvc.TrimToLimit(ctx, v.cfg.OrderRetention); trimErr != nil {
		v.log.Warn("order trim failed", zap.Error(trimErr))
	}
	return matches, nil
}

// ForceCheckNow runs one out-of-schedule pass and reports how many orders
// matched out of how many credit events the source returned.
func (v *Verifier) ForceCheckNow(ctx context.Context) (int, int, error) {
	return v.runPassExtended(ctx, TriggerManual, orderdomain.ConfirmedByPassbookMatch, true)
}

// HandleWebhookEvent matches one externally pushed credit event against the
// verifying orders. At most one order is confirmed per event.
func (v *Verifier) HandleWebhookEvent(ctx context.Context, event passbookdomain.CreditEvent) (bool, error) {
	v.metrics.IncWebhookEvent()

	verifying, err := v.orderSvc.ListVerifying(ctx)
	if err != nil {
		return false, err
	}
	if len(verifying) == 0 {
		return false, nil
	}

	candidates := v.filterClaimed(ctx, []passbookdomain.CreditEvent{event})
	if len(candidates) == 0 {
		return false, nil
	}

	v.metrics.IncMatcherPass(TriggerWebhook)
	results := matcher.Match(verifying, candidates)
	if len(results) == 0 {
		return false, nil
	}
	confirmed := v.applyResults(ctx, results[:1], orderdomain.ConfirmedByWebhookMatch)
	return confirmed > 0, nil
}

// Recover re-arms fallback timers for orders that were mid-verification when
// the process stopped, so they still reach a terminal state.
func (v *Verifier) Recover(ctx context.Context) error {
	verifying, err := v.orderSvc.ListVerifying(ctx)
	if err != nil {
		return err
	}
	for _, order := range verifying {
		v.armFallback(order.ID)
	}
	if len(verifying) > 0 {
		v.log.Info("re-armed fallback timers", zap.Int("orders", len(verifying)))
	}
	return nil
}

// ConnectivityLost reports whether the poll loop is suspended because the
// passbook session was rejected.
func (v *Verifier) ConnectivityLost() bool {
	return v.lost.Load()
}

// Resume clears the connectivity-lost latch after the operator reconnects.
func (v *Verifier) Resume() {
	if v.lost.CompareAndSwap(true, false) {
		v.log.Info("background verification resumed")
	}
}

func (v *Verifier) runPass(ctx context.Context, trigger string, confirmedBy orderdomain.ConfirmedBy) (int, int, error) {
	return v.runPassExtended(ctx, trigger, confirmedBy, false)
}

func (v *Verifier) runPassExtended(ctx context.Context, trigger string, confirmedBy orderdomain.ConfirmedBy, evenWhenIdle bool) (int, int, error) {
	verifying, err := v.orderSvc.ListVerifying(ctx)
	if err != nil {
		v.metrics.IncPollError(obsmetrics.PollErrorReasonStore)
		return 0, 0, err
	}
	if len(verifying) == 0 && !evenWhenIdle {
		// Nothing to verify: skip the source read entirely.
		return 0, 0, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, v.cfg.SourceTimeout)
	defer cancel()
	events, err := v.source.FetchRecentCredits(fetchCtx)
	if err != nil {
		return 0, 0, err
	}

	passID := uuid.NewString()
	candidates := v.filterClaimed(ctx, events)
	v.metrics.IncMatcherPass(trigger)
	results := matcher.Match(verifying, candidates)
	confirmed := v.applyResults(ctx, results, confirmedBy)

	v.log.Debug("verification pass",
		zap.String("pass_id", passID),
		zap.String("trigger", trigger),
		zap.Int("verifying_orders", len(verifying)),
		zap.Int("events", len(events)),
		zap.Int("matches", confirmed),
	)
	return confirmed, len(events), nil
}

// filterClaimed drops events whose underlying credit already confirmed an
// order in an earlier pass.
func (v *Verifier) filterClaimed(ctx context.Context, events []passbookdomain.CreditEvent) []passbookdomain.CreditEvent {
	if len(events) == 0 {
		return nil
	}
	out := events[:0:0]
	for _, event := range events {
		claimed, err := v.claims.IsClaimed(ctx, event.Fingerprint())
		if err != nil {
			v.log.Warn("claim lookup failed", zap.Error(err))
			continue
		}
		if !claimed {
			out = append(out, event)
		}
	}
	return out
}

func (v *Verifier) applyResults(ctx context.Context, results []matcher.Result, confirmedBy orderdomain.ConfirmedBy) int {
	confirmed := 0
	for _, result := range results {
		won, err := v.claims.Claim(ctx, result.Event.Fingerprint())
		if err != nil {
			v.log.Warn("claim failed", zap.String("order_id", result.OrderID), zap.Error(err))
			continue
		}
		if !won {
			// Another trigger spent this credit between fetch and apply.
			continue
		}

		_, newly, err := v.orderSvc.AttemptConfirm(ctx, result.OrderID, confirmedBy, result.Event.RawText)
		if err != nil {
			if !errors.Is(err, orderdomain.ErrOrderNotFound) {
				v.log.Warn("confirm failed", zap.String("order_id", result.OrderID), zap.Error(err))
			}
			continue
		}
		if newly {
			confirmed++
			v.cancelFallback(result.OrderID)
		}
	}
	v.metrics.AddMatches(confirmed)
	return confirmed
}

func classifyPollError(err error) string {
	switch {
	case errors.Is(err, passbookdomain.ErrSessionExpired):
		return obsmetrics.PollErrorReasonSessionExpired
	case errors.Is(err, passbookdomain.ErrSourceUnavailable), errors.Is(err, passbookdomain.ErrNotConfigured):
		return obsmetrics.PollErrorReasonUnavailable
	default:
		return obsmetrics.PollErrorReasonUnknown
	}
}
