package verification

import (
	"context"
	"errors"
	"time"

	orderdomain "github.com/smallbiznis/payqr/internal/order/domain"
	"go.uber.org/zap"
)

const fallbackConfirmTimeout = 5 * time.Second

// armFallback schedules the timeout-fallback confirmation for one order.
// Arming twice is a no-op; the timer is cancelled when the order reaches a
// terminal state through any other trigger.
func (v *Verifier) armFallback(orderID string) {
	v.mu.Lock()
	if _, exists := v.timers[orderID]; exists {
		v.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.timers[orderID] = cancel
	v.mu.Unlock()

	go v.fallbackLoop(ctx, orderID)
}

func (v *Verifier) fallbackLoop(ctx context.Context, orderID string) {
	timer := time.NewTimer(v.cfg.FallbackWindow)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	v.cancelFallback(orderID)

	confirmCtx, cancel := context.WithTimeout(context.Background(), fallbackConfirmTimeout)
	defer cancel()
	_, newly, err := v.orderSvc.AttemptConfirm(confirmCtx, orderID, orderdomain.ConfirmedByTimeoutFallback, "")
	if err != nil {
		if !errors.Is(err, orderdomain.ErrOrderNotFound) {
			v.log.Warn("fallback confirm failed", zap.String("order_id", orderID), zap.Error(err))
		}
		return
	}
	if newly {
		v.log.Info("order confirmed by timeout fallback",
			zap.String("order_id", orderID),
			zap.Duration("window", v.cfg.FallbackWindow),
		)
	}
}

// CancelFallback cancels the pending fallback timer, if any. A timer that
// already fired is absorbed by the confirm transition's no-op.
func (v *Verifier) CancelFallback(orderID string) {
	v.cancelFallback(orderID)
}

func (v *Verifier) cancelFallback(orderID string) {
	v.mu.Lock()
	cancel, ok := v.timers[orderID]
	if ok {
		delete(v.timers, orderID)
	}
	v.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopTimers cancels every pending fallback timer, used at shutdown.
func (v *Verifier) StopTimers() {
	v.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(v.timers))
	for id, cancel := range v.timers {
		cancels = append(cancels, cancel)
		delete(v.timers, id)
	}
	v.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
