package verification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payqr/internal/cache"
	"github.com/smallbiznis/payqr/internal/clock"
	orderdomain "github.com/smallbiznis/payqr/internal/order/domain"
	"github.com/smallbiznis/payqr/internal/order/repository"
	orderservice "github.com/smallbiznis/payqr/internal/order/service"
	passbookdomain "github.com/smallbiznis/payqr/internal/passbook/domain"
	"github.com/smallbiznis/payqr/internal/passbook/sourcetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	verifier *Verifier
	orders   orderdomain.Service
	source   *sourcetest.FakeSource
	clock    *clock.FakeClock
}

func setupVerifier(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&orderdomain.Order{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	orders := orderservice.NewService(orderservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})

	source := sourcetest.New()
	verifier, err := New(Params{
		Log:      zap.NewNop(),
		OrderSvc: orders,
		Source:   source,
		Claims:   cache.NewMemory(),
		Clock:    fake,
		Config:   cfg,
	})
	require.NoError(t, err)
	t.Cleanup(verifier.StopTimers)

	return &fixture{verifier: verifier, orders: orders, source: source, clock: fake}
}

func (f *fixture) verifyingOrder(t *testing.T, amount float64, utr string) *orderdomain.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), orderdomain.CreateOrderRequest{Amount: amount})
	require.NoError(t, err)
	order, err = f.orders.MarkPaid(context.Background(), order.ID, utr)
	require.NoError(t, err)
	return order
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceConfirmsMatchingOrder(t *testing.T) {
	f := setupVerifier(t, DefaultConfig())
	ctx := context.Background()

	order := f.verifyingOrder(t, 250, "")
	f.source.SetCredits([]passbookdomain.CreditEvent{
		{Amount: 250, Timestamp: f.clock.Now(), RawText: "CREDIT INR 250.00"},
	})

	matches, err := f.verifier.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, matches)

	got, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusConfirmed, got.Status)
	assert.Equal(t, orderdomain.ConfirmedByPassbookMatch, got.ConfirmedBy)
	assert.Equal(t, "CREDIT INR 250.00", got.MatchedEvidence)
}

// The same credit appearing in consecutive passbook snapshots must not
// confirm a second order.
func TestRunOnceDoesNotReuseClaimedCredit(t *testing.T) {
	f := setupVerifier(t, DefaultConfig())
	ctx := context.Background()

	f.verifyingOrder(t, 100, "")
	second := f.verifyingOrder(t, 100, "")
	f.source.SetCredits([]passbookdomain.CreditEvent{
		{Amount: 100, Timestamp: f.clock.Now(), Reference: "111122223333"},
	})

	matches, err := f.verifier.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, matches)

	matches, err = f.verifier.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, matches)

	got, err := f.orders.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusVerifying, got.Status)
}

func TestRunOnceSkipsSourceWhenIdle(t *testing.T) {
	f := setupVerifier(t, DefaultConfig())

	matches, err := f.verifier.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, matches)
	assert.Equal(t, 0, f.source.FetchCalls(), "no verifying orders, source must not be read")
}

func TestForceCheckNowReadsSourceEvenWhenIdle(t *testing.T) {
	f := setupVerifier(t, DefaultConfig())
	f.source.SetCredits([]passbookdomain.CreditEvent{
		{Amount: 42, Timestamp: f.clock.Now()},
	})

	matches, total, err := f.verifier.ForceCheckNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, matches)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, f.source.FetchCalls())
}

func TestHandleWebhookEvent(t *testing.T) {
	f := setupVerifier(t, DefaultConfig())
	ctx := context.Background()

	matched250 := f.verifyingOrder(t, 250, "")
	waiting200 := f.verifyingOrder(t, 200, "")

	event := passbookdomain.CreditEvent{
		Amount:    250,
		Timestamp: f.clock.Now(),
		Reference: "777788889999",
		RawText:   "CREDIT INR 250.00 UPI/777788889999",
	}
	matched, err := f.verifier.HandleWebhookEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, matched)

	got, err := f.orders.Get(ctx, matched250.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusConfirmed, got.Status)
	assert.Equal(t, orderdomain.ConfirmedByWebhookMatch, got.ConfirmedBy)

	still, err := f.orders.Get(ctx, waiting200.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusVerifying, still.Status)

	// Redelivery of the same event is absorbed by the claim cache.
	matched, err = f.verifier.HandleWebhookEvent(ctx, event)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestHandleWebhookEventNoVerifyingOrders(t *testing.T) {
	f := setupVerifier(t, DefaultConfig())

	matched, err := f.verifier.HandleWebhookEvent(context.Background(), passbookdomain.CreditEvent{
		Amount:    99,
		Timestamp: f.clock.Now(),
	})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestFallbackTimerConfirms(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FallbackWindow = 25 * time.Millisecond
	f := setupVerifier(t, cfg)
	ctx := context.Background()

	order := f.verifyingOrder(t, 100, "")
	f.verifier.OnMarkPaid(ctx, order.ID)

	require.Eventually(t, func() bool {
		got, err := f.orders.Get(ctx, order.ID)
		return err == nil && got.Status == orderdomain.StatusConfirmed
	}, time.Second, 5*time.Millisecond)

	got, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.ConfirmedByTimeoutFallback, got.ConfirmedBy)
}

func TestCancelFallbackStopsTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FallbackWindow = 25 * time.Millisecond
	f := setupVerifier(t, cfg)
	ctx := context.Background()

	order := f.verifyingOrder(t, 100, "")
	f.verifier.OnMarkPaid(ctx, order.ID)
	f.verifier.CancelFallback(order.ID)

	time.Sleep(100 * time.Millisecond)
	got, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusVerifying, got.Status)
}

func TestRecoverReArmsFallbackTimers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FallbackWindow = 25 * time.Millisecond
	f := setupVerifier(t, cfg)
	ctx := context.Background()

	order := f.verifyingOrder(t, 100, "")
	require.NoError(t, f.verifier.Recover(ctx))

	require.Eventually(t, func() bool {
		got, err := f.orders.Get(ctx, order.ID)
		return err == nil && got.Status == orderdomain.StatusConfirmed
	}, time.Second, 5*time.Millisecond)
}

func TestPollSuspendsOnSessionExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	f := setupVerifier(t, cfg)

	f.verifyingOrder(t, 100, "")
	f.source.SetFetchErr(passbookdomain.ErrSessionExpired)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.verifier.RunForever(ctx)
		close(done)
	}()

	require.Eventually(t, f.verifier.ConnectivityLost, time.Second, 5*time.Millisecond)

	// While suspended the loop must stop touching the source.
	settled := f.source.FetchCalls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, f.source.FetchCalls())

	// Reconnecting clears the latch and polling resumes.
	f.source.SetFetchErr(nil)
	f.verifier.Resume()
	require.Eventually(t, func() bool {
		return f.source.FetchCalls() > settled
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop on context cancel")
	}
}

func TestPollKeepsRunningWhenSourceUnavailable(t *testing.T) {
	f := setupVerifier(t, DefaultConfig())

	f.verifyingOrder(t, 100, "")
	f.source.SetConnected(false)

	_, err := f.verifier.RunOnce(context.Background())
	assert.ErrorIs(t, err, passbookdomain.ErrSourceUnavailable)
	assert.False(t, f.verifier.ConnectivityLost())
}
