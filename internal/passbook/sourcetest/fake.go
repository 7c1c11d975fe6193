package sourcetest

import (
	"context"
	"sync"

	"github.com/smallbiznis/payqr/internal/passbook/domain"
)

// FakeSource is a scriptable passbook source for tests.
type FakeSource struct {
	mu         sync.Mutex
	connected  bool
	credits    []domain.CreditEvent
	fetchErr   error
	fetchCalls int
}

func New() *FakeSource {
	return &FakeSource{connected: true}
}

func (f *FakeSource) Connect(ctx context.Context) error {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *FakeSource) Disconnect(ctx context.Context) error {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *FakeSource) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeSource) Status() domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Status{Connected: f.connected}
}

func (f *FakeSource) FetchRecentCredits(ctx context.Context) ([]domain.CreditEvent, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if !f.connected {
		return nil, domain.ErrSourceUnavailable
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]domain.CreditEvent, len(f.credits))
	copy(out, f.credits)
	return out, nil
}

func (f *FakeSource) SetCredits(credits []domain.CreditEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = credits
}

func (f *FakeSource) SetFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *FakeSource) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

func (f *FakeSource) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}
