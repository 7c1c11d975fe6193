package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/payqr/internal/clock"
	"github.com/smallbiznis/payqr/internal/config"
	"github.com/smallbiznis/payqr/internal/passbook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

// Source polls a passbook API endpoint for recent credits. The endpoint is
// whatever relays the merchant's receiving account: a bank API gateway or a
// scraper running out of process.
type Source struct {
	url    string
	token  string
	client *http.Client
	log    *zap.Logger
	clock  clock.Clock

	mu          sync.Mutex
	connected   bool
	connectedAt *time.Time
	lastChecked *time.Time
	lastError   string
}

func New(p Params) domain.Source {
	return &Source{
		url:    p.Cfg.PassbookAPIURL,
		token:  p.Cfg.PassbookAPIToken,
		client: &http.Client{},
		log:    p.Log.Named("passbook.http"),
		clock:  p.Clock,
	}
}

func (s *Source) Connect(ctx context.Context) error {
	if s.url == "" {
		return domain.ErrNotConfigured
	}

	if _, err := s.fetch(ctx); err != nil {
		s.setError(err)
		return err
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.connected = true
	s.connectedAt = &now
	s.lastError = ""
	s.mu.Unlock()

	s.log.Info("passbook source connected", zap.String("url", s.url))
	return nil
}

func (s *Source) Disconnect(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	s.connected = false
	s.connectedAt = nil
	s.mu.Unlock()
	s.log.Info("passbook source disconnected")
	return nil
}

func (s *Source) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Source) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Status{
		Connected:     s.connected,
		ConnectedAt:   s.connectedAt,
		LastCheckedAt: s.lastChecked,
		LastError:     s.lastError,
	}
}

func (s *Source) FetchRecentCredits(ctx context.Context) ([]domain.CreditEvent, error) {
	if !s.IsAvailable() {
		return nil, domain.ErrSourceUnavailable
	}

	credits, err := s.fetch(ctx)
	now := s.clock.Now()
	s.mu.Lock()
	s.lastChecked = &now
	s.mu.Unlock()
	if err != nil {
		s.setError(err)
		return nil, err
	}

	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
	return credits, nil
}

type apiTransaction struct {
	Amount    float64   `json:"amount"`
	Type      string    `json:"type"`
	Reference string    `json:"reference"`
	Narration string    `json:"narration"`
	Timestamp time.Time `json:"timestamp"`
}

type apiResponse struct {
	Transactions []apiTransaction `json:"transactions"`
}

func (s *Source) fetch(ctx context.Context) ([]domain.CreditEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		return nil, domain.ErrSessionExpired
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}

	credits := make([]domain.CreditEvent, 0, len(payload.Transactions))
	for _, txn := range payload.Transactions {
		if !strings.EqualFold(txn.Type, "CREDIT") || txn.Amount <= 0 {
			continue
		}
		credits = append(credits, domain.CreditEvent{
			Amount:    txn.Amount,
			Timestamp: txn.Timestamp,
			Reference: strings.TrimSpace(txn.Reference),
			RawText:   txn.Narration,
		})
	}
	return credits, nil
}

func (s *Source) setError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}
