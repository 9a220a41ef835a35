// Package price polls the BTC/USD feed used for the fiat column of the
// batch summary. The poller keeps the last good quote and marks it stale
// rather than dropping it when the feed misbehaves.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carlton-source/sbtc-batch-lib/internal/logger"
)

// Quote is the cached BTC price. Stale means the last refresh attempt
// failed and the values are from an earlier successful fetch.
type Quote struct {
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change24h"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Stale     bool            `json:"stale"`
}

// ErrNoQuote is returned before the first successful fetch.
var ErrNoQuote = errors.New("no price quote available yet")

// Config tunes the poller. Zero values fall back to the defaults below.
type Config struct {
	FeedURL    string
	CoinID     string
	Interval   time.Duration
	MaxRetries int
}

// Poller fetches the price on a fixed interval. A new tick supersedes any
// fetch still in flight from the previous one.
type Poller struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	quote    Quote
	hasQuote bool
	cancel   context.CancelFunc
}

func NewPoller(cfg Config) *Poller {
	if cfg.CoinID == "" {
		cfg.CoinID = "bitcoin"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Poller{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Start fetches once immediately, then on every interval tick until ctx is
// cancelled. It blocks; run it in its own goroutine.
func (p *Poller) Start(ctx context.Context) {
	p.Refresh(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.cancelInFlight()
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh fetches the price now, cancelling any fetch still in flight.
// Failures after all retries mark the cached quote stale.
func (p *Poller) Refresh(ctx context.Context) {
	p.cancelInFlight()

	fetchCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	quote, err := p.fetchWithRetry(fetchCtx)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.Canceled) && ctx.Err() == nil {
			// Superseded by a newer refresh; the newer one owns the cache.
			return
		}
		logger.Warnf("price refresh failed: %v", err)
		p.mu.Lock()
		p.quote.Stale = true
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.quote = quote
	p.hasQuote = true
	p.mu.Unlock()
}

func (p *Poller) cancelInFlight() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
}

// Quote returns the cached price.
func (p *Poller) Quote() (Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasQuote {
		return Quote{}, ErrNoQuote
	}
	return p.quote, nil
}

// fetchWithRetry fetches with exponential backoff: 1s, 2s, 4s... between
// attempts, up to MaxRetries attempts total.
func (p *Poller) fetchWithRetry(ctx context.Context) (Quote, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Second << (attempt - 1)
			select {
			case <-ctx.Done():
				return Quote{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		quote, err := p.fetch(ctx)
		if err == nil {
			return quote, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Quote{}, ctx.Err()
		}
	}
	return Quote{}, fmt.Errorf("price feed unavailable after %d attempts: %v", p.cfg.MaxRetries, lastErr)
}

func (p *Poller) fetch(ctx context.Context) (Quote, error) {
	url := fmt.Sprintf("%s?ids=%s&vs_currencies=usd&include_24hr_change=true",
		p.cfg.FeedURL, p.cfg.CoinID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to fetch price: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var parsed map[string]struct {
		USD       json.Number `json:"usd"`
		Change24h json.Number `json:"usd_24h_change"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Quote{}, fmt.Errorf("failed to decode price response: %v", err)
	}

	entry, ok := parsed[p.cfg.CoinID]
	if !ok {
		return Quote{}, fmt.Errorf("price response missing %s", p.cfg.CoinID)
	}

	priceDec, err := decimal.NewFromString(entry.USD.String())
	if err != nil || !priceDec.IsPositive() {
		return Quote{}, fmt.Errorf("invalid price %q", entry.USD.String())
	}
	changeDec, _ := decimal.NewFromString(entry.Change24h.String())

	return Quote{
		Price:     priceDec,
		Change24h: changeDec,
		UpdatedAt: time.Now().UTC(),
	}, nil
}
