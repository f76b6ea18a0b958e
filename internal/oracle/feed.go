package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

// HTTPFeed reads a decimal price from a JSON endpoint of the form
// {"price": "1234.56"} and scales it by 10^decimals into integer units.
type HTTPFeed struct {
	url        string
	decimals   int32
	ttl        time.Duration
	httpClient *http.Client
	now        func() time.Time

	mu       sync.Mutex
	cached   *uint256.Int
	cachedAt time.Time
}

func NewHTTPFeed(url string, decimals int32, ttl, timeout time.Duration) (*HTTPFeed, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("missing ORACLE_URL")
	}
	if decimals < 0 || decimals > 36 {
		return nil, fmt.Errorf("invalid ORACLE_RATE_DECIMALS: %d", decimals)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPFeed{
		url:        strings.TrimSpace(url),
		decimals:   decimals,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}, nil
}

func (f *HTTPFeed) CurrentRate(ctx context.Context) (*uint256.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != nil && f.ttl > 0 && f.now().Sub(f.cachedAt) < f.ttl {
		return f.cached.Clone(), nil
	}
	rate, err := f.fetch(ctx)
	if err != nil {
		return nil, err
	}
	f.cached = rate
	f.cachedAt = f.now()
	return rate.Clone(), nil
}

func (f *HTTPFeed) fetch(ctx context.Context) (*uint256.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrOracleUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ledger.ErrOracleUnavailable, resp.StatusCode)
	}

	var body struct {
		Price json.Number `json:"price"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ledger.ErrOracleUnavailable, err)
	}
	return ScalePrice(body.Price.String(), f.decimals)
}

// ScalePrice converts a decimal string into integer units, truncating below
// 10^-decimals. Anything that does not come out strictly positive is invalid.
func ScalePrice(raw string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ledger.ErrInvalidPrice, raw)
	}
	scaled := d.Shift(decimals).Truncate(0)
	if scaled.Sign() <= 0 {
		return nil, ledger.ErrInvalidPrice
	}
	rate, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ledger.ErrOverflow
	}
	return rate, nil
}
