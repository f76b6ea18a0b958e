package oracle

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

var ErrInvalidWindow = errors.New("twap window must be positive")

const maxObservations = 1000

type observation struct {
	rate *uint256.Int
	at   time.Time
}

// TWAP averages a source oracle's rate over a trailing window. Sample it on a
// schedule with Run; CurrentRate never calls the source directly and fails
// with ErrOracleUnavailable once no sample falls inside the window.
type TWAP struct {
	source ledger.PriceOracle
	window time.Duration
	now    func() time.Time

	mu           sync.RWMutex
	observations []observation
}

func NewTWAP(source ledger.PriceOracle, window time.Duration) (*TWAP, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &TWAP{
		source:       source,
		window:       window,
		now:          time.Now,
		observations: make([]observation, 0, 64),
	}, nil
}

func (t *TWAP) Record(rate *uint256.Int, at time.Time) {
	if rate == nil || rate.IsZero() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.observations = append(t.observations, observation{rate: rate.Clone(), at: at})
	cutoff := at.Add(-2 * t.window)
	start := 0
	for start < len(t.observations) && !t.observations[start].at.After(cutoff) {
		start++
	}
	if len(t.observations)-start > maxObservations {
		start = len(t.observations) - maxObservations
	}
	if start > 0 {
		t.observations = append(t.observations[:0], t.observations[start:]...)
	}
}

// Sample reads the source once and records the result.
func (t *TWAP) Sample(ctx context.Context) error {
	rate, err := t.source.CurrentRate(ctx)
	if err != nil {
		return err
	}
	t.Record(rate, t.now())
	return nil
}

func (t *TWAP) Run(ctx context.Context, period time.Duration, logger *slog.Logger) {
	if err := t.Sample(ctx); err != nil {
		logger.Warn("twap sample failed", "error", err)
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Sample(ctx); err != nil {
				logger.Warn("twap sample failed", "error", err)
			}
		}
	}
}

func (t *TWAP) CurrentRate(context.Context) (*uint256.Int, error) {
	return t.rateAt(t.now())
}

func (t *TWAP) rateAt(at time.Time) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.observations) == 0 {
		return nil, ledger.ErrOracleUnavailable
	}
	windowStart := at.Add(-t.window)

	var inWindow []observation
	var before *observation
	for i := range t.observations {
		obs := t.observations[i]
		if obs.at.After(at) {
			break
		}
		if obs.at.After(windowStart) {
			inWindow = append(inWindow, obs)
		} else {
			before = &t.observations[i]
		}
	}
	// A source that has gone quiet for a whole window is treated as down.
	if len(inWindow) == 0 {
		return nil, ledger.ErrOracleUnavailable
	}

	// The rate in force before the first in-window sample covers the gap
	// from the window start.
	weighted := new(big.Int)
	total := int64(0)
	add := func(rate *uint256.Int, from, to time.Time) {
		secs := int64(to.Sub(from).Seconds())
		if secs <= 0 {
			return
		}
		weighted.Add(weighted, new(big.Int).Mul(rate.ToBig(), big.NewInt(secs)))
		total += secs
	}
	if before != nil {
		add(before.rate, windowStart, inWindow[0].at)
	}
	for i := 0; i < len(inWindow)-1; i++ {
		add(inWindow[i].rate, inWindow[i].at, inWindow[i+1].at)
	}
	last := inWindow[len(inWindow)-1]
	add(last.rate, last.at, at)

	if total == 0 {
		return last.rate.Clone(), nil
	}
	avg, overflow := uint256.FromBig(weighted.Div(weighted, big.NewInt(total)))
	if overflow {
		return nil, ledger.ErrOverflow
	}
	if avg.IsZero() {
		return nil, ledger.ErrInvalidPrice
	}
	return avg, nil
}
