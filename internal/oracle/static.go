// Package oracle provides exchange-rate sources for the ledger. Rates are
// loan-currency units per native unit.
package oracle

import (
	"context"
	"sync"

	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

// Static serves a fixed rate that can be replaced at runtime.
type Static struct {
	mu   sync.RWMutex
	rate *uint256.Int
}

func NewStatic(rate *uint256.Int) (*Static, error) {
	if rate == nil || rate.IsZero() {
		return nil, ledger.ErrInvalidPrice
	}
	return &Static{rate: rate.Clone()}, nil
}

func (s *Static) SetRate(rate *uint256.Int) error {
	if rate == nil || rate.IsZero() {
		return ledger.ErrInvalidPrice
	}
	s.mu.Lock()
	s.rate = rate.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Static) CurrentRate(context.Context) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate.Clone(), nil
}
