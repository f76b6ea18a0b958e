package oracle

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/config"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

// NewFromConfig builds the oracle named by ORACLE_MODE. A non-nil *TWAP must
// be sampled by the caller with Run.
func NewFromConfig(cfg config.Config) (ledger.PriceOracle, *TWAP, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.OracleMode))
	switch mode {
	case "", "static":
		rate, err := uint256.FromDecimal(strings.TrimSpace(cfg.OracleStaticRate))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid ORACLE_STATIC_RATE: %w", err)
		}
		o, err := NewStatic(rate)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid ORACLE_STATIC_RATE: %w", err)
		}
		return o, nil, nil
	case "http":
		o, err := NewHTTPFeed(cfg.OracleURL, cfg.OracleDecimals, cfg.OracleTTL, cfg.OracleTimeout)
		if err != nil {
			return nil, nil, err
		}
		return o, nil, nil
	case "twap":
		if cfg.OracleSamplePeriod >= cfg.OracleTWAPWindow {
			return nil, nil, fmt.Errorf("ORACLE_SAMPLE_PERIOD must be shorter than ORACLE_TWAP_WINDOW")
		}
		feed, err := NewHTTPFeed(cfg.OracleURL, cfg.OracleDecimals, 0, cfg.OracleTimeout)
		if err != nil {
			return nil, nil, err
		}
		t, err := NewTWAP(feed, cfg.OracleTWAPWindow)
		if err != nil {
			return nil, nil, err
		}
		return t, t, nil
	default:
		return nil, nil, fmt.Errorf("invalid ORACLE_MODE: %s", cfg.OracleMode)
	}
}
