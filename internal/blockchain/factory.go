package blockchain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hendo420/P2PLendingPlatform/internal/config"
)

func NewWriterFromConfig(cfg config.Config) (EventAnchorWriter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.AnchorMode))
	if mode == "" || mode == "stub" {
		return NewStubWriter(), nil
	}
	if mode != "real" {
		return nil, fmt.Errorf("invalid CHAIN_WRITER_MODE: %s", cfg.AnchorMode)
	}
	gas, err := parseGasLimit(cfg.AnchorGasLimit)
	if err != nil {
		return nil, err
	}
	return NewRPCWriter(cfg.AnchorRPCURL, cfg.AnchorFromAddress, cfg.AnchorContract, gas)
}

func parseGasLimit(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	base := 10
	if strings.HasPrefix(raw, "0x") {
		raw, base = raw[2:], 16
	}
	v, err := strconv.ParseUint(raw, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid CHAIN_TX_GAS_LIMIT: %w", err)
	}
	return v, nil
}
