package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
	"github.com/hendo420/P2PLendingPlatform/internal/http/middleware"
)

var errBadAmount = errors.New("amount must be a base-10 integer string")

// parseAmount reads an unsigned 256-bit amount written as a decimal string.
func parseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errBadAmount
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errBadAmount
	}
	return v, nil
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func caller(c *gin.Context) ledger.Account {
	return ledger.Account(c.GetString(middleware.ContextUserID))
}

type lendingPositionResponse struct {
	ID                  uint64    `json:"id"`
	Lender              string    `json:"lender"`
	Currency            string    `json:"currency"`
	Available           string    `json:"available"`
	Collected           string    `json:"collected"`
	InterestRatePercent uint8     `json:"interest_rate_percent"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func newLendingResponse(p *ledger.LendingPosition) lendingPositionResponse {
	return lendingPositionResponse{
		ID:                  p.ID,
		Lender:              string(p.Lender),
		Currency:            p.Currency,
		Available:           p.Available.Dec(),
		Collected:           p.Collected.Dec(),
		InterestRatePercent: p.InterestRatePercent,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

type borrowingPositionResponse struct {
	ID                uint64    `json:"id"`
	Borrower          string    `json:"borrower"`
	LendingPositionID uint64    `json:"lending_position_id"`
	Currency          string    `json:"currency"`
	Collateral        string    `json:"collateral"`
	Principal         string    `json:"principal"`
	Due               string    `json:"due"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newBorrowingResponse(p *ledger.BorrowingPosition) borrowingPositionResponse {
	return borrowingPositionResponse{
		ID:                p.ID,
		Borrower:          string(p.Borrower),
		LendingPositionID: p.LendingPositionID,
		Currency:          p.Currency,
		Collateral:        p.Collateral.Dec(),
		Principal:         p.Principal.Dec(),
		Due:               p.Due.Dec(),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func newBorrowingList(items []ledger.BorrowingPosition) []borrowingPositionResponse {
	out := make([]borrowingPositionResponse, 0, len(items))
	for i := range items {
		out = append(out, newBorrowingResponse(&items[i]))
	}
	return out
}

func newLendingList(items []ledger.LendingPosition) []lendingPositionResponse {
	out := make([]lendingPositionResponse, 0, len(items))
	for i := range items {
		out = append(out, newLendingResponse(&items[i]))
	}
	return out
}
