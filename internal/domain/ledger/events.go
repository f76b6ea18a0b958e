package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type lendingPayload struct {
	LendingID           uint64 `json:"lending_id"`
	Lender              string `json:"lender"`
	Currency            string `json:"currency"`
	Amount              string `json:"amount"`
	Available           string `json:"available"`
	InterestRatePercent uint8  `json:"interest_rate_percent,omitempty"`
}

type loanPayload struct {
	BorrowingID uint64 `json:"borrowing_id"`
	LendingID   uint64 `json:"lending_id"`
	Borrower    string `json:"borrower"`
	Amount      string `json:"amount,omitempty"`
	Collateral  string `json:"collateral"`
	Principal   string `json:"principal"`
	Due         string `json:"due"`
	Rate        string `json:"rate,omitempty"`
}

type liquidationPayload struct {
	BorrowingID        uint64 `json:"borrowing_id"`
	LendingID          uint64 `json:"lending_id"`
	Lender             string `json:"lender"`
	Borrower           string `json:"borrower"`
	Rate               string `json:"rate"`
	Policy             string `json:"policy"`
	Settlement         string `json:"settlement"`
	CollateralValue    string `json:"collateral_value"`
	RecoveredDue       string `json:"recovered_due"`
	SeizedCollateral   string `json:"seized_collateral"`
	ReturnedCollateral string `json:"returned_collateral"`
	Shortfall          string `json:"shortfall"`
}

type transferPayload struct {
	PositionID uint64 `json:"position_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

type depositPayload struct {
	Account  string `json:"account"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

func emit(ctx context.Context, tx Tx, now time.Time, topic string, positionID uint64, payload any, accounts ...Account) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	return tx.Events().Append(ctx, Event{
		ID:         uuid.New(),
		Topic:      topic,
		PositionID: positionID,
		Accounts:   accounts,
		Payload:    raw,
		CreatedAt:  now,
	})
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
