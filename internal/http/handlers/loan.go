package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

type LoanService interface {
	TakeLoan(ctx context.Context, in ledger.TakeLoanInput) (*ledger.BorrowingPosition, error)
	PayLoan(ctx context.Context, id uint64, amount *uint256.Int, payer ledger.Account) (bool, error)
	AddCollateral(ctx context.Context, id uint64, amount *uint256.Int, caller ledger.Account) (*ledger.BorrowingPosition, error)
	LiquidateLoan(ctx context.Context, id uint64, caller ledger.Account) (*ledger.Liquidation, error)
	GetBorrowingPosition(ctx context.Context, id uint64) (*ledger.BorrowingPosition, error)
	LoanHealth(ctx context.Context, id uint64) (*ledger.HealthQuote, error)
	ListPositions(ctx context.Context, account ledger.Account) (*ledger.AccountPositions, error)
}

type LoanHandler struct {
	svc LoanService
}

func NewLoanHandler(svc LoanService) *LoanHandler {
	return &LoanHandler{svc: svc}
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func bindAmount(c *gin.Context) (*uint256.Int, bool) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return nil, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return nil, false
	}
	return amount, true
}

func (h *LoanHandler) Take(c *gin.Context) {
	var req struct {
		LendingPositionID uint64 `json:"lending_position_id"`
		Amount            string `json:"amount"`
		Collateral        string `json:"collateral"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.LendingPositionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return
	}
	collateralAmount, err := parseAmount(req.Collateral)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_collateral"})
		return
	}
	p, err := h.svc.TakeLoan(c.Request.Context(), ledger.TakeLoanInput{
		LendingID:  req.LendingPositionID,
		Amount:     amount,
		Collateral: collateralAmount,
		Borrower:   caller(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBorrowingResponse(p))
}

// List returns the loans recorded for the caller as borrower.
func (h *LoanHandler) List(c *gin.Context) {
	out, err := h.svc.ListPositions(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newBorrowingList(out.Borrowing)})
}

func (h *LoanHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	p, err := h.svc.GetBorrowingPosition(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBorrowingResponse(p))
}

func (h *LoanHandler) Repay(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	amount, ok := bindAmount(c)
	if !ok {
		return
	}
	closed, err := h.svc.PayLoan(c.Request.Context(), id, amount, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

func (h *LoanHandler) AddCollateral(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	amount, ok := bindAmount(c)
	if !ok {
		return
	}
	p, err := h.svc.AddCollateral(c.Request.Context(), id, amount, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBorrowingResponse(p))
}

func (h *LoanHandler) Liquidate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	liq, err := h.svc.LiquidateLoan(c.Request.Context(), id, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"borrowing_position_id": liq.BorrowingID,
		"lending_position_id":   liq.LendingID,
		"rate":                  liq.Rate.Dec(),
		"shortfall_policy":      liq.Policy.String(),
		"settlement":            string(liq.Settlement),
		"collateral_value":      liq.Payout.CollateralValue.Dec(),
		"recovered_due":         liq.Payout.RecoveredDue.Dec(),
		"seized_collateral":     liq.Payout.SeizedCollateral.Dec(),
		"returned_collateral":   liq.Payout.ReturnedCollateral.Dec(),
		"shortfall":             liq.Payout.Shortfall.Dec(),
	})
}

func (h *LoanHandler) Health(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	q, err := h.svc.LoanHealth(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"position":            newBorrowingResponse(q.Position),
		"rate":                q.Rate.Dec(),
		"collateral_value":    q.Health.CollateralValue.Dec(),
		"required_collateral": q.Health.RequiredCollateral.Dec(),
		"ratio_percent":       q.Health.RatioPercent.StringFixed(2),
		"liquidatable":        q.Health.Liquidatable,
	})
}
