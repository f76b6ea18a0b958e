package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

type LendingService interface {
	CreateLendingPosition(ctx context.Context, lender ledger.Account, amount *uint256.Int, ratePercent uint64) (*ledger.LendingPosition, error)
	WithdrawLending(ctx context.Context, id uint64, caller ledger.Account) (*uint256.Int, error)
	CollectRepayments(ctx context.Context, id uint64, caller ledger.Account) (*uint256.Int, error)
	GetLendingPosition(ctx context.Context, id uint64) (*ledger.LendingPosition, error)
	LoansForLendingPosition(ctx context.Context, lendingID uint64) ([]ledger.BorrowingPosition, error)
	ListPositions(ctx context.Context, account ledger.Account) (*ledger.AccountPositions, error)
}

type LendingHandler struct {
	svc LendingService
}

func NewLendingHandler(svc LendingService) *LendingHandler {
	return &LendingHandler{svc: svc}
}

func (h *LendingHandler) Create(c *gin.Context) {
	var req struct {
		Amount              string  `json:"amount"`
		InterestRatePercent *uint64 `json:"interest_rate_percent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.InterestRatePercent == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return
	}
	p, err := h.svc.CreateLendingPosition(c.Request.Context(), caller(c), amount, *req.InterestRatePercent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newLendingResponse(p))
}

// List returns the lending positions recorded for the caller.
func (h *LendingHandler) List(c *gin.Context) {
	out, err := h.svc.ListPositions(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newLendingList(out.Lending)})
}

func (h *LendingHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	p, err := h.svc.GetLendingPosition(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLendingResponse(p))
}

func (h *LendingHandler) Withdraw(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	amount, err := h.svc.WithdrawLending(c.Request.Context(), id, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": amount.Dec()})
}

func (h *LendingHandler) Collect(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	amount, err := h.svc.CollectRepayments(c.Request.Context(), id, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collected": amount.Dec()})
}

func (h *LendingHandler) Loans(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	items, err := h.svc.LoansForLendingPosition(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newBorrowingList(items)})
}
