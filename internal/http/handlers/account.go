package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

type AccountService interface {
	ListPositions(ctx context.Context, account ledger.Account) (*ledger.AccountPositions, error)
	Balance(ctx context.Context, account ledger.Account, currency string) (*uint256.Int, error)
	LoanCurrency() string
	NativeCurrency() string
}

type AccountHandler struct {
	svc AccountService
}

func NewAccountHandler(svc AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) Positions(c *gin.Context) {
	out, err := h.svc.ListPositions(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lending":   newLendingList(out.Lending),
		"borrowing": newBorrowingList(out.Borrowing),
	})
}

// Balances reports the caller's balances. The currency query takes a comma
// separated list and defaults to the loan and native currencies.
func (h *AccountHandler) Balances(c *gin.Context) {
	currencies := []string{h.svc.LoanCurrency(), h.svc.NativeCurrency()}
	if q := strings.TrimSpace(c.Query("currency")); q != "" {
		currencies = currencies[:0]
		for _, code := range strings.Split(q, ",") {
			if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
				currencies = append(currencies, code)
			}
		}
	}
	balances := make(map[string]string, len(currencies))
	for _, code := range currencies {
		bal, err := h.svc.Balance(c.Request.Context(), caller(c), code)
		if err != nil {
			writeError(c, err)
			return
		}
		balances[code] = bal.Dec()
	}
	c.JSON(http.StatusOK, gin.H{"account": string(caller(c)), "balances": balances})
}
