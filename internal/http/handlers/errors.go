package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

var statusByCode = map[string]int{
	"invalid_amount":                http.StatusBadRequest,
	"invalid_rate":                  http.StatusBadRequest,
	"invalid_account":               http.StatusBadRequest,
	"exceeds_due":                   http.StatusBadRequest,
	"overflow":                      http.StatusBadRequest,
	"insufficient_liquidity":        http.StatusUnprocessableEntity,
	"insufficient_collateral":       http.StatusUnprocessableEntity,
	"collateral_still_sufficient":   http.StatusConflict,
	"insufficient_collateral_value": http.StatusUnprocessableEntity,
	"insufficient_funds":            http.StatusUnprocessableEntity,
	"unauthorized":                  http.StatusForbidden,
	"not_found":                     http.StatusNotFound,
	"oracle_unavailable":            http.StatusServiceUnavailable,
	"invalid_price":                 http.StatusServiceUnavailable,
}

func writeError(c *gin.Context, err error) {
	var ledgerErr *ledger.Error
	if errors.As(err, &ledgerErr) {
		status, ok := statusByCode[ledgerErr.Code()]
		if !ok {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": ledgerErr.Code(), "message": ledgerErr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
