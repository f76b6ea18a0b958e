package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

type RateReader interface {
	CurrentRate(ctx context.Context) (*uint256.Int, error)
	LoanCurrency() string
	NativeCurrency() string
}

type OracleHandler struct {
	rates RateReader
}

func NewOracleHandler(rates RateReader) *OracleHandler {
	return &OracleHandler{rates: rates}
}

func (h *OracleHandler) Rate(c *gin.Context) {
	rate, err := h.rates.CurrentRate(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rate":  rate.Dec(),
		"base":  h.rates.NativeCurrency(),
		"quote": h.rates.LoanCurrency(),
	})
}
