package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type MetaHandler struct {
	env             string
	version         string
	shortfallPolicy string
	currencies      func() (loan, native string)
}

func NewMetaHandler(env, version, shortfallPolicy string, currencies func() (loan, native string)) *MetaHandler {
	return &MetaHandler{env: env, version: version, shortfallPolicy: shortfallPolicy, currencies: currencies}
}

func (h *MetaHandler) GetMeta(c *gin.Context) {
	var loan, native string
	if h.currencies != nil {
		loan, native = h.currencies()
	}
	c.JSON(http.StatusOK, gin.H{
		"name":    "P2P Lending Ledger",
		"version": h.version,
		"env":     h.env,
		"ledger": gin.H{
			"loan_currency":    loan,
			"native_currency":  native,
			"shortfall_policy": h.shortfallPolicy,
		},
	})
}
