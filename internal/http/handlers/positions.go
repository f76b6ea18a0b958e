package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
)

type PositionService interface {
	TransferPosition(ctx context.Context, id uint64, from, to ledger.Account) error
	OwnerOf(ctx context.Context, id uint64) (ledger.Account, error)
	CurrentSupply(ctx context.Context) (uint64, error)
}

type PositionHandler struct {
	svc PositionService
}

func NewPositionHandler(svc PositionService) *PositionHandler {
	return &PositionHandler{svc: svc}
}

func (h *PositionHandler) Transfer(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	var req struct {
		To string `json:"to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.To) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	to := ledger.Account(strings.TrimSpace(req.To))
	if err := h.svc.TransferPosition(c.Request.Context(), id, caller(c), to); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "owner": string(to)})
}

func (h *PositionHandler) Owner(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position_id"})
		return
	}
	owner, err := h.svc.OwnerOf(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "owner": string(owner)})
}

func (h *PositionHandler) Supply(c *gin.Context) {
	n, err := h.svc.CurrentSupply(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current_supply": n})
}
