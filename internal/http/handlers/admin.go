package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	admindomain "github.com/hendo420/P2PLendingPlatform/internal/domain/admin"
)

type AdminService interface {
	SetStaticRate(ctx context.Context, adminSubject string, rate *uint256.Int) error
	SetLoanCurrency(ctx context.Context, adminSubject, code string) error
	Deposit(ctx context.Context, adminSubject, account, currency string, amount *uint256.Int) error
	AuditTrail(ctx context.Context, limit int32) ([]admindomain.AuditEntry, error)
}

type AdminHandler struct {
	svc AdminService
}

func NewAdminHandler(svc AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) SetRate(c *gin.Context) {
	var req struct {
		Rate string `json:"rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rate, err := parseAmount(req.Rate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_rate"})
		return
	}
	if err := h.svc.SetStaticRate(c.Request.Context(), string(caller(c)), rate); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rate": rate.Dec()})
}

func (h *AdminHandler) SetLoanCurrency(c *gin.Context) {
	var req struct {
		Currency string `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Currency) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.svc.SetLoanCurrency(c.Request.Context(), string(caller(c)), req.Currency); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": strings.ToUpper(strings.TrimSpace(req.Currency))})
}

func (h *AdminHandler) Deposit(c *gin.Context) {
	var req struct {
		Account  string `json:"account"`
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Account) == "" || strings.TrimSpace(req.Currency) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return
	}
	if err := h.svc.Deposit(c.Request.Context(), string(caller(c)), req.Account, req.Currency, amount); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deposited"})
}

func (h *AdminHandler) AuditTrail(c *gin.Context) {
	limit, _ := strconv.ParseInt(strings.TrimSpace(c.DefaultQuery("limit", "50")), 10, 32)
	entries, err := h.svc.AuditTrail(c.Request.Context(), int32(limit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit_trail_failed"})
		return
	}
	items := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		items = append(items, gin.H{
			"id":            e.ID,
			"admin_subject": e.AdminSubject,
			"action":        e.Action,
			"target_type":   e.TargetType,
			"target_id":     e.TargetID,
			"payload":       json.RawMessage(e.Payload),
			"created_at":    e.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
