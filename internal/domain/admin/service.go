package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
	"github.com/hendo420/P2PLendingPlatform/internal/oracle"
)

// Ledger is the administrative surface of the ledger service.
type Ledger interface {
	IsAdmin(caller ledger.Account) bool
	SetOracle(caller ledger.Account, o ledger.PriceOracle) error
	SetLoanCurrency(caller ledger.Account, code string) error
	Deposit(ctx context.Context, caller, to ledger.Account, currency string, amount *uint256.Int) error
}

type AuditRepository interface {
	Log(ctx context.Context, in AuditLogInput) error
	ListRecent(ctx context.Context, limit int32) ([]AuditEntry, error)
}

type AuditLogInput struct {
	AdminSubject string
	Action       string
	TargetType   string
	TargetID     string
	Payload      []byte
}

type AuditEntry struct {
	ID int64
	AuditLogInput
	CreatedAt time.Time
}

type Service struct {
	ledger    Ledger
	auditRepo AuditRepository
}

func NewService(l Ledger, auditRepo AuditRepository) *Service {
	return &Service{ledger: l, auditRepo: auditRepo}
}

// SetStaticRate replaces the live oracle with a fixed rate.
func (s *Service) SetStaticRate(ctx context.Context, adminSubject string, rate *uint256.Int) error {
	o, err := oracle.NewStatic(rate)
	if err != nil {
		return err
	}
	if err := s.ledger.SetOracle(ledger.Account(adminSubject), o); err != nil {
		return err
	}
	s.audit(ctx, adminSubject, "oracle_rate_set", "oracle", "static", map[string]any{"rate": rate.Dec()})
	return nil
}

// UseOracle installs an already-built oracle, such as a live feed.
func (s *Service) UseOracle(ctx context.Context, adminSubject, name string, o ledger.PriceOracle) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("missing_oracle_name")
	}
	if err := s.ledger.SetOracle(ledger.Account(adminSubject), o); err != nil {
		return err
	}
	s.audit(ctx, adminSubject, "oracle_replaced", "oracle", name, map[string]any{})
	return nil
}

func (s *Service) SetLoanCurrency(ctx context.Context, adminSubject, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := s.ledger.SetLoanCurrency(ledger.Account(adminSubject), code); err != nil {
		return err
	}
	s.audit(ctx, adminSubject, "loan_currency_set", "currency", code, map[string]any{"currency": code})
	return nil
}

func (s *Service) Deposit(ctx context.Context, adminSubject, account, currency string, amount *uint256.Int) error {
	account = strings.TrimSpace(account)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return fmt.Errorf("missing_currency")
	}
	if err := s.ledger.Deposit(ctx, ledger.Account(adminSubject), ledger.Account(account), currency, amount); err != nil {
		return err
	}
	s.audit(ctx, adminSubject, "balance_deposited", "account", account, map[string]any{"currency": currency, "amount": amount.Dec()})
	return nil
}

// AuditTrail returns the most recent admin actions, newest first.
func (s *Service) AuditTrail(ctx context.Context, limit int32) ([]AuditEntry, error) {
	if s.auditRepo == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.auditRepo.ListRecent(ctx, limit)
}

func (s *Service) audit(ctx context.Context, adminSubject, action, targetType, targetID string, fields map[string]any) {
	if s.auditRepo == nil {
		return
	}
	payload, _ := json.Marshal(fields)
	_ = s.auditRepo.Log(ctx, AuditLogInput{
		AdminSubject: adminSubject,
		Action:       action,
		TargetType:   targetType,
		TargetID:     targetID,
		Payload:      payload,
	})
}
