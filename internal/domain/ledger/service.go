package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/collateral"
)

type Config struct {
	Admin           Account
	LoanCurrency    string
	NativeCurrency  string
	Reserve         Account
	ShortfallPolicy collateral.ShortfallPolicy
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs each ledger operation as one Store.Update. The oracle and loan
// currency may be swapped at runtime by the administrator.
type Service struct {
	store    Store
	cfg      Config
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	mu           sync.RWMutex
	oracle       PriceOracle
	loanCurrency string

	lending   *LendingBook
	borrowing *BorrowingBook
}

func NewService(store Store, oracle PriceOracle, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:        store,
		cfg:          cfg,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
		oracle:       oracle,
		loanCurrency: cfg.LoanCurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lending = NewLendingBook(s.now)
	s.borrowing = NewBorrowingBook(s.lending, s.currentOracle, BorrowingBookConfig{
		NativeCurrency:  cfg.NativeCurrency,
		Reserve:         cfg.Reserve,
		ShortfallPolicy: cfg.ShortfallPolicy,
	}, s.now)
	return s
}

func (s *Service) currentOracle() PriceOracle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.oracle
}

func (s *Service) LoanCurrency() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loanCurrency
}

func (s *Service) NativeCurrency() string { return s.cfg.NativeCurrency }

func (s *Service) ShortfallPolicy() collateral.ShortfallPolicy { return s.cfg.ShortfallPolicy }

func (s *Service) CreateLendingPosition(ctx context.Context, lender Account, amount *uint256.Int, ratePercent uint64) (*LendingPosition, error) {
	var out *LendingPosition
	currency := s.LoanCurrency()
	err := s.update(ctx, "create_lending", func(ctx context.Context, tx Tx) ([]any, error) {
		p, err := s.lending.Create(ctx, tx, lender, currency, amount, ratePercent)
		if err != nil {
			return nil, err
		}
		out = p
		return []any{"lending_id", p.ID, "lender", lender, "amount", p.Available.Dec(), "rate_percent", ratePercent}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) WithdrawLending(ctx context.Context, id uint64, caller Account) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.update(ctx, "withdraw_lending", func(ctx context.Context, tx Tx) ([]any, error) {
		amount, err := s.lending.Withdraw(ctx, tx, id, caller)
		if err != nil {
			return nil, err
		}
		out = amount
		return []any{"lending_id", id, "amount", amount.Dec()}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) CollectRepayments(ctx context.Context, id uint64, caller Account) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.update(ctx, "collect_repayments", func(ctx context.Context, tx Tx) ([]any, error) {
		amount, err := s.lending.CollectRepayments(ctx, tx, id, caller)
		if err != nil {
			return nil, err
		}
		out = amount
		return []any{"lending_id", id, "amount", amount.Dec()}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) TakeLoan(ctx context.Context, in TakeLoanInput) (*BorrowingPosition, error) {
	var out *BorrowingPosition
	err := s.update(ctx, "take_loan", func(ctx context.Context, tx Tx) ([]any, error) {
		p, err := s.borrowing.TakeLoan(ctx, tx, in)
		if err != nil {
			return nil, err
		}
		out = p
		return []any{
			"borrowing_id", p.ID,
			"lending_id", p.LendingPositionID,
			"borrower", p.Borrower,
			"principal", p.Principal.Dec(),
			"collateral", p.Collateral.Dec(),
			"due", p.Due.Dec(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) PayLoan(ctx context.Context, id uint64, amount *uint256.Int, payer Account) (bool, error) {
	var closed bool
	err := s.update(ctx, "pay_loan", func(ctx context.Context, tx Tx) ([]any, error) {
		c, err := s.borrowing.PayLoan(ctx, tx, id, amount, payer)
		if err != nil {
			return nil, err
		}
		closed = c
		return []any{"borrowing_id", id, "payer", payer, "amount", amount.Dec(), "closed", c}, nil
	})
	return closed, err
}

func (s *Service) AddCollateral(ctx context.Context, id uint64, amount *uint256.Int, caller Account) (*BorrowingPosition, error) {
	var out *BorrowingPosition
	err := s.update(ctx, "add_collateral", func(ctx context.Context, tx Tx) ([]any, error) {
		p, err := s.borrowing.AddCollateral(ctx, tx, id, amount, caller)
		if err != nil {
			return nil, err
		}
		out = p
		return []any{"borrowing_id", id, "amount", amount.Dec(), "collateral", p.Collateral.Dec()}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) LiquidateLoan(ctx context.Context, id uint64, caller Account) (*Liquidation, error) {
	var out *Liquidation
	err := s.update(ctx, "liquidate_loan", func(ctx context.Context, tx Tx) ([]any, error) {
		l, err := s.borrowing.LiquidateLoan(ctx, tx, id, caller)
		if err != nil {
			return nil, err
		}
		out = l
		return []any{
			"borrowing_id", id,
			"lending_id", l.LendingID,
			"rate", l.Rate.Dec(),
			"settlement", string(l.Settlement),
			"recovered_due", l.Payout.RecoveredDue.Dec(),
			"seized_collateral", l.Payout.SeizedCollateral.Dec(),
			"shortfall", l.Payout.Shortfall.Dec(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TransferPosition moves the registry token. Recorded lender and borrower
// identities are not changed, so authorization stays with them.
func (s *Service) TransferPosition(ctx context.Context, id uint64, from, to Account) error {
	if to == "" {
		return ErrInvalidAccount
	}
	return s.update(ctx, "transfer_position", func(ctx context.Context, tx Tx) ([]any, error) {
		owner, err := tx.Registry().OwnerOf(ctx, id)
		if err != nil {
			return nil, err
		}
		if owner != from {
			return nil, ErrUnauthorized
		}
		if err := tx.Registry().Transfer(ctx, id, from, to); err != nil {
			return nil, err
		}
		err = emit(ctx, tx, s.now().UTC(), TopicPositionTransferred, id, transferPayload{
			PositionID: id,
			From:       string(from),
			To:         string(to),
		}, from, to)
		return []any{"position_id", id, "from", from, "to", to}, err
	})
}

func (s *Service) GetLendingPosition(ctx context.Context, id uint64) (*LendingPosition, error) {
	var out *LendingPosition
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.Lending().Get(ctx, id)
		out = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetBorrowingPosition(ctx context.Context, id uint64) (*BorrowingPosition, error) {
	var out *BorrowingPosition
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.Borrowing().Get(ctx, id)
		out = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type AccountPositions struct {
	Lending   []LendingPosition
	Borrowing []BorrowingPosition
}

func (s *Service) ListPositions(ctx context.Context, account Account) (*AccountPositions, error) {
	out := &AccountPositions{}
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		lending, err := tx.Lending().ListByLender(ctx, account)
		if err != nil {
			return err
		}
		borrowing, err := tx.Borrowing().ListByBorrower(ctx, account)
		if err != nil {
			return err
		}
		out.Lending = lending
		out.Borrowing = borrowing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) LoansForLendingPosition(ctx context.Context, lendingID uint64) ([]BorrowingPosition, error) {
	var out []BorrowingPosition
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Lending().Get(ctx, lendingID); err != nil {
			return err
		}
		items, err := tx.Borrowing().ListByLendingPosition(ctx, lendingID)
		out = items
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Balance(ctx context.Context, account Account, currency string) (*uint256.Int, error) {
	var out *uint256.Int
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.Currency(currency).BalanceOf(ctx, account)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) OwnerOf(ctx context.Context, id uint64) (Account, error) {
	var out Account
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		owner, err := tx.Registry().OwnerOf(ctx, id)
		out = owner
		return err
	})
	return out, err
}

func (s *Service) CurrentSupply(ctx context.Context) (uint64, error) {
	var out uint64
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		n, err := tx.Registry().CurrentSupply(ctx)
		out = n
		return err
	})
	return out, err
}

type HealthQuote struct {
	Position *BorrowingPosition
	Rate     *uint256.Int
	Health   *collateral.Health
}

func (s *Service) LoanHealth(ctx context.Context, id uint64) (*HealthQuote, error) {
	var out *HealthQuote
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		bp, h, rate, err := s.borrowing.Health(ctx, tx, id)
		if err != nil {
			return err
		}
		out = &HealthQuote{Position: bp, Rate: rate, Health: h}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CurrentRate reads the configured oracle through the same validation the
// books apply.
func (s *Service) CurrentRate(ctx context.Context) (*uint256.Int, error) {
	return s.borrowing.currentRate(ctx)
}

func (s *Service) IsAdmin(caller Account) bool {
	return s.cfg.Admin != "" && caller == s.cfg.Admin
}

func (s *Service) SetOracle(caller Account, oracle PriceOracle) error {
	if !s.IsAdmin(caller) {
		return ErrUnauthorized
	}
	s.mu.Lock()
	s.oracle = oracle
	s.mu.Unlock()
	s.logger.Info("oracle replaced", "admin", caller)
	return nil
}

// SetLoanCurrency changes the currency new lending positions are opened in.
// Existing positions keep the currency they were created with.
func (s *Service) SetLoanCurrency(caller Account, code string) error {
	if !s.IsAdmin(caller) {
		return ErrUnauthorized
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidAccount
	}
	s.mu.Lock()
	s.loanCurrency = code
	s.mu.Unlock()
	s.logger.Info("loan currency replaced", "admin", caller, "currency", code)
	return nil
}

// Deposit mints balance into an account. It is the administrator's faucet for
// funding parties and the liquidation reserve.
func (s *Service) Deposit(ctx context.Context, caller, to Account, currency string, amount *uint256.Int) error {
	if !s.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if to == "" {
		return ErrInvalidAccount
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return s.update(ctx, "deposit", func(ctx context.Context, tx Tx) ([]any, error) {
		if err := tx.Currency(currency).Deposit(ctx, to, amount); err != nil {
			return nil, err
		}
		err := emit(ctx, tx, s.now().UTC(), TopicBalanceDeposited, 0, depositPayload{
			Account:  string(to),
			Currency: currency,
			Amount:   amount.Dec(),
		}, to)
		return []any{"account", to, "currency", currency, "amount", amount.Dec()}, err
	})
}

// update runs fn in one Store.Update. The attributes fn returns describe the
// committed change and are logged only after commit.
func (s *Service) update(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) ([]any, error)) error {
	start := time.Now()
	var attrs []any
	err := s.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		a, err := fn(ctx, tx)
		attrs = a
		return err
	})
	if s.recorder != nil {
		s.recorder.Observe(op, err, time.Since(start))
	}
	if err != nil {
		var domainErr *Error
		if errors.As(err, &domainErr) {
			s.logger.Warn("ledger operation rejected", "op", op, "code", domainErr.Code(), "error", err)
		} else {
			s.logger.Error("ledger operation failed", "op", op, "error", err)
		}
		return err
	}
	s.logger.Info("ledger operation committed", append([]any{"op", op}, attrs...)...)
	return nil
}
