package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Account identifies a party to a transfer.
type Account string

const (
	// CustodyAccount holds lender capital, repayments and escrowed collateral.
	CustodyAccount Account = "system:custody"
	// DefaultReserveAccount buys seized collateral during liquidation.
	DefaultReserveAccount Account = "system:liquidation_reserve"
)

type LendingPosition struct {
	ID                  uint64
	Lender              Account
	Currency            string
	Available           *uint256.Int
	Collected           *uint256.Int
	InterestRatePercent uint8
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (p *LendingPosition) Clone() *LendingPosition {
	out := *p
	out.Available = p.Available.Clone()
	out.Collected = p.Collected.Clone()
	return &out
}

type BorrowingPosition struct {
	ID                uint64
	Borrower          Account
	LendingPositionID uint64
	Currency          string
	Collateral        *uint256.Int
	Principal         *uint256.Int
	Due               *uint256.Int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (p *BorrowingPosition) Clone() *BorrowingPosition {
	out := *p
	out.Collateral = p.Collateral.Clone()
	out.Principal = p.Principal.Clone()
	out.Due = p.Due.Clone()
	return &out
}

const (
	TopicLendingCreated      = "lending.created"
	TopicLendingWithdrawn    = "lending.withdrawn"
	TopicRepaymentsCollected = "lending.repayments_collected"
	TopicLoanTaken           = "loan.taken"
	TopicLoanRepaid          = "loan.repaid"
	TopicLoanClosed          = "loan.closed"
	TopicCollateralAdded     = "loan.collateral_added"
	TopicLoanLiquidated      = "loan.liquidated"
	TopicPositionTransferred = "position.transferred"
	TopicBalanceDeposited    = "account.deposited"
)

// Event records one committed state change. Seq is assigned by the store.
type Event struct {
	ID         uuid.UUID
	Seq        int64
	Topic      string
	PositionID uint64
	Accounts   []Account
	Payload    json.RawMessage
	CreatedAt  time.Time
}

type PriceOracle interface {
	CurrentRate(ctx context.Context) (*uint256.Int, error)
}

type CurrencyLedger interface {
	Transfer(ctx context.Context, from, to Account, amount *uint256.Int) error
	Deposit(ctx context.Context, to Account, amount *uint256.Int) error
	BalanceOf(ctx context.Context, account Account) (*uint256.Int, error)
}

type PositionRegistry interface {
	// Mint assigns the next id from a counter shared by both position kinds.
	Mint(ctx context.Context, owner Account) (uint64, error)
	Burn(ctx context.Context, id uint64) error
	OwnerOf(ctx context.Context, id uint64) (Account, error)
	Transfer(ctx context.Context, id uint64, from, to Account) error
	CurrentSupply(ctx context.Context) (uint64, error)
}

type LendingRepository interface {
	Get(ctx context.Context, id uint64) (*LendingPosition, error)
	Insert(ctx context.Context, p *LendingPosition) error
	Update(ctx context.Context, p *LendingPosition) error
	ListByLender(ctx context.Context, lender Account) ([]LendingPosition, error)
}

type BorrowingRepository interface {
	Get(ctx context.Context, id uint64) (*BorrowingPosition, error)
	Insert(ctx context.Context, p *BorrowingPosition) error
	Update(ctx context.Context, p *BorrowingPosition) error
	Delete(ctx context.Context, id uint64) error
	ListByBorrower(ctx context.Context, borrower Account) ([]BorrowingPosition, error)
	ListByLendingPosition(ctx context.Context, lendingID uint64) ([]BorrowingPosition, error)
}

type EventSink interface {
	Append(ctx context.Context, ev Event) error
}

// Tx is one atomic unit of work. Nothing written through it is visible to
// other callers until the enclosing Store.Update returns nil.
type Tx interface {
	Lending() LendingRepository
	Borrowing() BorrowingRepository
	Registry() PositionRegistry
	Currency(code string) CurrencyLedger
	Events() EventSink
}

type Store interface {
	// Update runs fn as a single critical section and commits only if fn
	// returns nil.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Recorder observes operation outcomes.
type Recorder interface {
	Observe(op string, err error, d time.Duration)
}
