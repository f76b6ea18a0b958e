package postgres

import (
	admindomain "github.com/hendo420/P2PLendingPlatform/internal/domain/admin"
	"github.com/hendo420/P2PLendingPlatform/internal/domain/ledger"
	"github.com/hendo420/P2PLendingPlatform/internal/jobs"
	"github.com/hendo420/P2PLendingPlatform/internal/ws"
)

var (
	_ ledger.Store                = (*LedgerStore)(nil)
	_ ledger.LendingRepository    = (*LendingRepository)(nil)
	_ ledger.BorrowingRepository  = (*BorrowingRepository)(nil)
	_ ledger.PositionRegistry     = (*RegistryRepository)(nil)
	_ ledger.CurrencyLedger       = (*BalanceRepository)(nil)
	_ ledger.EventSink            = (*EventRepository)(nil)
	_ ws.EventSource              = (*EventRepository)(nil)
	_ jobs.OutboxRepository       = (*OutboxRepository)(nil)
	_ jobs.EventRepository        = (*EventRepository)(nil)
	_ admindomain.AuditRepository = (*AdminAuditRepository)(nil)
)
