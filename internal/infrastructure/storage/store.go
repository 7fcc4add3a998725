package storage

import (
	"context"

	"github.com/oakhollow/trapengine/internal/domain"
	"github.com/oakhollow/trapengine/internal/domain/events"
)

// Store is the recovery-cache interface both MemoryStore and BunStore
// satisfy. locks.Registry and dialogue.Store keep their own in-memory maps
// as the hot path, write each lock and pending-check mutation through to a
// Store, and are rebuilt from it on process start. The spotted-ledger
// methods are implemented here, but passive.Sensor does not call them: its
// ledger lives only in memory and is not restored after a restart.
type Store interface {
	SaveLock(ctx context.Context, rec domain.LockRecord) error
	GetLock(ctx context.Context, tokenID string) (domain.LockRecord, bool, error)
	DeleteLock(ctx context.Context, tokenID string) error
	ListLocks(ctx context.Context) ([]domain.LockRecord, error)

	SavePendingCheck(ctx context.Context, pc domain.PendingCheck) error
	GetPendingCheck(ctx context.Context, initiatorID string) (domain.PendingCheck, bool, error)
	DeletePendingCheck(ctx context.Context, initiatorID string) error
	ListPendingChecks(ctx context.Context) ([]domain.PendingCheck, error)

	MarkSpotted(ctx context.Context, trapID, observerID string) error
	IsSpotted(ctx context.Context, trapID, observerID string) (bool, error)
	ClearSpotted(ctx context.Context, trapID string) error

	AppendEvent(ctx context.Context, ev events.Event) error
	ListEventsByTrap(ctx context.Context, trapID string) ([]events.Event, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*BunStore)(nil)
)
