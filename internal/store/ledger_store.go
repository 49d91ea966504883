package store

import (
	"context"
	"errors"

	"github.com/rosariomoscato/Design-Buddy/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientCredits is returned by Apply when a debit would take
	// the balance below zero. No mutation happens in that case.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// LedgerStore holds per-user credit balances and their append-only usage
// history. Apply is the only mutation path for existing accounts: the
// balance change and its usage record commit together or not at all.
type LedgerStore interface {
	// Balance returns the current balance and whether the account exists.
	Balance(ctx context.Context, userID string) (int64, bool, error)

	// Apply atomically adds delta to the account balance and appends the
	// given usage record, returning the new balance. A negative delta that
	// would overdraw the account fails with ErrInsufficientCredits; a
	// missing account fails with ErrAccountNotFound. Concurrent calls for
	// the same account serialize so no update is lost.
	Apply(ctx context.Context, userID string, delta int64, record domain.UsageRecord) (int64, error)

	// Initialize creates the account with the given balance, or resets an
	// existing one to it. It does not append a usage record.
	Initialize(ctx context.Context, userID string, balance int64) error

	// History returns up to limit usage records for the account, oldest
	// first.
	History(ctx context.Context, userID string, limit int) ([]domain.UsageRecord, error)
}
