// Package credit implements the credit ledger: the sole mutator of account
// balances. Every debit or credit pairs the balance change with exactly one
// usage record, committed atomically by the underlying store.
package credit

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/rosariomoscato/Design-Buddy/internal/domain"
	"github.com/rosariomoscato/Design-Buddy/internal/store"
)

// ErrInvalidAmount rejects non-positive debit/credit amounts before any
// store access.
var ErrInvalidAmount = errors.New("amount must be positive")

// Result is the outcome of a Debit or Credit call. Ordinary business
// failures (unknown account, insufficient credits, bad amount) land in Err
// with Success false; they are values, not propagated errors, so callers
// can render them directly.
type Result struct {
	Success    bool
	NewBalance int64
	Err        error
}

type Service struct {
	ledger store.LedgerStore
	logger *log.Logger
}

func NewService(ledger store.LedgerStore, logger *log.Logger) *Service {
	return &Service{
		ledger: ledger,
		logger: logger,
	}
}

// GetBalance returns the account's current balance. An unknown account
// reads as zero credits rather than an error.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, ok, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance for user %s: %w", userID, err)
	}
	if !ok {
		return 0, nil
	}
	return balance, nil
}

// Debit consumes amount credits from the account and appends a usage
// record with delta = +amount, as one atomic unit. It is safe under
// concurrent debits for the same account.
func (s *Service) Debit(ctx context.Context, userID string, amount int64, description string) Result {
	if amount <= 0 {
		return Result{Err: ErrInvalidAmount}
	}

	newBalance, err := s.ledger.Apply(ctx, userID, -amount, domain.UsageRecord{
		UserID:      userID,
		Delta:       amount,
		Description: description,
	})
	if err != nil {
		return Result{Err: err}
	}

	return Result{Success: true, NewBalance: newBalance}
}

// Credit restores amount credits to the account, for grants and refunds,
// and appends a usage record with delta = -amount. There is no upper
// bound on a balance.
func (s *Service) Credit(ctx context.Context, userID string, amount int64, description string) Result {
	if amount <= 0 {
		return Result{Err: ErrInvalidAmount}
	}

	newBalance, err := s.ledger.Apply(ctx, userID, amount, domain.UsageRecord{
		UserID:      userID,
		Delta:       -amount,
		Description: description,
	})
	if err != nil {
		return Result{Err: err}
	}

	return Result{Success: true, NewBalance: newBalance}
}

// GetHistory returns up to limit usage records for the account, ordered
// oldest first.
func (s *Service) GetHistory(ctx context.Context, userID string, limit int) ([]domain.UsageRecord, error) {
	records, err := s.ledger.History(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history for user %s: %w", userID, err)
	}
	return records, nil
}

// InitializeAccount grants the fixed starting balance to a newly
// provisioned identity, or resets an existing account to it. It runs at
// provisioning time and any failure is the caller's to treat as fatal.
// No usage record is written for the initial grant.
func (s *Service) InitializeAccount(ctx context.Context, userID string) error {
	if err := s.ledger.Initialize(ctx, userID, domain.StartingCredits); err != nil {
		return fmt.Errorf("initialize account for user %s: %w", userID, err)
	}
	return nil
}

// Refund compensates a debit whose paid-for operation failed for a
// provider-attributable reason. It is best effort: a failed refund is
// logged and swallowed so it never masks the original failure.
func (s *Service) Refund(ctx context.Context, userID string, amount int64, reason string) {
	result := s.Credit(ctx, userID, amount, reason)
	if !result.Success && s.logger != nil {
		s.logger.Printf("refund failed user_id=%s amount=%d reason=%q err=%v", userID, amount, reason, result.Err)
	}
}
