package store

import (
	"context"
	"sync"
	"time"

	"github.com/rosariomoscato/Design-Buddy/internal/domain"
	"github.com/rosariomoscato/Design-Buddy/internal/id"
)

// MemoryLedgerStore keeps balances and usage history in memory behind one
// mutex, which gives Apply the same lost-update-free semantics as the
// postgres row lock. Used in tests and local development.
type MemoryLedgerStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	records  map[string][]domain.UsageRecord
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts: make(map[string]domain.Account),
		records:  make(map[string][]domain.UsageRecord),
	}
}

func (s *MemoryLedgerStore) Balance(_ context.Context, userID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[userID]
	if !ok {
		return 0, false, nil
	}
	return account.Balance, true, nil
}

func (s *MemoryLedgerStore) Apply(_ context.Context, userID string, delta int64, record domain.UsageRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}

	newBalance := account.Balance + delta
	if newBalance < 0 {
		return 0, ErrInsufficientCredits
	}

	now := time.Now().UTC()
	account.Balance = newBalance
	account.UpdatedAt = now
	s.accounts[userID] = account

	if record.ID == "" {
		record.ID = id.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UserID = userID
	s.records[userID] = append(s.records[userID], record)

	return newBalance, nil
}

func (s *MemoryLedgerStore) Initialize(_ context.Context, userID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[userID] = domain.Account{
		UserID:    userID,
		Balance:   balance,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryLedgerStore) History(_ context.Context, userID string, limit int) ([]domain.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	records := s.records[userID]
	if len(records) > limit {
		records = records[:limit]
	}

	out := make([]domain.UsageRecord, len(records))
	copy(out, records)
	return out, nil
}
