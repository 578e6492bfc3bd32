package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
)

// MemoryRoundStore keeps rounds in a map. Used by tests and local runs.
type MemoryRoundStore struct {
	mu     sync.RWMutex
	rounds map[string]*models.Round
}

// NewMemoryRoundStore creates an empty store.
func NewMemoryRoundStore() *MemoryRoundStore {
	return &MemoryRoundStore{rounds: make(map[string]*models.Round)}
}

func (s *MemoryRoundStore) FindByID(_ context.Context, id string) (*models.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rounds[id]
	if !ok {
		return nil, ErrRoundNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryRoundStore) Save(_ context.Context, round *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := round.Clone()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.rounds[c.ID] = c
	return nil
}

func (s *MemoryRoundStore) Update(_ context.Context, id string, fn func(*models.Round) error) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[id]
	if !ok {
		return nil, ErrRoundNotFound
	}
	c := r.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()
	s.rounds[id] = c
	return c.Clone(), nil
}

func (s *MemoryRoundStore) ListStartingFrom(_ context.Context, from time.Time) ([]*models.Round, error) {
	out := s.filter(func(r *models.Round) bool { return !r.StartsAt.Before(from) })
	slices.SortFunc(out, func(a, b *models.Round) int { return a.StartsAt.Compare(b.StartsAt) })
	return out, nil
}

func (s *MemoryRoundStore) ListStartedBefore(_ context.Context, before time.Time, limit int) ([]*models.Round, error) {
	out := s.filter(func(r *models.Round) bool { return r.StartsAt.Before(before) })
	slices.SortFunc(out, func(a, b *models.Round) int { return b.StartsAt.Compare(a.StartsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryRoundStore) filter(keep func(*models.Round) bool) []*models.Round {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// MemoryUserStore keeps users in a map.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

// NewMemoryUserStore creates an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*models.User)}
}

func (s *MemoryUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryUserStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := user.Clone()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.users[c.ID] = c
	return nil
}

func (s *MemoryUserStore) Update(_ context.Context, id string, fn func(*models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := u.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()
	s.users[id] = c
	return c.Clone(), nil
}

func (s *MemoryUserStore) ListUsers(_ context.Context, limit int) ([]*models.User, error) {
	s.mu.RLock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.User) int { return cmp.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryWalletStore keeps wallets keyed by user id.
type MemoryWalletStore struct {
	mu      sync.RWMutex
	wallets map[string]*models.Wallet
}

// NewMemoryWalletStore creates an empty store.
func NewMemoryWalletStore() *MemoryWalletStore {
	return &MemoryWalletStore{wallets: make(map[string]*models.Wallet)}
}

func (s *MemoryWalletStore) FindByUser(_ context.Context, userID string) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return w.Clone(), nil
}

func (s *MemoryWalletStore) Create(_ context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[wallet.UserID]; ok {
		return nil, ErrWalletExists
	}
	s.wallets[wallet.UserID] = wallet.Clone()
	return wallet.Clone(), nil
}

func (s *MemoryWalletStore) Save(_ context.Context, wallet *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.wallets[wallet.UserID]
	if !ok {
		return ErrWalletNotFound
	}

	known := make(map[string]bool, len(current.Transactions))
	for _, tx := range current.Transactions {
		known[tx.ID] = true
	}
	// Balance is the stored balance plus the new lines, never the caller's copy.
	next := current.Clone()
	for _, tx := range wallet.Transactions {
		if known[tx.ID] {
			continue
		}
		if tx.Status == models.TransactionCompleted {
			if next.HasCompletedReference(tx.Reference) {
				return ErrDuplicateReference
			}
			next.Balance += signedAmount(tx)
		}
		next.Transactions = append(next.Transactions, tx)
	}
	if next.Available() < 0 {
		return ErrInsufficientFunds
	}
	next.UpdatedAt = time.Now().UTC()

	s.wallets[wallet.UserID] = next
	wallet.Balance = next.Balance
	wallet.Transactions = slices.Clone(next.Transactions)
	return nil
}

func (s *MemoryWalletStore) UpdatePending(_ context.Context, userID, txID string, fn func(*models.WalletTransaction)) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.wallets[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	i := slices.IndexFunc(current.Transactions, func(tx models.WalletTransaction) bool { return tx.ID == txID })
	if i < 0 {
		return nil, ErrTransactionMissing
	}
	if current.Transactions[i].Status != models.TransactionPending {
		return nil, ErrNotPending
	}

	next := current.Clone()
	edited := next.Transactions[i]
	fn(&edited)
	line := &next.Transactions[i]
	line.Status, line.TransferCode = edited.Status, edited.TransferCode
	if line.Status == models.TransactionCompleted {
		if current.HasCompletedReference(line.Reference) {
			return nil, ErrDuplicateReference
		}
		next.Balance += signedAmount(*line)
	}
	next.UpdatedAt = time.Now().UTC()

	s.wallets[userID] = next
	return next.Clone(), nil
}

func signedAmount(tx models.WalletTransaction) int64 {
	if tx.Type == models.TransactionDebit {
		return -tx.Amount
	}
	return tx.Amount
}
