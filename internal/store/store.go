// Package store persists rounds, users and wallets.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
)

var (
	ErrRoundNotFound      = errors.New("round not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrWalletExists       = errors.New("wallet already exists")
	ErrDuplicateReference = errors.New("transaction reference already applied")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrTransactionMissing = errors.New("wallet transaction not found")
	ErrNotPending         = errors.New("wallet transaction is not pending")
)

// RoundStore is the durable record of game rounds.
//
// Update loads the round, applies fn and persists the result as one atomic
// step; no other Update for the same id interleaves. If fn returns an error
// nothing is written and the error is returned unchanged.
type RoundStore interface {
	FindByID(ctx context.Context, id string) (*models.Round, error)
	Save(ctx context.Context, round *models.Round) error
	Update(ctx context.Context, id string, fn func(*models.Round) error) (*models.Round, error)
}

// RoundLister answers catalogue queries.
type RoundLister interface {
	// ListStartingFrom returns rounds with StartsAt >= from, earliest first.
	ListStartingFrom(ctx context.Context, from time.Time) ([]*models.Round, error)
	// ListStartedBefore returns rounds with StartsAt < before, latest first.
	ListStartedBefore(ctx context.Context, before time.Time, limit int) ([]*models.Round, error)
}

// UserStore is the user directory.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id string, fn func(*models.User) error) (*models.User, error)
}

// UserLister feeds leaderboard rebuilds.
type UserLister interface {
	ListUsers(ctx context.Context, limit int) ([]*models.User, error)
}

// WalletStore is the wallet ledger. Save persists new transactions; a
// completed transaction whose reference is already stored fails with
// ErrDuplicateReference and writes nothing. Save also refuses, with
// ErrInsufficientFunds, to leave pending debits larger than the balance.
//
// UpdatePending applies fn to a pending line and persists its Status and
// TransferCode; other changes are dropped. Completing a debit lowers the
// balance, failing it releases the reservation.
type WalletStore interface {
	FindByUser(ctx context.Context, userID string) (*models.Wallet, error)
	Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	Save(ctx context.Context, wallet *models.Wallet) error
	UpdatePending(ctx context.Context, userID, txID string, fn func(*models.WalletTransaction)) (*models.Wallet, error)
}
