package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// TransactionType direction of a wallet movement
type TransactionType string

// TransactionStatus lifecycle of a wallet movement
type TransactionStatus string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"

	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// WalletTransaction is one ledger line. Lines are never removed; only a
// pending line changes status.
type WalletTransaction struct {
	ID        string            `json:"id"`
	Amount    int64             `json:"amount"`
	Type      TransactionType   `json:"type"`
	Status    TransactionStatus `json:"status"`
	Reference string            `json:"reference,omitempty"`
	// TransferCode is the payout provider's handle on a withdrawal.
	TransferCode string    `json:"transferCode,omitempty"`
	Description  string    `json:"description,omitempty"`
	Date         time.Time `json:"date"`
}

// Wallet holds a user's monetary balance in minor units.
type Wallet struct {
	ID           string              `json:"id"`
	UserID       string              `json:"userId"`
	Balance      int64               `json:"balance"`
	Transactions []WalletTransaction `json:"transactions"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// NewWallet returns an empty wallet for userID.
func NewWallet(userID string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (w *Wallet) Clone() *Wallet {
	c := *w
	c.Transactions = slices.Clone(w.Transactions)
	return &c
}

// HasCompletedReference reports whether a completed transaction already
// carries reference.
func (w *Wallet) HasCompletedReference(reference string) bool {
	if reference == "" {
		return false
	}
	return slices.ContainsFunc(w.Transactions, func(tx WalletTransaction) bool {
		return tx.Reference == reference && tx.Status == TransactionCompleted
	})
}

// Credit adds amount and appends a completed credit line. It returns false
// without changing anything when reference was already applied.
func (w *Wallet) Credit(amount int64, reference, description string) bool {
	if w.HasCompletedReference(reference) {
		return false
	}
	now := time.Now().UTC()
	w.Balance += amount
	w.Transactions = append(w.Transactions, WalletTransaction{
		ID:          uuid.NewString(),
		Amount:      amount,
		Type:        TransactionCredit,
		Status:      TransactionCompleted,
		Reference:   reference,
		Description: description,
		Date:        now,
	})
	w.UpdatedAt = now
	return true
}

// Available is the balance minus debits still pending.
func (w *Wallet) Available() int64 {
	avail := w.Balance
	for _, tx := range w.Transactions {
		if tx.Type == TransactionDebit && tx.Status == TransactionPending {
			avail -= tx.Amount
		}
	}
	return avail
}

// Withdraw reserves amount as a pending debit. The balance only drops once
// the debit is completed. It returns nil when amount is not positive or
// exceeds what is available.
func (w *Wallet) Withdraw(amount int64, reference, description string) *WalletTransaction {
	if amount <= 0 || amount > w.Available() {
		return nil
	}
	now := time.Now().UTC()
	w.Transactions = append(w.Transactions, WalletTransaction{
		ID:          uuid.NewString(),
		Amount:      amount,
		Type:        TransactionDebit,
		Status:      TransactionPending,
		Reference:   reference,
		Description: description,
		Date:        now,
	})
	w.UpdatedAt = now
	return &w.Transactions[len(w.Transactions)-1]
}

// Withdrawal finds a debit by reference or transfer code.
func (w *Wallet) Withdrawal(key string) (WalletTransaction, bool) {
	if key == "" {
		return WalletTransaction{}, false
	}
	i := slices.IndexFunc(w.Transactions, func(tx WalletTransaction) bool {
		return tx.Type == TransactionDebit && (tx.Reference == key || tx.TransferCode == key)
	})
	if i < 0 {
		return WalletTransaction{}, false
	}
	return w.Transactions[i], true
}
