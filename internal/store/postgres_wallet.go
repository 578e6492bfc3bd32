package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jmoiron/sqlx"
)

type walletRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type transactionRow struct {
	ID           string         `db:"id"`
	WalletID     string         `db:"wallet_id"`
	Amount       int64          `db:"amount"`
	Type         string         `db:"type"`
	Status       string         `db:"status"`
	Reference    sql.NullString `db:"reference"`
	TransferCode string         `db:"transfer_code"`
	Description  string         `db:"description"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (t *transactionRow) toModel() models.WalletTransaction {
	return models.WalletTransaction{
		ID:           t.ID,
		Amount:       t.Amount,
		Type:         models.TransactionType(t.Type),
		Status:       models.TransactionStatus(t.Status),
		Reference:    t.Reference.String,
		TransferCode: t.TransferCode,
		Description:  t.Description,
		Date:         t.CreatedAt,
	}
}

const transactionColumns = `id, wallet_id, amount, type, status, reference, transfer_code, description, created_at`

const insertTransactionSQL = `
INSERT INTO wallet_transactions (` + transactionColumns + `)
VALUES (:id, :wallet_id, :amount, :type, :status, :reference, :transfer_code, :description, :created_at)
ON CONFLICT (id) DO NOTHING`

// Completed lines are the source of truth for the balance.
const recomputeBalanceSQL = `
UPDATE wallets SET
	balance = COALESCE((
		SELECT SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END)
		FROM wallet_transactions
		WHERE wallet_id = $1 AND status = 'completed'
	), 0),
	updated_at = NOW()
WHERE id = $1
RETURNING balance`

const pendingDebitsSQL = `
SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions
WHERE wallet_id = $1 AND type = 'debit' AND status = 'pending'

// PostgresWalletStore implements WalletStore over wallets and wallet_transactions.
type PostgresWalletStore struct {
	db *sqlx.DB
}

// NewPostgresWalletStore wraps an open connection pool.
func NewPostgresWalletStore(db *sqlx.DB) *PostgresWalletStore {
	return &PostgresWalletStore{db: db}
}

func (s *PostgresWalletStore) FindByUser(ctx context.Context, userID string) (*models.Wallet, error) {
	var row walletRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		return nil, mapNotFound(err, ErrWalletNotFound)
	}

	var txRows []transactionRow
	err = s.db.SelectContext(ctx, &txRows,
		`SELECT `+transactionColumns+` FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at ASC`, row.ID)
	if err != nil {
		return nil, fmt.Errorf("load wallet transactions: %w", err)
	}

	w := &models.Wallet{
		ID:           row.ID,
		UserID:       row.UserID,
		Balance:      row.Balance,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		Transactions: make([]models.WalletTransaction, 0, len(txRows)),
	}
	for i := range txRows {
		w.Transactions = append(w.Transactions, txRows[i].toModel())
	}
	return w, nil
}

func (s *PostgresWalletStore) Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin wallet create: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		 VALUES (:id, :user_id, 0, :created_at, :updated_at)`,
		walletRow{ID: wallet.ID, UserID: wallet.UserID, CreatedAt: wallet.CreatedAt, UpdatedAt: wallet.UpdatedAt})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrWalletExists
		}
		return nil, fmt.Errorf("insert wallet: %w", err)
	}

	balance, err := writeTransactions(ctx, tx, wallet)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit wallet create: %w", err)
	}

	created := wallet.Clone()
	created.Balance = balance
	return created, nil
}

func (s *PostgresWalletStore) Save(ctx context.Context, wallet *models.Wallet) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin wallet save: %w", err)
	}
	defer tx.Rollback()

	// Serializes reservations against the same wallet.
	var locked string
	if err := tx.GetContext(ctx, &locked, `SELECT id FROM wallets WHERE id = $1 FOR UPDATE`, wallet.ID); err != nil {
		return mapNotFound(err, ErrWalletNotFound)
	}

	balance, err := writeTransactions(ctx, tx, wallet)
	if err != nil {
		return err
	}
	var pending int64
	if err := tx.GetContext(ctx, &pending, pendingDebitsSQL, wallet.ID); err != nil {
		return fmt.Errorf("sum pending debits: %w", err)
	}
	if pending > balance {
		return ErrInsufficientFunds
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit wallet save: %w", err)
	}
	wallet.Balance = balance
	return nil
}

// writeTransactions inserts unseen lines and returns the recomputed balance.
func writeTransactions(ctx context.Context, tx *sqlx.Tx, wallet *models.Wallet) (int64, error) {
	for _, t := range wallet.Transactions {
		row := transactionRow{
			ID:           t.ID,
			WalletID:     wallet.ID,
			Amount:       t.Amount,
			Type:         string(t.Type),
			Status:       string(t.Status),
			Reference:    sql.NullString{String: t.Reference, Valid: t.Reference != ""},
			TransferCode: t.TransferCode,
			Description:  t.Description,
			CreatedAt:    t.Date,
		}
		if _, err := tx.NamedExecContext(ctx, insertTransactionSQL, row); err != nil {
			if isUniqueViolation(err) {
				return 0, ErrDuplicateReference
			}
			return 0, fmt.Errorf("insert wallet transaction: %w", err)
		}
	}

	var balance int64
	if err := tx.GetContext(ctx, &balance, recomputeBalanceSQL, wallet.ID); err != nil {
		return 0, mapNotFound(err, ErrWalletNotFound)
	}
	return balance, nil
}

func (s *PostgresWalletStore) UpdatePending(ctx context.Context, userID, txID string, fn func(*models.WalletTransaction)) (*models.Wallet, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction update: %w", err)
	}
	defer tx.Rollback()

	var row transactionRow
	err = tx.GetContext(ctx, &row,
		`SELECT t.id, t.wallet_id, t.amount, t.type, t.status, t.reference, t.transfer_code, t.description, t.created_at
		 FROM wallet_transactions t JOIN wallets w ON w.id = t.wallet_id
		 WHERE t.id = $1 AND w.user_id = $2
		 FOR UPDATE OF t`, txID, userID)
	if err != nil {
		return nil, mapNotFound(err, ErrTransactionMissing)
	}
	if row.Status != string(models.TransactionPending) {
		return nil, ErrNotPending
	}

	line := row.toModel()
	fn(&line)
	_, err = tx.ExecContext(ctx,
		`UPDATE wallet_transactions SET status = $2, transfer_code = $3 WHERE id = $1`,
		row.ID, string(line.Status), line.TransferCode)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("update wallet transaction: %w", err)
	}

	var balance int64
	if err := tx.GetContext(ctx, &balance, recomputeBalanceSQL, row.WalletID); err != nil {
		return nil, mapNotFound(err, ErrWalletNotFound)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction update: %w", err)
	}
	return s.FindByUser(ctx, userID)
}
