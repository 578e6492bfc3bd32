package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/payment"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

var errPayoutsDisabled = errors.New("payouts not configured")

func (g *Gateway) payouts() (payment.Payouts, error) {
	if g.deps.Payouts == nil {
		return nil, errPayoutsDisabled
	}
	return g.deps.Payouts, nil
}

func (g *Gateway) handleBanks(w http.ResponseWriter, r *http.Request) {
	p, err := g.payouts()
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	banks, err := p.ListBanks(r.Context())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeOK(w, "Banks", banks)
}

type accountRequest struct {
	AccountNumber string `json:"accountNumber"`
	BankCode      string `json:"bankCode"`
}

func (req accountRequest) validate() error {
	if strings.TrimSpace(req.AccountNumber) == "" || strings.TrimSpace(req.BankCode) == "" {
		return badRequest("accountNumber and bankCode are required")
	}
	return nil
}

func (g *Gateway) handleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := readJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		g.writeError(w, r, err)
		return
	}
	p, err := g.payouts()
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	acct, err := p.ResolveAccount(r.Context(), req.AccountNumber, req.BankCode)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeOK(w, "Account verified", acct)
}

type withdrawRequest struct {
	accountRequest
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type withdrawalResult struct {
	Wallet       *models.Wallet           `json:"wallet"`
	Transaction  models.WalletTransaction `json:"transaction"`
	TransferCode string                   `json:"transferCode,omitempty"`
	Status       string                   `json:"status"`
	RequiresOTP  bool                     `json:"requiresOtp"`
	AccountName  string                   `json:"accountName,omitempty"`
}

// handleWithdraw reserves the amount as a pending debit, then asks the
// provider to pay it out. The reservation is failed if the provider refuses.
func (g *Gateway) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := readJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if req.Amount <= 0 {
		g.writeError(w, r, badRequest("amount must be a positive number"))
		return
	}
	if err := req.validate(); err != nil {
		g.writeError(w, r, err)
		return
	}
	p, err := g.payouts()
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	userID := UserIDFrom(ctx)

	wallet, err := g.walletFor(ctx, userID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if wallet.Available() < req.Amount {
		g.writeError(w, r, store.ErrInsufficientFunds)
		return
	}

	acct, err := p.ResolveAccount(ctx, req.AccountNumber, req.BankCode)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "Wallet withdrawal"
	}
	reference := "wd_" + uuid.NewString()
	pending := wallet.Withdraw(req.Amount, reference, reason)
	if pending == nil {
		g.writeError(w, r, store.ErrInsufficientFunds)
		return
	}
	line := *pending
	if err := g.deps.Wallets.Save(ctx, wallet); err != nil {
		g.writeError(w, r, err)
		return
	}

	transfer, err := p.InitiateTransfer(ctx, payment.TransferRequest{
		Amount:        req.Amount,
		AccountNumber: acct.Number,
		BankCode:      req.BankCode,
		AccountName:   acct.Name,
		Reason:        reason,
		Reference:     reference,
	})
	if err != nil {
		g.releaseWithdrawal(ctx, userID, line, err)
		g.writeError(w, r, err)
		return
	}

	wallet, err = g.deps.Wallets.UpdatePending(ctx, userID, line.ID, func(tx *models.WalletTransaction) {
		tx.TransferCode = transfer.Code
	})
	if err != nil {
		g.logger.Error("transfer code not stored",
			slog.String("user_id", userID),
			slog.String("reference", reference),
			slog.String("transfer_code", transfer.Code),
			slog.Any("error", err))
		g.writeError(w, r, err)
		return
	}

	wallet, line, err = g.reconcile(ctx, userID, wallet, reference, transfer)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	g.logger.Info("withdrawal initiated",
		slog.String("user_id", userID),
		slog.String("reference", reference),
		slog.Int64("amount", req.Amount),
		slog.String("status", transfer.Status))

	message := "Withdrawal initiated"
	if transfer.Status == payment.TransferOTP {
		message = "OTP required to complete withdrawal"
	}
	writeOK(w, message, withdrawalResult{
		Wallet:       wallet,
		Transaction:  line,
		TransferCode: transfer.Code,
		Status:       transfer.Status,
		RequiresOTP:  transfer.Status == payment.TransferOTP,
		AccountName:  acct.Name,
	})
}

type finalizeRequest struct {
	Reference string `json:"reference"`
	OTP       string `json:"otp"`
}

// handleFinalizeWithdrawal submits the OTP for a pending withdrawal and
// settles the debit once the provider reports a final state.
func (g *Gateway) handleFinalizeWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := readJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Reference) == "" || strings.TrimSpace(req.OTP) == "" {
		g.writeError(w, r, badRequest("reference and otp are required"))
		return
	}
	p, err := g.payouts()
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	userID := UserIDFrom(ctx)
	line, wallet, err := g.pendingWithdrawal(ctx, userID, req.Reference)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	if _, err := p.FinalizeTransfer(ctx, line.TransferCode, req.OTP); err != nil {
		g.writeError(w, r, err)
		return
	}
	transfer, err := p.VerifyTransfer(ctx, line.Reference)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	wallet, line, err = g.reconcile(ctx, userID, wallet, line.Reference, transfer)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeOK(w, withdrawalMessage(line), withdrawalResult{
		Wallet:       wallet,
		Transaction:  line,
		TransferCode: line.TransferCode,
		Status:       transfer.Status,
	})
}

// handleWithdrawalStatus asks the provider about a withdrawal and applies
// a final outcome to the ledger.
func (g *Gateway) handleWithdrawalStatus(w http.ResponseWriter, r *http.Request) {
	p, err := g.payouts()
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	userID := UserIDFrom(ctx)
	wallet, err := g.walletFor(ctx, userID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	line, ok := wallet.Withdrawal(chi.URLParam(r, "reference"))
	if !ok {
		g.writeError(w, r, store.ErrTransactionMissing)
		return
	}
	if line.Status != models.TransactionPending {
		writeOK(w, withdrawalMessage(line), withdrawalResult{
			Wallet: wallet, Transaction: line, TransferCode: line.TransferCode, Status: string(line.Status),
		})
		return
	}

	transfer, err := p.VerifyTransfer(ctx, line.Reference)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	wallet, line, err = g.reconcile(ctx, userID, wallet, line.Reference, transfer)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeOK(w, withdrawalMessage(line), withdrawalResult{
		Wallet:       wallet,
		Transaction:  line,
		TransferCode: line.TransferCode,
		Status:       transfer.Status,
	})
}

func (g *Gateway) pendingWithdrawal(ctx context.Context, userID, key string) (models.WalletTransaction, *models.Wallet, error) {
	wallet, err := g.walletFor(ctx, userID)
	if err != nil {
		return models.WalletTransaction{}, nil, err
	}
	line, ok := wallet.Withdrawal(key)
	switch {
	case !ok:
		return line, nil, store.ErrTransactionMissing
	case line.Status != models.TransactionPending:
		return line, nil, store.ErrNotPending
	case line.TransferCode == "":
		return line, nil, badRequest("withdrawal has no transfer to finalize")
	}
	return line, wallet, nil
}

// reconcile completes or fails the pending debit when transfer is final and
// returns the wallet and line as stored afterwards.
func (g *Gateway) reconcile(ctx context.Context, userID string, wallet *models.Wallet, reference string, transfer *payment.Transfer) (*models.Wallet, models.WalletTransaction, error) {
	line, ok := wallet.Withdrawal(reference)
	if !ok {
		return nil, line, store.ErrTransactionMissing
	}
	final, paid := transfer.Settled()
	if !final || line.Status != models.TransactionPending {
		return wallet, line, nil
	}

	status := models.TransactionFailed
	if paid {
		status = models.TransactionCompleted
	}
	updated, err := g.deps.Wallets.UpdatePending(ctx, userID, line.ID, func(tx *models.WalletTransaction) {
		tx.Status = status
	})
	if err != nil {
		return nil, line, err
	}
	line, _ = updated.Withdrawal(reference)

	g.logger.Info("withdrawal settled",
		slog.String("user_id", userID),
		slog.String("reference", reference),
		slog.String("status", string(status)))
	return updated, line, nil
}

// releaseWithdrawal fails a reservation the provider never accepted.
func (g *Gateway) releaseWithdrawal(ctx context.Context, userID string, line models.WalletTransaction, cause error) {
	_, err := g.deps.Wallets.UpdatePending(ctx, userID, line.ID, func(tx *models.WalletTransaction) {
		tx.Status = models.TransactionFailed
	})
	if err != nil {
		g.logger.Error("withdrawal reservation not released",
			slog.String("user_id", userID),
			slog.String("reference", line.Reference),
			slog.Any("cause", cause),
			slog.Any("error", err))
	}
}

func withdrawalMessage(line models.WalletTransaction) string {
	switch line.Status {
	case models.TransactionCompleted:
		return "Withdrawal completed"
	case models.TransactionFailed:
		return "Withdrawal failed"
	}
	return "Withdrawal pending"
}
