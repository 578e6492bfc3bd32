package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/payment"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

// walletFor loads the user's wallet, creating an empty one on first use.
func (g *Gateway) walletFor(ctx context.Context, userID string) (*models.Wallet, error) {
	wallet, err := g.deps.Wallets.FindByUser(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, store.ErrWalletNotFound) {
		return nil, err
	}

	wallet, err = g.deps.Wallets.Create(ctx, models.NewWallet(userID))
	if errors.Is(err, store.ErrWalletExists) {
		return g.deps.Wallets.FindByUser(ctx, userID)
	}
	return wallet, err
}

func (g *Gateway) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := g.walletFor(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeOK(w, "Wallet", wallet)
}

type verifyFundingRequest struct {
	Reference string `json:"reference"`
}

type fundingResult struct {
	Wallet         *models.Wallet `json:"wallet"`
	Credited       int64          `json:"credited"`
	EyesCredited   int64          `json:"eyesCredited"`
	AlreadyApplied bool           `json:"alreadyApplied"`
}

func (g *Gateway) handleVerifyFunding(w http.ResponseWriter, r *http.Request) {
	var req verifyFundingRequest
	if err := readJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	userID := UserIDFrom(ctx)

	v, err := g.deps.Payments.Verify(ctx, req.Reference)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if v.UserID != "" && v.UserID != userID {
		g.writeError(w, r, errForbidden)
		return
	}

	wallet, err := g.walletFor(ctx, userID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	if !wallet.Credit(v.Amount, v.Reference, fmt.Sprintf("Wallet funding %s", v.Reference)) {
		result := fundingResult{Wallet: wallet, AlreadyApplied: true}
		result.EyesCredited = g.creditEyes(ctx, userID, v)
		writeOK(w, "Payment already applied", result)
		return
	}

	if err := g.deps.Wallets.Save(ctx, wallet); err != nil {
		if !errors.Is(err, store.ErrDuplicateReference) {
			g.writeError(w, r, err)
			return
		}
		// Another request applied the same reference first.
		current, ferr := g.deps.Wallets.FindByUser(ctx, userID)
		if ferr != nil {
			g.writeError(w, r, ferr)
			return
		}
		result := fundingResult{Wallet: current, AlreadyApplied: true}
		result.EyesCredited = g.creditEyes(ctx, userID, v)
		writeOK(w, "Payment already applied", result)
		return
	}

	result := fundingResult{Wallet: wallet, Credited: v.Amount}
	result.EyesCredited = g.creditEyes(ctx, userID, v)

	g.logger.Info("wallet funded",
		slog.String("user_id", userID),
		slog.String("reference", v.Reference),
		slog.Int64("amount", v.Amount))
	writeOK(w, "Payment verified", result)
}

// creditEyes applies the eyes bought with v, keyed by its reference so a
// repeated verify completes a credit that failed earlier without doubling
// one that succeeded. It returns the eyes added by this call.
func (g *Gateway) creditEyes(ctx context.Context, userID string, v *payment.Verification) int64 {
	if v.Eyes <= 0 {
		return 0
	}
	var added bool
	user, err := g.deps.Users.Update(ctx, userID, func(u *models.User) error {
		added = u.CreditEyePurchase(v.Reference, v.Eyes)
		return nil
	})
	if err != nil {
		g.logger.Error("eyes purchase not credited",
			slog.String("user_id", userID),
			slog.String("reference", v.Reference),
			slog.Int64("eyes", v.Eyes),
			slog.Any("error", err))
		return 0
	}
	if !added {
		return 0
	}
	if err := g.deps.Leaderboard.Record(ctx, user); err != nil {
		g.logger.Warn("leaderboard not updated", slog.String("user_id", userID), slog.Any("error", err))
	}
	return v.Eyes
}

type transactionsPage struct {
	Balance      int64                      `json:"balance"`
	Available    int64                      `json:"available"`
	Transactions []models.WalletTransaction `json:"transactions"`
}

// handleTransactions lists the caller's ledger newest first, optionally
// filtered by ?type= and ?status=.
func (g *Gateway) handleTransactions(w http.ResponseWriter, r *http.Request) {
	wallet, err := g.walletFor(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	typ := models.TransactionType(q.Get("type"))
	status := models.TransactionStatus(q.Get("status"))
	limit, err := parseLimit(q.Get("limit"), 50, 200)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	out := make([]models.WalletTransaction, 0, min(limit, len(wallet.Transactions)))
	for i := len(wallet.Transactions) - 1; i >= 0 && len(out) < limit; i-- {
		tx := wallet.Transactions[i]
		if (typ != "" && tx.Type != typ) || (status != "" && tx.Status != status) {
			continue
		}
		out = append(out, tx)
	}
	writeOK(w, "Transactions", transactionsPage{
		Balance:      wallet.Balance,
		Available:    wallet.Available(),
		Transactions: out,
	})
}
