package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

// Notifier delivers push notifications about rounds. Calls are fire and
// forget; implementations log their own failures.
type Notifier interface {
	SendGameStart(ctx context.Context, round *models.Round)
	SendGameEnd(ctx context.Context, round *models.Round)
	SendReminder(ctx context.Context, round *models.Round, minutesUntilStart int)
}

// SettlementResult reports one settlement call.
type SettlementResult struct {
	RoundID            string   `json:"gameId"`
	PrizePool          int64    `json:"prizePool"`
	PerWinner          int64    `json:"perWinner"`
	Survivors          []string `json:"survivors"`
	TotalSurvivors     int      `json:"totalSurvivors"`
	DistributionCount  int      `json:"distributionCount"`
	AlreadyDistributed bool     `json:"alreadyDistributed"`
}

// Settlement splits a round's prize pool among its survivors exactly once.
type Settlement struct {
	registry *Registry
	wallets  store.WalletStore
	notifier Notifier
	logger   *slog.Logger
}

// NewSettlement shares the registry's per-round locks so settlement never
// interleaves with a join or leave of the same round. notifier may be nil.
func NewSettlement(registry *Registry, wallets store.WalletStore, notifier Notifier, logger *slog.Logger) *Settlement {
	return &Settlement{
		registry: registry,
		wallets:  wallets,
		notifier: notifier,
		logger:   logger,
	}
}

// PrizeReference is the dedupe key for one survivor's share of one round.
func PrizeReference(roundID, userID string) string {
	return fmt.Sprintf("prize:%s:%s", roundID, userID)
}

// Settle credits floor(pool/survivors) to every survivor. The remainder is
// forfeited. A second call returns the stored share and credits nothing.
// A survivor whose credit fails is logged and skipped; the round is still
// marked distributed once every survivor has been attempted.
func (s *Settlement) Settle(ctx context.Context, roundID string, finalScore int) (*SettlementResult, error) {
	unlock := s.registry.locks.Lock(roundID)
	defer unlock()

	round, err := s.registry.Round(ctx, roundID)
	if err != nil {
		return nil, err
	}

	survivors := round.Survivors()
	result := &SettlementResult{
		RoundID:        round.ID,
		PrizePool:      round.PrizePool,
		Survivors:      survivors,
		TotalSurvivors: len(survivors),
	}

	if round.PrizeDistributed {
		result.PerWinner = round.PerWinner
		result.AlreadyDistributed = true
		return result, nil
	}

	var perWinner int64
	if len(survivors) > 0 {
		perWinner = round.PrizePool / int64(len(survivors))
	}
	result.PerWinner = perWinner

	if perWinner > 0 {
		description := fmt.Sprintf("Prize for %s", displayName(round))
		for _, userID := range survivors {
			if err := s.credit(ctx, round.ID, userID, perWinner, description); err != nil {
				s.logger.Warn("prize credit failed",
					slog.String("round_id", round.ID),
					slog.String("user_id", userID),
					slog.Int64("amount", perWinner),
					slog.Any("error", err))
				continue
			}
			result.DistributionCount++
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.registry.timeout)
	defer cancel()

	settled, err := s.registry.rounds.Update(ctx, round.ID, func(r *models.Round) error {
		r.PrizeDistributed = true
		r.PerWinner = perWinner
		r.FinalScore = finalScore
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark round %s distributed: %w", round.ID, err)
	}

	s.logger.Info("round settled",
		slog.String("round_id", round.ID),
		slog.Int64("prize_pool", round.PrizePool),
		slog.Int64("per_winner", perWinner),
		slog.Int("survivors", len(survivors)),
		slog.Int("credited", result.DistributionCount))

	if s.notifier != nil {
		go s.notifier.SendGameEnd(context.WithoutCancel(ctx), settled)
	}
	return result, nil
}

// credit adds amount to the user's wallet, creating the wallet if missing.
// A share already carrying the round's reference counts as credited.
func (s *Settlement) credit(ctx context.Context, roundID, userID string, amount int64, description string) error {
	ctx, cancel := context.WithTimeout(ctx, s.registry.timeout)
	defer cancel()

	reference := PrizeReference(roundID, userID)

	wallet, err := s.wallets.FindByUser(ctx, userID)
	if errors.Is(err, store.ErrWalletNotFound) {
		wallet = models.NewWallet(userID)
		wallet.Credit(amount, reference, description)
		_, err = s.wallets.Create(ctx, wallet)
		if !errors.Is(err, store.ErrWalletExists) {
			return err
		}
		// Lost a creation race; fall through to the normal path.
		wallet, err = s.wallets.FindByUser(ctx, userID)
	}
	if err != nil {
		return err
	}

	if !wallet.Credit(amount, reference, description) {
		return nil
	}
	if err := s.wallets.Save(ctx, wallet); err != nil && !errors.Is(err, store.ErrDuplicateReference) {
		return err
	}
	return nil
}

func displayName(r *models.Round) string {
	if r.Title != "" {
		return r.Title
	}
	return r.ID
}
