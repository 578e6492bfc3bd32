package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

const (
	defaultStoreTimeout = 5 * time.Second
	storeAttempts       = 2
	retryBackoff        = 50 * time.Millisecond
)

// Registry applies participant transitions to persisted rounds.
//
// Every mutation for one round runs under that round's lock and goes through
// RoundStore.Update, so counts always match set sizes and no two joins can
// read the same count.
type Registry struct {
	rounds  store.RoundStore
	users   store.UserStore
	locks   *keyedMutex
	timeout time.Duration
	logger  *slog.Logger
}

// NewRegistry wires the round and user stores. timeout bounds each store call.
func NewRegistry(rounds store.RoundStore, users store.UserStore, timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Registry{
		rounds:  rounds,
		users:   users,
		locks:   newKeyedMutex(),
		timeout: timeout,
		logger:  logger,
	}
}

// Round returns the current persisted round.
func (r *Registry) Round(ctx context.Context, roundID string) (*models.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.rounds.FindByID(ctx, roundID)
}

// MarkReady adds the participant to the ready set. Repeats are no-ops.
func (r *Registry) MarkReady(ctx context.Context, roundID, userID string) (*models.Round, error) {
	return r.mutate(ctx, roundID, func(round *models.Round) error {
		round.AddReady(userID)
		return nil
	})
}

// Enroll puts the participant on the roster so a later join is allowed.
func (r *Registry) Enroll(ctx context.Context, roundID, userID string) (*models.Round, error) {
	return r.mutate(ctx, roundID, func(round *models.Round) error {
		if round.StatusOf(userID).Terminal() {
			return ErrRejoinDenied
		}
		round.Enroll(userID)
		return nil
	})
}

// MarkConnected adds the participant to the connected set. Participants who
// left or lost are refused with ErrRejoinDenied.
func (r *Registry) MarkConnected(ctx context.Context, roundID, userID string) (*models.Round, error) {
	return r.mutate(ctx, roundID, func(round *models.Round) error {
		if round.StatusOf(userID).Terminal() {
			return ErrRejoinDenied
		}
		if !round.InRoster(userID) {
			return ErrNotInRoster
		}
		round.AddConnected(userID)
		return nil
	})
}

// MarkLeft removes the participant and bars them from rejoining.
func (r *Registry) MarkLeft(ctx context.Context, roundID, userID string) (*models.Round, error) {
	return r.mutate(ctx, roundID, func(round *models.Round) error {
		round.RemoveConnected(userID)
		round.MarkTerminal(userID, models.StatusLeft)
		return nil
	})
}

// MarkLost eliminates the participant and then debits penalty eyes. The
// debit is best effort: a failure is logged and the elimination stands.
func (r *Registry) MarkLost(ctx context.Context, roundID, userID string, penalty int64) (*models.Round, error) {
	round, err := r.mutate(ctx, roundID, func(round *models.Round) error {
		round.RemoveConnected(userID)
		round.MarkTerminal(userID, models.StatusLost)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if penalty > 0 {
		if _, err := r.DebitEyes(ctx, userID, penalty); err != nil {
			r.logger.Warn("elimination penalty not applied",
				slog.String("round_id", roundID),
				slog.String("user_id", userID),
				slog.Int64("penalty", penalty),
				slog.Any("error", err))
		}
	}
	return round, nil
}

// MarkDisconnected removes the participant from the connected and ready sets
// without barring a reconnect.
func (r *Registry) MarkDisconnected(ctx context.Context, roundID, userID string) (*models.Round, error) {
	return r.mutate(ctx, roundID, func(round *models.Round) error {
		round.RemoveConnected(userID)
		round.RemoveReady(userID)
		return nil
	})
}

// DebitEyes takes up to amount eyes from the user, flooring at zero.
func (r *Registry) DebitEyes(ctx context.Context, userID string, amount int64) (*models.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.users.Update(ctx, userID, func(u *models.User) error {
		u.DebitEyes(amount)
		return nil
	})
}

func (r *Registry) mutate(ctx context.Context, roundID string, fn func(*models.Round) error) (*models.Round, error) {
	unlock := r.locks.Lock(roundID)
	defer unlock()

	var (
		round *models.Round
		err   error
	)
	// Every transition passed in here is set-based, so running it twice
	// leaves the same record.
	for attempt := 1; attempt <= storeAttempts; attempt++ {
		round, err = r.update(ctx, roundID, fn)
		if err == nil || !transient(ctx, err) {
			break
		}
		r.logger.Warn("round update failed, retrying",
			slog.String("round_id", roundID),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		time.Sleep(retryBackoff)
	}
	if err != nil {
		if !transient(ctx, err) {
			return nil, err
		}
		return nil, fmt.Errorf("update round %s: %w", roundID, err)
	}
	return round, nil
}

func (r *Registry) update(ctx context.Context, roundID string, fn func(*models.Round) error) (*models.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.rounds.Update(ctx, roundID, fn)
}

// transient reports whether err is an infrastructure failure rather than a
// domain refusal, and the caller is still waiting.
func transient(ctx context.Context, err error) bool {
	switch {
	case ctx.Err() != nil,
		errors.Is(err, store.ErrRoundNotFound),
		errors.Is(err, ErrRejoinDenied),
		errors.Is(err, ErrNotInRoster):
		return false
	}
	return true
}
