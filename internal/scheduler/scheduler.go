// Package scheduler runs the periodic background jobs: leaderboard rebuilds
// and round reminder / start notifications.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/jacl-coder/EyeSurvival-Server/internal/leaderboard"
	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/session"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

const (
	notifyInterval = time.Minute
	// startWindow bounds how late a game-start push may go out, so a restart
	// does not announce rounds that began long ago.
	startWindow  = 10 * time.Minute
	rebuildLimit = 10000
)

var errAlreadySent = errors.New("notification already sent")

// Deps are the stores and sinks the jobs read from and write to.
type Deps struct {
	Rounds    store.RoundStore
	Catalogue store.RoundLister
	Users     store.UserLister
	Board     leaderboard.Board
	Notifier  session.Notifier
}

// Scheduler owns the job definitions.
type Scheduler struct {
	config config.SchedulerConfig
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// New applies defaults for unset intervals.
func New(cfg config.SchedulerConfig, deps Deps, logger *slog.Logger) *Scheduler {
	if cfg.LeaderboardRefresh <= 0 {
		cfg.LeaderboardRefresh = 5 * time.Minute
	}
	if cfg.ReminderLead <= 0 {
		cfg.ReminderLead = 10 * time.Minute
	}
	return &Scheduler{
		config: cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

// Run starts the jobs and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.config.LeaderboardRefresh),
		gocron.NewTask(func() {
			if err := s.RefreshLeaderboard(ctx); err != nil {
				s.logger.Error("leaderboard refresh failed", slog.Any("error", err))
			}
		}),
		gocron.WithName("leaderboard-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule leaderboard refresh: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(notifyInterval),
		gocron.NewTask(func() {
			if err := s.NotifyRounds(ctx); err != nil {
				s.logger.Error("round notifications failed", slog.Any("error", err))
			}
		}),
		gocron.WithName("round-notifications"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule round notifications: %w", err)
	}

	sched.Start()
	s.logger.Info("scheduler started",
		slog.Duration("leaderboard_refresh", s.config.LeaderboardRefresh),
		slog.Duration("reminder_lead", s.config.ReminderLead))

	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// RefreshLeaderboard rebuilds every ranking from the user directory.
func (s *Scheduler) RefreshLeaderboard(ctx context.Context) error {
	users, err := s.deps.Users.ListUsers(ctx, rebuildLimit)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if err := s.deps.Board.Rebuild(ctx, users); err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	s.logger.Debug("leaderboard rebuilt", slog.Int("users", len(users)))
	return nil
}

// NotifyRounds sends at most one reminder and one start push per round. The
// sent markers are claimed in the round record before the push goes out, so
// two instances never both notify.
func (s *Scheduler) NotifyRounds(ctx context.Context) error {
	now := s.now().UTC()
	rounds, err := s.deps.Catalogue.ListStartingFrom(ctx, now.Add(-startWindow))
	if err != nil {
		return fmt.Errorf("list rounds: %w", err)
	}

	for _, round := range rounds {
		until := round.StartsAt.Sub(now)
		switch {
		case until > s.config.ReminderLead:
			// Catalogue is ordered by start, nothing later is due either.
			return nil
		case until > 0 && !round.ReminderSent:
			claimed, err := s.claim(ctx, round.ID, func(r *models.Round) *bool { return &r.ReminderSent })
			if err != nil {
				s.logger.Warn("reminder not claimed", slog.String("round_id", round.ID), slog.Any("error", err))
				continue
			}
			if claimed != nil {
				minutes := int(math.Ceil(until.Minutes()))
				s.deps.Notifier.SendReminder(ctx, claimed, minutes)
			}
		case until <= 0 && !round.StartNotified:
			claimed, err := s.claim(ctx, round.ID, func(r *models.Round) *bool { return &r.StartNotified })
			if err != nil {
				s.logger.Warn("start push not claimed", slog.String("round_id", round.ID), slog.Any("error", err))
				continue
			}
			if claimed != nil {
				s.deps.Notifier.SendGameStart(ctx, claimed)
			}
		}
	}
	return nil
}

// claim flips the marker selected by flag. It returns nil, nil when the
// marker was already set.
func (s *Scheduler) claim(ctx context.Context, roundID string, flag func(*models.Round) *bool) (*models.Round, error) {
	round, err := s.deps.Rounds.Update(ctx, roundID, func(r *models.Round) error {
		sent := flag(r)
		if *sent {
			return errAlreadySent
		}
		*sent = true
		return nil
	})
	if errors.Is(err, errAlreadySent) {
		return nil, nil
	}
	return round, err
}
