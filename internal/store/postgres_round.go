package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const roundColumns = `id, title, starts_at, duration_minutes, roster, connected_users, connected_count,
	ready_users, ready_count, left_users, lost_users, prize_pool, prize_distributed, per_winner,
	final_score, reminder_sent, start_notified, created_at, updated_at`

const upsertRoundSQL = `
INSERT INTO rounds (` + roundColumns + `)
VALUES (:id, :title, :starts_at, :duration_minutes, :roster, :connected_users, :connected_count,
	:ready_users, :ready_count, :left_users, :lost_users, :prize_pool, :prize_distributed, :per_winner,
	:final_score, :reminder_sent, :start_notified, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	starts_at = EXCLUDED.starts_at,
	duration_minutes = EXCLUDED.duration_minutes,
	roster = EXCLUDED.roster,
	connected_users = EXCLUDED.connected_users,
	connected_count = EXCLUDED.connected_count,
	ready_users = EXCLUDED.ready_users,
	ready_count = EXCLUDED.ready_count,
	left_users = EXCLUDED.left_users,
	lost_users = EXCLUDED.lost_users,
	prize_pool = EXCLUDED.prize_pool,
	prize_distributed = rounds.prize_distributed OR EXCLUDED.prize_distributed,
	per_winner = EXCLUDED.per_winner,
	final_score = EXCLUDED.final_score,
	reminder_sent = EXCLUDED.reminder_sent,
	start_notified = EXCLUDED.start_notified,
	updated_at = EXCLUDED.updated_at`

type roundRow struct {
	ID               string         `db:"id"`
	Title            string         `db:"title"`
	StartsAt         time.Time      `db:"starts_at"`
	DurationMinutes  int            `db:"duration_minutes"`
	Roster           pq.StringArray `db:"roster"`
	ConnectedUsers   pq.StringArray `db:"connected_users"`
	ConnectedCount   int            `db:"connected_count"`
	ReadyUsers       pq.StringArray `db:"ready_users"`
	ReadyCount       int            `db:"ready_count"`
	LeftUsers        pq.StringArray `db:"left_users"`
	LostUsers        pq.StringArray `db:"lost_users"`
	PrizePool        int64          `db:"prize_pool"`
	PrizeDistributed bool           `db:"prize_distributed"`
	PerWinner        int64          `db:"per_winner"`
	FinalScore       int            `db:"final_score"`
	ReminderSent     bool           `db:"reminder_sent"`
	StartNotified    bool           `db:"start_notified"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *roundRow) toModel() *models.Round {
	return &models.Round{
		ID:               r.ID,
		Title:            r.Title,
		StartsAt:         r.StartsAt,
		DurationMinutes:  r.DurationMinutes,
		Roster:           []string(r.Roster),
		ConnectedUsers:   []string(r.ConnectedUsers),
		ConnectedCount:   r.ConnectedCount,
		ReadyUsers:       []string(r.ReadyUsers),
		ReadyCount:       r.ReadyCount,
		LeftUsers:        []string(r.LeftUsers),
		LostUsers:        []string(r.LostUsers),
		PrizePool:        r.PrizePool,
		PrizeDistributed: r.PrizeDistributed,
		PerWinner:        r.PerWinner,
		FinalScore:       r.FinalScore,
		ReminderSent:     r.ReminderSent,
		StartNotified:    r.StartNotified,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func rowFromRound(r *models.Round) roundRow {
	return roundRow{
		ID:               r.ID,
		Title:            r.Title,
		StartsAt:         r.StartsAt,
		DurationMinutes:  r.DurationMinutes,
		Roster:           nonNil(r.Roster),
		ConnectedUsers:   nonNil(r.ConnectedUsers),
		ConnectedCount:   len(r.ConnectedUsers),
		ReadyUsers:       nonNil(r.ReadyUsers),
		ReadyCount:       len(r.ReadyUsers),
		LeftUsers:        nonNil(r.LeftUsers),
		LostUsers:        nonNil(r.LostUsers),
		PrizePool:        r.PrizePool,
		PrizeDistributed: r.PrizeDistributed,
		PerWinner:        r.PerWinner,
		FinalScore:       r.FinalScore,
		ReminderSent:     r.ReminderSent,
		StartNotified:    r.StartNotified,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// PostgresRoundStore implements RoundStore and RoundLister on the rounds table.
type PostgresRoundStore struct {
	db *sqlx.DB
}

// NewPostgresRoundStore wraps an open connection pool.
func NewPostgresRoundStore(db *sqlx.DB) *PostgresRoundStore {
	return &PostgresRoundStore{db: db}
}

func (s *PostgresRoundStore) FindByID(ctx context.Context, id string) (*models.Round, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id)
	if err != nil {
		return nil, mapNotFound(err, ErrRoundNotFound)
	}
	return row.toModel(), nil
}

func (s *PostgresRoundStore) Save(ctx context.Context, round *models.Round) error {
	stampRound(round)
	if _, err := s.db.NamedExecContext(ctx, upsertRoundSQL, rowFromRound(round)); err != nil {
		return fmt.Errorf("save round %s: %w", round.ID, err)
	}
	return nil
}

// Update holds a row lock for the duration of fn.
func (s *PostgresRoundStore) Update(ctx context.Context, id string, fn func(*models.Round) error) (*models.Round, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin round update: %w", err)
	}
	defer tx.Rollback()

	var row roundRow
	err = tx.GetContext(ctx, &row, `SELECT `+roundColumns+` FROM rounds WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, mapNotFound(err, ErrRoundNotFound)
	}

	round := row.toModel()
	if err := fn(round); err != nil {
		return nil, err
	}
	stampRound(round)

	if _, err := tx.NamedExecContext(ctx, upsertRoundSQL, rowFromRound(round)); err != nil {
		return nil, fmt.Errorf("update round %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit round %s: %w", id, err)
	}
	return round, nil
}

func (s *PostgresRoundStore) ListStartingFrom(ctx context.Context, from time.Time) ([]*models.Round, error) {
	var rows []roundRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+roundColumns+` FROM rounds WHERE starts_at >= $1 ORDER BY starts_at ASC`, from)
	if err != nil {
		return nil, fmt.Errorf("list upcoming rounds: %w", err)
	}
	return toRounds(rows), nil
}

func (s *PostgresRoundStore) ListStartedBefore(ctx context.Context, before time.Time, limit int) ([]*models.Round, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []roundRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+roundColumns+` FROM rounds WHERE starts_at < $1 ORDER BY starts_at DESC LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list past rounds: %w", err)
	}
	return toRounds(rows), nil
}

func toRounds(rows []roundRow) []*models.Round {
	out := make([]*models.Round, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}

func stampRound(r *models.Round) {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}

func nonNil(s []string) pq.StringArray {
	if s == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(s)
}

// mapNotFound turns "no rows" and malformed uuid errors into notFound.
func mapNotFound(err, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
		return notFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
