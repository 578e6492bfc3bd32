package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `id, name, email, avatar_url, eyes, push_tokens, eye_purchases,
	monthly_seconds_played, yearly_seconds_played, created_at, updated_at`

const upsertUserSQL = `
INSERT INTO users (` + userColumns + `)
VALUES (:id, :name, :email, :avatar_url, :eyes, :push_tokens, :eye_purchases,
	:monthly_seconds_played, :yearly_seconds_played, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	email = EXCLUDED.email,
	avatar_url = EXCLUDED.avatar_url,
	eyes = EXCLUDED.eyes,
	push_tokens = EXCLUDED.push_tokens,
	eye_purchases = EXCLUDED.eye_purchases,
	monthly_seconds_played = EXCLUDED.monthly_seconds_played,
	yearly_seconds_played = EXCLUDED.yearly_seconds_played,
	updated_at = EXCLUDED.updated_at`

type userRow struct {
	ID                   string         `db:"id"`
	Name                 string         `db:"name"`
	Email                string         `db:"email"`
	AvatarURL            string         `db:"avatar_url"`
	Eyes                 int64          `db:"eyes"`
	PushTokens           pq.StringArray `db:"push_tokens"`
	EyePurchases         pq.StringArray `db:"eye_purchases"`
	MonthlySecondsPlayed int64          `db:"monthly_seconds_played"`
	YearlySecondsPlayed  int64          `db:"yearly_seconds_played"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (r *userRow) toModel() *models.User {
	return &models.User{
		ID:                   r.ID,
		Name:                 r.Name,
		Email:                r.Email,
		AvatarURL:            r.AvatarURL,
		Eyes:                 r.Eyes,
		PushTokens:           []string(r.PushTokens),
		EyePurchases:         []string(r.EyePurchases),
		MonthlySecondsPlayed: r.MonthlySecondsPlayed,
		YearlySecondsPlayed:  r.YearlySecondsPlayed,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func rowFromUser(u *models.User) userRow {
	return userRow{
		ID:                   u.ID,
		Name:                 u.Name,
		Email:                u.Email,
		AvatarURL:            u.AvatarURL,
		Eyes:                 u.Eyes,
		PushTokens:           nonNil(u.PushTokens),
		EyePurchases:         nonNil(u.EyePurchases),
		MonthlySecondsPlayed: u.MonthlySecondsPlayed,
		YearlySecondsPlayed:  u.YearlySecondsPlayed,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

// PostgresUserStore implements UserStore and UserLister.
type PostgresUserStore struct {
	db *sqlx.DB
}

// NewPostgresUserStore wraps an open connection pool.
func NewPostgresUserStore(db *sqlx.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return row.toModel(), nil
}

func (s *PostgresUserStore) Save(ctx context.Context, user *models.User) error {
	stampUser(user)
	if _, err := s.db.NamedExecContext(ctx, upsertUserSQL, rowFromUser(user)); err != nil {
		return fmt.Errorf("save user %s: %w", user.ID, err)
	}
	return nil
}

func (s *PostgresUserStore) Update(ctx context.Context, id string, fn func(*models.User) error) (*models.User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin user update: %w", err)
	}
	defer tx.Rollback()

	var row userRow
	if err := tx.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}

	user := row.toModel()
	if err := fn(user); err != nil {
		return nil, err
	}
	stampUser(user)

	if _, err := tx.NamedExecContext(ctx, upsertUserSQL, rowFromUser(user)); err != nil {
		return nil, fmt.Errorf("update user %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit user %s: %w", id, err)
	}
	return user, nil
}

func (s *PostgresUserStore) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 1000
	}
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1`, limit); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*models.User, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func stampUser(u *models.User) {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
}
