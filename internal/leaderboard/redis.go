package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
)

const (
	keyPrefix = "leaderboard:"
	namesKey  = "leaderboard:names"
)

// RedisBoard keeps one sorted set per period plus a hash of display names.
type RedisBoard struct {
	client *redis.Client
}

// NewRedisBoard wraps client.
func NewRedisBoard(client *redis.Client) *RedisBoard {
	return &RedisBoard{client: client}
}

func periodKey(p models.LeaderboardPeriod) string {
	return keyPrefix + string(p)
}

// Record updates every period's score for user.
func (b *RedisBoard) Record(ctx context.Context, user *models.User) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		addUser(ctx, pipe, user)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record leaderboard entry: %w", err)
	}
	return nil
}

// Rebuild replaces every sorted set with scores computed from users in one
// MULTI/EXEC block.
func (b *RedisBoard) Rebuild(ctx context.Context, users []*models.User) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range periods {
			pipe.Del(ctx, periodKey(p))
		}
		pipe.Del(ctx, namesKey)
		for _, u := range users {
			addUser(ctx, pipe, u)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	return nil
}

func addUser(ctx context.Context, pipe redis.Pipeliner, u *models.User) {
	for _, p := range periods {
		pipe.ZAdd(ctx, periodKey(p), &redis.Z{Score: p.Value(u), Member: u.ID})
	}
	pipe.HSet(ctx, namesKey, u.ID, displayName(u))
}

// Top returns the highest scores first.
func (b *RedisBoard) Top(ctx context.Context, period models.LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	members, err := b.client.ZRevRangeWithScores(ctx, periodKey(period), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard %s: %w", period, err)
	}
	if len(members) == 0 {
		return []models.LeaderboardEntry{}, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i], _ = m.Member.(string)
	}
	names, err := b.client.HMGet(ctx, namesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard names: %w", err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		name, _ := names[i].(string)
		entries = append(entries, models.LeaderboardEntry{
			UserID:   ids[i],
			Name:     name,
			Score:    m.Score,
			Position: i + 1,
		})
	}
	return entries, nil
}

// Position returns the 1-based rank of userID.
func (b *RedisBoard) Position(ctx context.Context, period models.LeaderboardPeriod, userID string) (int, error) {
	rank, err := b.client.ZRevRank(ctx, periodKey(period), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read leaderboard rank: %w", err)
	}
	return int(rank) + 1, nil
}
