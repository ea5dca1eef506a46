package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"trivia-service/internal/domain"
)

// ScoreLedger keeps scores in a sorted set and display names in a hash:
//
//	ZINCRBY trivia:scores {delta} {userID}
//	HSET    trivia:players {userID} {displayName}
type ScoreLedger struct {
	client *redis.Client
}

const (
	scoresKey  = "trivia:scores"
	playersKey = "trivia:players"
)

func NewScoreLedger(client *redis.Client) *ScoreLedger {
	return &ScoreLedger{client: client}
}

func (l *ScoreLedger) AddScore(ctx context.Context, participantID int64, delta int) error {
	return l.client.ZIncrBy(ctx, scoresKey, float64(delta), member(participantID)).Err()
}

func (l *ScoreLedger) Score(ctx context.Context, participantID int64) (int, error) {
	score, err := l.client.ZScore(ctx, scoresKey, member(participantID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(score), nil
}

// RegisterPlayer stores the name and puts a new player on the board with 0 points.
func (l *ScoreLedger) RegisterPlayer(ctx context.Context, userID int64, displayName string) error {
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, playersKey, member(userID), displayName)
	pipe.ZAddNX(ctx, scoresKey, redis.Z{Score: 0, Member: member(userID)})
	_, err := pipe.Exec(ctx)
	return err
}

func (l *ScoreLedger) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	top, err := l.client.ZRevRangeWithScores(ctx, scoresKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(top) == 0 {
		return nil, nil
	}

	fields := make([]string, len(top))
	for i, z := range top {
		fields[i] = z.Member.(string)
	}
	names, err := l.client.HMGet(ctx, playersKey, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("read player names: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(top))
	for i, z := range top {
		id, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			continue
		}
		name, _ := names[i].(string)
		entries = append(entries, domain.LeaderboardEntry{UserID: id, DisplayName: name, Score: int(z.Score)})
	}
	return entries, nil
}

func member(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
