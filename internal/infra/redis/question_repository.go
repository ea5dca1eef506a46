package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
)

// QuestionRepository caches the question bank in Redis and falls back to a loader on cache miss.
// Questions are stored as: HSET trivia:questions {questionID} {json}
type QuestionRepository struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

const questionsKey = "trivia:questions"

func NewQuestionRepository(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns a random question from the cached bank.
func (r *QuestionRepository) Next(ctx context.Context) (domain.Question, error) {
	ids, err := r.client.HKeys(ctx, questionsKey).Result()
	if err != nil {
		return domain.Question{}, fmt.Errorf("list cached questions: %w", err)
	}
	if len(ids) == 0 {
		if ids, err = r.fill(ctx); err != nil {
			return domain.Question{}, err
		}
	}
	if len(ids) == 0 {
		return domain.Question{}, domain.ErrEmptySource
	}

	id := ids[r.intn(len(ids))]
	raw, err := r.client.HGet(ctx, questionsKey, id).Result()
	if errors.Is(err, redis.Nil) {
		// Invalidated between HKEYS and HGET.
		return r.Next(ctx)
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("get cached question %s: %w", id, err)
	}
	var q domain.Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return domain.Question{}, fmt.Errorf("decode cached question %s: %w", id, err)
	}
	return q, nil
}

// Invalidate drops the cached bank; the next draw reloads it.
func (r *QuestionRepository) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, questionsKey).Err()
}

func (r *QuestionRepository) fill(ctx context.Context) ([]string, error) {
	result, err, _ := r.sf.Do(questionsKey, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		ids, err := r.client.HKeys(ctx, questionsKey).Result()
		if err == nil && len(ids) > 0 {
			return ids, nil
		}

		questions, err := r.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}
		if len(questions) == 0 {
			return []string{}, nil
		}

		ids = make([]string, 0, len(questions))
		pipe := r.client.Pipeline()
		for _, q := range questions {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("encode question %d: %w", q.ID, err)
			}
			id := strconv.FormatInt(q.ID, 10)
			ids = append(ids, id)
			pipe.HSet(ctx, questionsKey, id, raw)
		}
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, questionsKey, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("cache questions: %w", err)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *QuestionRepository) intn(n int) int {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.rnd.Intn(n)
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.intn64(jitterMax+1))
}

func (r *QuestionRepository) intn64(n int64) int64 {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.rnd.Int63n(n)
}
