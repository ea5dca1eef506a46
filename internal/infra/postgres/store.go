package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-service/internal/domain"
)

// Store keeps questions, players and scores in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	return s.ListQuestions(ctx)
}

func (s *Store) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, question, answer FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Answer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) AddQuestion(ctx context.Context, text, answer string) (domain.Question, error) {
	q := domain.Question{Text: text, Answer: answer}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO questions (question, answer) VALUES ($1, $2) RETURNING id`, text, answer,
	).Scan(&q.ID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

// Seed inserts questions when the bank is empty and reports how many were added.
func (s *Store) Seed(ctx context.Context, questions []domain.Question) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, q := range questions {
		batch.Queue(`INSERT INTO questions (question, answer) VALUES ($1, $2)`, q.Text, q.Answer)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("seed questions: %w", err)
	}
	return len(questions), nil
}

func (s *Store) AddScore(ctx context.Context, participantID int64, delta int) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO users (user_id, score) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET score = users.score + EXCLUDED.score`, participantID, delta)
	if err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	return nil
}

func (s *Store) Score(ctx context.Context, participantID int64) (int, error) {
	var score int
	err := s.pool.QueryRow(ctx, `SELECT score FROM users WHERE user_id=$1`, participantID).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read score: %w", err)
	}
	return score, nil
}

func (s *Store) RegisterPlayer(ctx context.Context, userID int64, displayName string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO users (user_id, username) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username`, userID, displayName)
	if err != nil {
		return fmt.Errorf("register player: %w", err)
	}
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT user_id, COALESCE(username, ''), score FROM users
ORDER BY score DESC, username ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.Score); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
