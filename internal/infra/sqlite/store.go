// Package sqlite keeps questions, players and scores in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"trivia-service/internal/domain"
	"trivia-service/internal/infra/sqlite/migrations"
)

// Store implements app.QuestionBank, app.ScoreLedger, app.Players and memory.QuestionLoader.
type Store struct {
	db *sql.DB
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps SQLITE_BUSY away from concurrent score updates.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Seed inserts questions when the bank is empty and reports how many were added.
func (s *Store) Seed(ctx context.Context, questions []domain.Question) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for _, q := range questions {
		if _, err := s.AddQuestion(ctx, q.Text, q.Answer); err != nil {
			return 0, err
		}
	}
	return len(questions), nil
}

func (s *Store) AddQuestion(ctx context.Context, text, answer string) (domain.Question, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO questions (question, answer) VALUES (?, ?)`, text, answer)
	if err != nil {
		return domain.Question{}, fmt.Errorf("insert question: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Question{}, fmt.Errorf("question id: %w", err)
	}
	return domain.Question{ID: id, Text: text, Answer: answer}, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (s *Store) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, question, answer FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
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

func (s *Store) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	return s.ListQuestions(ctx)
}

// AddScore creates the player row when needed, so points are never lost.
func (s *Store) AddScore(ctx context.Context, participantID int64, delta int) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (user_id, score) VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET score = score + excluded.score`, participantID, delta)
	if err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	return nil
}

func (s *Store) Score(ctx context.Context, participantID int64) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx, `SELECT score FROM users WHERE user_id = ?`, participantID).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read score: %w", err)
	}
	return score, nil
}

// RegisterPlayer stores the display name and keeps any score already earned.
func (s *Store) RegisterPlayer(ctx context.Context, userID int64, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (user_id, username) VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET username = excluded.username`, userID, displayName)
	if err != nil {
		return fmt.Errorf("register player: %w", err)
	}
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, COALESCE(username, ''), score FROM users
ORDER BY score DESC, username ASC LIMIT ?`, limit)
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
