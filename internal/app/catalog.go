package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"trivia-service/internal/domain"
)

// Catalog holds the use cases around questions and players that sit outside a running series:
// question administration, registration and the leaderboard.
type Catalog struct {
	bank    QuestionBank
	cache   CacheInvalidator
	players Players
	log     *slog.Logger
}

func NewCatalog(bank QuestionBank, cache CacheInvalidator, players Players, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{bank: bank, cache: cache, players: players, log: log}
}

// AddQuestion stores a question and drops cached copies of the bank.
func (c *Catalog) AddQuestion(ctx context.Context, text, answer string) (domain.Question, error) {
	text = strings.TrimSpace(text)
	answer = strings.TrimSpace(answer)
	if text == "" || answer == "" {
		return domain.Question{}, domain.ErrInvalidQuestion
	}
	q, err := c.bank.AddQuestion(ctx, text, answer)
	if err != nil {
		return domain.Question{}, fmt.Errorf("add question: %w", err)
	}
	c.invalidate(ctx)
	return q, nil
}

// DeleteQuestion removes a question by ID.
func (c *Catalog) DeleteQuestion(ctx context.Context, id int64) error {
	if err := c.bank.DeleteQuestion(ctx, id); err != nil {
		return fmt.Errorf("delete question %d: %w", id, err)
	}
	c.invalidate(ctx)
	return nil
}

func (c *Catalog) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	return c.bank.ListQuestions(ctx)
}

// RegisterPlayer records or refreshes a display name; the score is kept.
func (c *Catalog) RegisterPlayer(ctx context.Context, userID int64, displayName string) error {
	return c.players.RegisterPlayer(ctx, userID, strings.TrimSpace(displayName))
}

// RenamePlayer is RegisterPlayer with the length rule of a user-chosen name.
func (c *Catalog) RenamePlayer(ctx context.Context, userID int64, displayName string) (string, error) {
	name := strings.TrimSpace(displayName)
	if err := ValidateDisplayName(name); err != nil {
		return "", err
	}
	if err := c.players.RegisterPlayer(ctx, userID, name); err != nil {
		return "", fmt.Errorf("rename player: %w", err)
	}
	return name, nil
}

func (c *Catalog) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	return c.players.Leaderboard(ctx, limit)
}

func (c *Catalog) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx); err != nil {
		c.log.Warn("invalidate question cache", "err", err)
	}
}

// ErrInvalidName is returned for display names outside 2..30 characters.
var ErrInvalidName = fmt.Errorf("display name must be between %d and %d characters", minNameLen, maxNameLen)

const (
	minNameLen = 2
	maxNameLen = 30
)

func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return ErrInvalidName
	}
	return nil
}

// ParseQuestionLine splits "Question?;Answer" as typed by an admin.
func ParseQuestionLine(raw string) (string, string, error) {
	text, answer, ok := strings.Cut(raw, ";")
	if !ok {
		return "", "", domain.ErrInvalidQuestion
	}
	text = strings.TrimSpace(text)
	answer = strings.TrimSpace(answer)
	if text == "" || answer == "" {
		return "", "", domain.ErrInvalidQuestion
	}
	return text, answer, nil
}
