package app

import (
	"context"

	"trivia-service/internal/domain"
)

// QuestionSource hands out questions. It returns domain.ErrEmptySource when it has none.
type QuestionSource interface {
	Next(ctx context.Context) (domain.Question, error)
}

// ScoreLedger keeps cumulative scores. Unknown participants score 0.
type ScoreLedger interface {
	AddScore(ctx context.Context, participantID int64, delta int) error
	Score(ctx context.Context, participantID int64) (int, error)
}

// Notifier delivers notifications without confirmation; delivery failures are its own business.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n domain.Notification)

func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) {
	f(ctx, n)
}

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.Notification) {}

// MultiNotifier fans a notification out to every sink in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n domain.Notification) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(ctx, n)
		}
	}
}

// QuestionBank is the editable question store behind a QuestionSource.
type QuestionBank interface {
	AddQuestion(ctx context.Context, text, answer string) (domain.Question, error)
	DeleteQuestion(ctx context.Context, id int64) error
	ListQuestions(ctx context.Context) ([]domain.Question, error)
}

// Players stores display names and ranks players by score.
type Players interface {
	RegisterPlayer(ctx context.Context, userID int64, displayName string) error
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// CacheInvalidator drops cached questions after the bank changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}
