package memory

import (
	"context"
	"sort"
	"sync"

	"trivia-service/internal/domain"
)

// QuestionBank is an in-memory question store (tests, demos, runs without a database).
type QuestionBank struct {
	mu        sync.RWMutex
	nextID    int64
	questions map[int64]domain.Question
}

// NewQuestionBank seeds the bank; questions without an ID get one.
func NewQuestionBank(seed []domain.Question) *QuestionBank {
	b := &QuestionBank{questions: make(map[int64]domain.Question, len(seed))}
	for _, q := range seed {
		if q.ID == 0 {
			b.nextID++
			q.ID = b.nextID
		} else if q.ID > b.nextID {
			b.nextID = q.ID
		}
		b.questions[q.ID] = q
	}
	return b
}

func (b *QuestionBank) AddQuestion(_ context.Context, text, answer string) (domain.Question, error) {
	if text == "" || answer == "" {
		return domain.Question{}, domain.ErrInvalidQuestion
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	q := domain.Question{ID: b.nextID, Text: text, Answer: answer}
	b.questions[q.ID] = q
	return q, nil
}

func (b *QuestionBank) DeleteQuestion(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(b.questions, id)
	return nil
}

// ListQuestions returns the bank ordered by ID.
func (b *QuestionBank) ListQuestions(_ context.Context) ([]domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Question, 0, len(b.questions))
	for _, q := range b.questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *QuestionBank) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	return b.ListQuestions(ctx)
}
