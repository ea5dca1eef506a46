package app

import (
	"time"

	"trivia-service/internal/domain"
)

// Placeholder marks an unrevealed answer position.
const Placeholder = '_'

// MaxHints caps hints per question, automatic and manual combined.
const MaxHints = 2

// Session is one live series bound to a key. It is owned by the Registry and only
// touched from the engine's dispatcher.
type Session struct {
	ID        string
	Key       domain.SessionKey
	ChatID    int64
	StarterID int64
	Question  domain.Question
	// Revealed marks the answer positions already shown, one entry per rune.
	Revealed  []bool
	HintsUsed int
	Asked     int
	Total     int
	StartedAt time.Time
}

func newSession(id string, key domain.SessionKey, chatID, starterID int64, total int, q domain.Question, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Key:       key,
		ChatID:    chatID,
		StarterID: starterID,
		Asked:     1,
		Total:     total,
		StartedAt: now,
	}
	s.setQuestion(q)
	return s
}

// Scope is kept next to the key for display.
func (s *Session) Scope() domain.Scope {
	return s.Key.Scope
}

func (s *Session) setQuestion(q domain.Question) {
	s.Question = q
	s.HintsUsed = 0
	s.Revealed = make([]bool, len([]rune(q.Answer)))
}

// isLast reports whether the current question ends a limited series.
func (s *Session) isLast() bool {
	return s.Total != domain.Unlimited && s.Asked >= s.Total
}

// mayControl reports whether participantID may hint or answer under the scope rules.
func (s *Session) mayControl(participantID int64) bool {
	return s.Key.Scope == domain.ScopeShared || participantID == s.StarterID
}

// Pattern renders the revealed positions one string per rune.
func (s *Session) Pattern() []string {
	answer := []rune(s.Question.Answer)
	out := make([]string, len(s.Revealed))
	for i, shown := range s.Revealed {
		if shown && i < len(answer) {
			out[i] = string(answer[i])
		} else {
			out[i] = string(Placeholder)
		}
	}
	return out
}

// SessionView is a read-only copy of a session for callers outside the dispatcher.
type SessionView struct {
	ID        string
	Key       domain.SessionKey
	ChatID    int64
	StarterID int64
	Question  domain.Question
	Pattern   []string
	HintsUsed int
	Asked     int
	Total     int
	StartedAt time.Time
}

func (s *Session) view() SessionView {
	return SessionView{
		ID:        s.ID,
		Key:       s.Key,
		ChatID:    s.ChatID,
		StarterID: s.StarterID,
		Question:  s.Question,
		Pattern:   s.Pattern(),
		HintsUsed: s.HintsUsed,
		Asked:     s.Asked,
		Total:     s.Total,
		StartedAt: s.StartedAt,
	}
}
