package domain

import (
	"fmt"
	"time"
)

// Unlimited is the totalQuestions sentinel for an endless series.
const Unlimited = -1

// Scope tells who a session belongs to.
type Scope int

const (
	// ScopePersonal sessions belong to a single participant.
	ScopePersonal Scope = iota + 1
	// ScopeShared sessions belong to a chat; anyone in it may answer.
	ScopeShared
)

func (s Scope) String() string {
	switch s {
	case ScopePersonal:
		return "personal"
	case ScopeShared:
		return "shared"
	default:
		return "unknown"
	}
}

func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseScope maps the wire names used by transports ("personal", "group", "shared") to a Scope.
func ParseScope(raw string) (Scope, error) {
	switch raw {
	case "personal":
		return ScopePersonal, nil
	case "group", "shared":
		return ScopeShared, nil
	default:
		return 0, fmt.Errorf("unknown scope %q", raw)
	}
}

// SessionKey identifies a session and every timer belonging to it.
// ID is the participant for personal keys and the chat for shared keys.
type SessionKey struct {
	Scope Scope
	ID    int64
}

// PersonalKey returns the key of a participant's personal session.
func PersonalKey(participantID int64) SessionKey {
	return SessionKey{Scope: ScopePersonal, ID: participantID}
}

// SharedKey returns the key of a chat's shared session.
func SharedKey(chatID int64) SessionKey {
	return SessionKey{Scope: ScopeShared, ID: chatID}
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s:%d", k.Scope, k.ID)
}

// Question is a question with its single free-text answer.
type Question struct {
	ID     int64  `json:"id" yaml:"id"`
	Text   string `json:"question" yaml:"question"`
	Answer string `json:"answer" yaml:"answer"`
}

// Player is a registered participant.
type Player struct {
	UserID      int64
	DisplayName string
	Score       int
}

// LeaderboardEntry is a snapshot-friendly view of a player.
type LeaderboardEntry struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// NotificationKind enumerates what the engine tells a chat.
type NotificationKind string

const (
	NoticeQuestion    NotificationKind = "question"
	NoticeFormat      NotificationKind = "format"
	NoticeHint        NotificationKind = "hint"
	NoticeTimeout     NotificationKind = "timeout"
	NoticeCorrect     NotificationKind = "correct"
	NoticeSkipped     NotificationKind = "skipped"
	NoticeCompleted   NotificationKind = "completed"
	NoticeStopped     NotificationKind = "stopped"
	NoticeEmptySource NotificationKind = "empty_source"
)

// Notification is an outbound event addressed to a chat. Transports decide how to render it.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	SessionID string           `json:"sessionId"`
	Scope     Scope            `json:"scope"`
	ChatID    int64            `json:"chatId"`
	Asked     int              `json:"asked,omitempty"`
	Total     int              `json:"total,omitempty"`
	Question  string           `json:"question,omitempty"`
	Pattern   []string         `json:"pattern,omitempty"`
	Manual    bool             `json:"manual,omitempty"`
	Answer    string           `json:"answer,omitempty"`
	// ParticipantID is the scorer for correct answers and the starter otherwise.
	ParticipantID int64 `json:"participantId,omitempty"`
	Points        int   `json:"points,omitempty"`
	// Score is the starter's total on completion; HasScore is false when the ledger could not be read.
	Score    int       `json:"score,omitempty"`
	HasScore bool      `json:"hasScore,omitempty"`
	SentAt   time.Time `json:"sentAt"`
}

// SampleQuestions is the starter bank seeded into an empty store.
func SampleQuestions() []Question {
	return []Question{
		{Text: "Кем приходился Пётр II Петру I?", Answer: "внук"},
		{Text: "Начальник варяжского отряда в Новгороде?", Answer: "рюрик"},
		{Text: "Xpaнилищe для пacпopтa (Мaякoвcк.)?", Answer: "портфель"},
	}
}
