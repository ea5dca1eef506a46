package app

import (
	"sync"

	"trivia-service/internal/domain"
)

// SessionObserver is told when sessions come and go (e.g. a shared liveness marker).
// Implementations run on the engine dispatcher and must not block.
type SessionObserver interface {
	// SessionInstalled is called for a new session and again each time it moves on to a
	// question.
	SessionInstalled(key domain.SessionKey)
	SessionRemoved(key domain.SessionKey)
}

// Registry owns the live sessions. Every removal or replacement cancels the key's timers
// before the old session is dropped.
type Registry struct {
	timers   Scheduler
	observer SessionObserver

	mu       sync.RWMutex
	sessions map[domain.SessionKey]*Session
}

func NewRegistry(timers Scheduler, observer SessionObserver) *Registry {
	return &Registry{
		timers:   timers,
		observer: observer,
		sessions: make(map[domain.SessionKey]*Session),
	}
}

// ResolveActive picks the session a participant's action in chatID applies to.
// A personal session in this chat wins over the chat's shared session.
func (r *Registry) ResolveActive(participantID, chatID int64) (domain.SessionKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	personal := domain.PersonalKey(participantID)
	if s, ok := r.sessions[personal]; ok && s.ChatID == chatID {
		return personal, true
	}
	shared := domain.SharedKey(chatID)
	if _, ok := r.sessions[shared]; ok {
		return shared, true
	}
	return domain.SessionKey{}, false
}

// Get returns the session stored under key.
func (r *Registry) Get(key domain.SessionKey) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Create installs s under a free key.
func (r *Registry) Create(key domain.SessionKey, s *Session) error {
	r.mu.Lock()
	if _, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return domain.ErrSessionExists
	}
	r.sessions[key] = s
	r.mu.Unlock()

	r.installed(key)
	return nil
}

// Replace cancels any timers of key, drops the previous session and installs s.
// It reports whether a previous session was replaced.
func (r *Registry) Replace(key domain.SessionKey, s *Session) bool {
	r.mu.Lock()
	r.timers.CancelAll(key)
	_, existed := r.sessions[key]
	r.sessions[key] = s
	r.mu.Unlock()

	r.installed(key)
	return existed
}

// Remove cancels the timers of key and deletes its session.
func (r *Registry) Remove(key domain.SessionKey) bool {
	r.mu.Lock()
	r.timers.CancelAll(key)
	_, existed := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if existed && r.observer != nil {
		r.observer.SessionRemoved(key)
	}
	return existed
}

// Refresh tells the observer that the session under key is still live.
func (r *Registry) Refresh(key domain.SessionKey) {
	r.mu.RLock()
	_, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok {
		r.installed(key)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) installed(key domain.SessionKey) {
	if r.observer != nil {
		r.observer.SessionInstalled(key)
	}
}

// Clear cancels every timer and drops every session. It returns how many sessions were dropped.
func (r *Registry) Clear() int {
	r.mu.Lock()
	keys := make([]domain.SessionKey, 0, len(r.sessions))
	for key := range r.sessions {
		r.timers.CancelAll(key)
		keys = append(keys, key)
	}
	r.sessions = make(map[domain.SessionKey]*Session)
	r.mu.Unlock()

	if r.observer != nil {
		for _, key := range keys {
			r.observer.SessionRemoved(key)
		}
	}
	return len(keys)
}
