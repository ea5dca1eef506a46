package app

import (
	"sync"
	"time"

	"trivia-service/internal/domain"
)

// TimerKind names one of the timers armed for a question.
type TimerKind int

const (
	TimerFormatReveal TimerKind = iota + 1
	TimerAutoHint
	TimerTimeout
)

func (k TimerKind) String() string {
	switch k {
	case TimerFormatReveal:
		return "format_reveal"
	case TimerAutoHint:
		return "auto_hint"
	case TimerTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// TimerHandle identifies one armed timer. The sequence number distinguishes a re-armed
// timer from an earlier one of the same kind on the same key.
type TimerHandle struct {
	Key  domain.SessionKey
	Kind TimerKind
	seq  uint64
}

// Scheduler arms and cancels one-shot timers grouped by session key.
type Scheduler interface {
	// Schedule arms a timer that calls fire with its handle after delay.
	Schedule(key domain.SessionKey, kind TimerKind, delay time.Duration, fire func(TimerHandle)) TimerHandle
	// Cancel stops and forgets h. It reports whether h was still armed.
	Cancel(h TimerHandle) bool
	// CancelAll cancels every timer of key and returns how many were armed.
	CancelAll(key domain.SessionKey) int
}

// Timer is the part of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc starts a timer that runs f in its own goroutine after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type timerSlot struct {
	key  domain.SessionKey
	kind TimerKind
}

type armedTimer struct {
	seq   uint64
	timer Timer
}

// TimerScheduler is the in-process Scheduler. A fired timer stays registered until it is
// cancelled, so the consumer can tell a live fire from one that raced with cancellation.
type TimerScheduler struct {
	after AfterFunc

	mu     sync.Mutex
	seq    uint64
	timers map[timerSlot]armedTimer
	byKey  map[domain.SessionKey]map[TimerKind]struct{}
}

func NewTimerScheduler() *TimerScheduler {
	return NewTimerSchedulerWithClock(realAfterFunc)
}

// NewTimerSchedulerWithClock lets tests drive timers by hand.
func NewTimerSchedulerWithClock(after AfterFunc) *TimerScheduler {
	return &TimerScheduler{
		after:  after,
		timers: make(map[timerSlot]armedTimer),
		byKey:  make(map[domain.SessionKey]map[TimerKind]struct{}),
	}
}

func (s *TimerScheduler) Schedule(key domain.SessionKey, kind TimerKind, delay time.Duration, fire func(TimerHandle)) TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := timerSlot{key: key, kind: kind}
	if prev, ok := s.timers[slot]; ok {
		prev.timer.Stop()
	}

	s.seq++
	h := TimerHandle{Key: key, Kind: kind, seq: s.seq}
	s.timers[slot] = armedTimer{
		seq:   h.seq,
		timer: s.after(delay, func() { fire(h) }),
	}
	kinds, ok := s.byKey[key]
	if !ok {
		kinds = make(map[TimerKind]struct{})
		s.byKey[key] = kinds
	}
	kinds[kind] = struct{}{}
	return h
}

func (s *TimerScheduler) Cancel(h TimerHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := timerSlot{key: h.Key, kind: h.Kind}
	armed, ok := s.timers[slot]
	if !ok || armed.seq != h.seq {
		return false
	}
	armed.timer.Stop()
	s.forgetLocked(slot)
	return true
}

func (s *TimerScheduler) CancelAll(key domain.SessionKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := s.byKey[key]
	n := 0
	for kind := range kinds {
		slot := timerSlot{key: key, kind: kind}
		if armed, ok := s.timers[slot]; ok {
			armed.timer.Stop()
			delete(s.timers, slot)
			n++
		}
	}
	delete(s.byKey, key)
	return n
}

// Armed returns the kinds currently registered for key.
func (s *TimerScheduler) Armed(key domain.SessionKey) []TimerKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TimerKind, 0, len(s.byKey[key]))
	for _, kind := range []TimerKind{TimerFormatReveal, TimerAutoHint, TimerTimeout} {
		if _, ok := s.byKey[key][kind]; ok {
			out = append(out, kind)
		}
	}
	return out
}

func (s *TimerScheduler) forgetLocked(slot timerSlot) {
	delete(s.timers, slot)
	if kinds, ok := s.byKey[slot.key]; ok {
		delete(kinds, slot.kind)
		if len(kinds) == 0 {
			delete(s.byKey, slot.key)
		}
	}
}
