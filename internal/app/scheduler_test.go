package app

import (
	"testing"
	"time"

	"trivia-service/internal/domain"
)

func TestSchedulerFiresHandle(t *testing.T) {
	s := NewTimerScheduler()
	key := domain.PersonalKey(1)
	fired := make(chan TimerHandle, 1)

	h := s.Schedule(key, TimerFormatReveal, time.Millisecond, func(h TimerHandle) { fired <- h })

	select {
	case got := <-fired:
		if got != h {
			t.Fatalf("expected handle %+v, got %+v", h, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	if !s.Cancel(h) {
		t.Fatalf("a fired timer stays registered until cancelled")
	}
	if s.Cancel(h) {
		t.Fatalf("second cancel must report false")
	}
}

func TestSchedulerRearmMakesOldHandleStale(t *testing.T) {
	s := NewTimerSchedulerWithClock(func(time.Duration, func()) Timer { return noopTimer{} })
	key := domain.SharedKey(-1)

	old := s.Schedule(key, TimerTimeout, time.Minute, func(TimerHandle) {})
	current := s.Schedule(key, TimerTimeout, time.Minute, func(TimerHandle) {})

	if s.Cancel(old) {
		t.Fatalf("old handle must be stale after re-arm")
	}
	if !s.Cancel(current) {
		t.Fatalf("current handle must cancel")
	}
}

func TestSchedulerCancelAll(t *testing.T) {
	s := NewTimerSchedulerWithClock(func(time.Duration, func()) Timer { return noopTimer{} })
	a, b := domain.PersonalKey(1), domain.PersonalKey(2)
	s.Schedule(a, TimerFormatReveal, time.Minute, func(TimerHandle) {})
	s.Schedule(a, TimerAutoHint, time.Minute, func(TimerHandle) {})
	s.Schedule(a, TimerTimeout, time.Minute, func(TimerHandle) {})
	s.Schedule(b, TimerTimeout, time.Minute, func(TimerHandle) {})

	if got := s.Armed(a); len(got) != 3 || got[0] != TimerFormatReveal || got[2] != TimerTimeout {
		t.Fatalf("unexpected armed kinds %v", got)
	}
	if n := s.CancelAll(a); n != 3 {
		t.Fatalf("expected 3 cancelled, got %d", n)
	}
	if len(s.Armed(a)) != 0 || len(s.Armed(b)) != 1 {
		t.Fatalf("CancelAll must only touch its key")
	}
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }
