package app_test

import (
	"errors"
	"testing"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

const (
	alice int64 = 1
	bob   int64 = 2
	room  int64 = -100
)

func TestStartAsksQuestionAndArmsTimers(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)

	view := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10})

	if view.Key != domain.PersonalKey(alice) || view.Asked != 1 || view.HintsUsed != 0 {
		t.Fatalf("unexpected session %+v", view)
	}
	if len(view.Pattern) != len([]rune(view.Question.Answer)) {
		t.Fatalf("pattern length %d does not match answer %q", len(view.Pattern), view.Question.Answer)
	}
	for _, p := range view.Pattern {
		if p != "_" {
			t.Fatalf("expected hidden pattern, got %v", view.Pattern)
		}
	}
	if got := h.timers.Armed(view.Key); len(got) != 3 {
		t.Fatalf("expected three armed timers, got %v", got)
	}
	questions := h.notes.ofKind(domain.NoticeQuestion)
	if len(questions) != 1 || questions[0].Asked != 1 || questions[0].Total != 10 || questions[0].ChatID != alice {
		t.Fatalf("unexpected question notifications %+v", questions)
	}
}

func TestTimersRevealThenTimeOut(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: domain.Unlimited}).Key

	h.clock.fire(t, formatDelay)
	view := h.mustSession(t, key)
	formats := h.notes.ofKind(domain.NoticeFormat)
	if len(formats) != 1 || len(formats[0].Pattern) != len([]rune("Рюрик")) {
		t.Fatalf("expected one format reveal, got %+v", formats)
	}
	if view.HintsUsed != 0 {
		t.Fatalf("format reveal must not count as hint")
	}

	h.clock.fire(t, autoHintWait)
	view = h.mustSession(t, key)
	if view.HintsUsed != 1 || revealedCount(view.Pattern) != 1 {
		t.Fatalf("expected one automatic hint, got %+v", view)
	}
	hints := h.notes.ofKind(domain.NoticeHint)
	if len(hints) != 1 || hints[0].Manual {
		t.Fatalf("expected one automatic hint notification, got %+v", hints)
	}

	h.clock.fire(t, timeoutDelay)
	view = h.mustSession(t, key)
	timeouts := h.notes.ofKind(domain.NoticeTimeout)
	if len(timeouts) != 1 || timeouts[0].Answer != "Рюрик" {
		t.Fatalf("expected timeout revealing the answer, got %+v", timeouts)
	}
	if view.Asked != 2 || view.HintsUsed != 0 || revealedCount(view.Pattern) != 0 || view.Question.Answer != "внук" {
		t.Fatalf("expected fresh second question, got %+v", view)
	}
	if got := h.timers.Armed(key); len(got) != 3 {
		t.Fatalf("expected timers re-armed, got %v", got)
	}
}

func TestAnswerIgnoresCaseAndSpaces(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10})

	res, err := h.engine.Answer(h.ctx(t), alice, alice, "рюрик ")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !res.Matched || res.Points != 3 {
		t.Fatalf("expected match worth 3, got %+v", res)
	}
	if got := h.score(t, alice); got != 3 {
		t.Fatalf("expected score 3, got %d", got)
	}
}

func TestWrongAnswerIsIgnored(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10}).Key

	res, err := h.engine.Answer(h.ctx(t), alice, alice, "Олег")
	if err != nil || res.Matched {
		t.Fatalf("expected silent miss, got %+v, %v", res, err)
	}
	if view := h.mustSession(t, key); view.Asked != 1 {
		t.Fatalf("a miss must not advance, got %+v", view)
	}
	if len(h.timers.Armed(key)) != 3 {
		t.Fatalf("a miss must not touch timers")
	}
	if len(h.notes.all()) != 1 {
		t.Fatalf("expected only the question notification, got %+v", h.notes.all())
	}
}

func TestPointsDependOnHints(t *testing.T) {
	for hints, want := range map[int]int{0: 3, 1: 2, 2: 1} {
		h := newHarness(t, true, triviaQuestions()...)
		h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10})
		for i := 0; i < hints; i++ {
			if _, err := h.engine.Hint(h.ctx(t), alice, alice); err != nil {
				t.Fatalf("hint %d: %v", i, err)
			}
		}
		res, err := h.engine.Answer(h.ctx(t), alice, alice, "Рюрик")
		if err != nil {
			t.Fatalf("answer: %v", err)
		}
		if res.Points != want || h.score(t, alice) != want {
			t.Fatalf("hints=%d: expected %d points, got %+v", hints, want, res)
		}
	}

	if app.Points(5) != 1 {
		t.Fatalf("points never drop below 1")
	}
}

func TestLimitedSeriesCompletes(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 2}).Key

	if _, err := h.engine.Answer(h.ctx(t), alice, alice, "Рюрик"); err != nil {
		t.Fatalf("answer 1: %v", err)
	}
	view := h.mustSession(t, key)
	if view.Asked != 2 {
		t.Fatalf("expected second question, got %+v", view)
	}

	if _, err := h.engine.Answer(h.ctx(t), alice, alice, view.Question.Answer); err != nil {
		t.Fatalf("answer 2: %v", err)
	}
	if _, ok := h.session(t, key); ok {
		t.Fatalf("expected session removed after completion")
	}
	done := h.notes.ofKind(domain.NoticeCompleted)
	if len(done) != 1 || !done[0].HasScore || done[0].Score != 6 {
		t.Fatalf("expected completion with score 6, got %+v", done)
	}
	if len(h.timers.Armed(key)) != 0 {
		t.Fatalf("expected no timers after completion")
	}

	if _, err := h.engine.Stop(h.ctx(t), alice, alice); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected no active session, got %v", err)
	}
}

func TestUnlimitedSeriesSurvivesTimeouts(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: room, Scope: domain.ScopeShared, Total: domain.Unlimited}).Key

	for i := 0; i < 5; i++ {
		h.clock.fire(t, timeoutDelay)
		view := h.mustSession(t, key)
		if view.Asked != i+2 {
			t.Fatalf("timeout %d: expected asked %d, got %d", i+1, i+2, view.Asked)
		}
	}
	if n := len(h.notes.ofKind(domain.NoticeCompleted)); n != 0 {
		t.Fatalf("unlimited series must not complete, got %d completions", n)
	}
}

func TestManualHintRestartsWindow(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10}).Key

	res, err := h.engine.Hint(h.ctx(t), alice, alice)
	if err != nil {
		t.Fatalf("hint: %v", err)
	}
	if res.HintsUsed != 1 || revealedCount(res.Pattern) != 1 {
		t.Fatalf("unexpected hint result %+v", res)
	}
	if got := h.timers.Armed(key); len(got) != 1 || got[0] != app.TimerTimeout {
		t.Fatalf("expected only the timeout armed, got %v", got)
	}
	if pending := h.clock.pending(); len(pending) != 1 || pending[0] != hintTimeout {
		t.Fatalf("expected a single pending hint timeout, got %v", pending)
	}
	if hints := h.notes.ofKind(domain.NoticeHint); len(hints) != 1 || !hints[0].Manual {
		t.Fatalf("expected manual hint notification, got %+v", hints)
	}

	h.clock.fire(t, hintTimeout)
	if view := h.mustSession(t, key); view.Asked != 2 {
		t.Fatalf("expected hint timeout to advance, got %+v", view)
	}
	if n := len(h.notes.ofKind(domain.NoticeFormat)); n != 0 {
		t.Fatalf("format reveal must be cancelled by a manual hint, got %d", n)
	}
}

func TestManualHintExhausted(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10}).Key

	for i := 0; i < 2; i++ {
		if _, err := h.engine.Hint(h.ctx(t), alice, alice); err != nil {
			t.Fatalf("hint %d: %v", i+1, err)
		}
	}
	before := h.clock.armed()

	if _, err := h.engine.Hint(h.ctx(t), alice, alice); !errors.Is(err, domain.ErrHintsExhausted) {
		t.Fatalf("expected hints exhausted, got %v", err)
	}
	if after := h.clock.armed(); after != before {
		t.Fatalf("exhausted hint must not arm a timer, armed %d more", after-before)
	}
	view := h.mustSession(t, key)
	if view.HintsUsed != 2 || revealedCount(view.Pattern) != 2 {
		t.Fatalf("expected two hints consumed, got %+v", view)
	}
}

func TestAutoHintCountsTowardLimit(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10})

	h.clock.fire(t, autoHintWait)
	if _, err := h.engine.Hint(h.ctx(t), alice, alice); err != nil {
		t.Fatalf("hint: %v", err)
	}
	if _, err := h.engine.Hint(h.ctx(t), alice, alice); !errors.Is(err, domain.ErrHintsExhausted) {
		t.Fatalf("expected hints exhausted after one automatic and one manual hint, got %v", err)
	}
}

func TestSharedAnswerScoresOnlyWinner(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: room, Scope: domain.ScopeShared, Total: 10}).Key

	res, err := h.engine.Answer(h.ctx(t), bob, room, "Рюрик")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !res.Matched || res.Key != key {
		t.Fatalf("expected bob to hit the shared session, got %+v", res)
	}
	// alice answers the old question again; it no longer matches
	res, err = h.engine.Answer(h.ctx(t), alice, room, "Рюрик")
	if err != nil || res.Matched {
		t.Fatalf("expected stale answer to miss, got %+v, %v", res, err)
	}

	if h.score(t, bob) != 3 || h.score(t, alice) != 0 {
		t.Fatalf("expected only bob scored, bob=%d alice=%d", h.score(t, bob), h.score(t, alice))
	}
	if view := h.mustSession(t, key); view.Asked != 2 {
		t.Fatalf("expected a single advance, got asked=%d", view.Asked)
	}
	correct := h.notes.ofKind(domain.NoticeCorrect)
	if len(correct) != 1 || correct[0].ParticipantID != bob || correct[0].Points != 3 {
		t.Fatalf("unexpected correct notifications %+v", correct)
	}
}

func TestSharedAuthorization(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: room, Scope: domain.ScopeShared, Total: 10}).Key

	if _, err := h.engine.Skip(h.ctx(t), bob, room); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected bob unable to skip, got %v", err)
	}
	if _, err := h.engine.Stop(h.ctx(t), bob, room); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected bob unable to stop, got %v", err)
	}
	if view := h.mustSession(t, key); view.Asked != 1 {
		t.Fatalf("unauthorized commands must not mutate, got %+v", view)
	}
	if _, err := h.engine.Hint(h.ctx(t), bob, room); err != nil {
		t.Fatalf("anyone may hint in a shared session: %v", err)
	}

	if _, err := h.engine.Skip(h.ctx(t), alice, room); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if view := h.mustSession(t, key); view.Asked != 2 || view.HintsUsed != 0 {
		t.Fatalf("expected skip to advance, got %+v", view)
	}
	if h.notes.ofKind(domain.NoticeSkipped) == nil {
		t.Fatalf("expected skip notification")
	}
	if h.score(t, alice) != 0 {
		t.Fatalf("skip must not score")
	}

	if _, err := h.engine.Stop(h.ctx(t), alice, room); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := h.session(t, key); ok {
		t.Fatalf("expected session removed")
	}
	if len(h.clock.pending()) != 0 {
		t.Fatalf("stop must cancel all timers, pending %v", h.clock.pending())
	}
}

func TestPersonalSessionTakesPrecedence(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	h.start(t, app.StartRequest{ParticipantID: bob, ChatID: room, Scope: domain.ScopeShared, Total: 10})
	h.start(t, app.StartRequest{ParticipantID: alice, ChatID: room, Scope: domain.ScopePersonal, Total: 10})

	view, err := h.engine.Resolve(h.ctx(t), alice, room)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if view.Key != domain.PersonalKey(alice) {
		t.Fatalf("expected personal session for alice, got %s", view.Key)
	}
	view, err = h.engine.Resolve(h.ctx(t), bob, room)
	if err != nil || view.Key != domain.SharedKey(room) {
		t.Fatalf("expected shared session for bob, got %s, %v", view.Key, err)
	}
}

func TestRestartCancelsPreviousTimers(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	first := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10})
	oldTimeout := h.clock.last(timeoutDelay)

	second := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 20})
	if first.ID == second.ID {
		t.Fatalf("expected a new series id")
	}
	if !oldTimeout.stopped {
		t.Fatalf("expected old timeout stopped")
	}
	if pending := h.clock.pending(); len(pending) != 3 {
		t.Fatalf("expected exactly the new session's timers, got %v", pending)
	}

	// the old timer goroutine was already running when it got cancelled
	oldTimeout.f()
	view := h.mustSession(t, first.Key)
	if view.ID != second.ID || view.Asked != 1 || view.Total != 20 {
		t.Fatalf("old timer must not touch the new session, got %+v", view)
	}
	if n := len(h.notes.ofKind(domain.NoticeTimeout)); n != 0 {
		t.Fatalf("expected no timeout notification, got %d", n)
	}
}

func TestStaleFireAfterStopIsDiscarded(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10}).Key
	format := h.clock.last(formatDelay)

	if _, err := h.engine.Stop(h.ctx(t), alice, alice); err != nil {
		t.Fatalf("stop: %v", err)
	}
	format.f()

	if _, ok := h.session(t, key); ok {
		t.Fatalf("stale fire must not resurrect the session")
	}
	if h.notes.lastKind() != domain.NoticeStopped {
		t.Fatalf("expected nothing after stop, got %s", h.notes.lastKind())
	}
}

func TestEmptySourceOnStart(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.engine.Start(h.ctx(t), app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10})
	if !errors.Is(err, domain.ErrEmptySource) {
		t.Fatalf("expected empty source, got %v", err)
	}
	if _, ok := h.session(t, domain.PersonalKey(alice)); ok {
		t.Fatalf("no session may be created without a question")
	}
	if h.clock.armed() != 0 {
		t.Fatalf("no timers may be armed without a question")
	}
}

func TestEmptySourceOnAdvance(t *testing.T) {
	h := newHarness(t, false, triviaQuestions()[0])
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: domain.Unlimited}).Key

	if _, err := h.engine.Answer(h.ctx(t), alice, alice, "Рюрик"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, ok := h.session(t, key); ok {
		t.Fatalf("expected session torn down")
	}
	if h.notes.lastKind() != domain.NoticeEmptySource {
		t.Fatalf("expected empty source notification, got %s", h.notes.lastKind())
	}
	if h.score(t, alice) != 3 {
		t.Fatalf("the last answer still scores")
	}
}

func TestLedgerFailureLeavesSessionUnchanged(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10}).Key
	h.ledger.failAdd = errBackend

	if _, err := h.engine.Answer(h.ctx(t), alice, alice, "Рюрик"); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	view := h.mustSession(t, key)
	if view.Asked != 1 || view.Question.Answer != "Рюрик" {
		t.Fatalf("expected session untouched, got %+v", view)
	}
	if len(h.timers.Armed(key)) != 3 {
		t.Fatalf("expected timers untouched")
	}
}

func TestSourceFailureOnSkipLeavesSessionUnchanged(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10}).Key
	h.source.fail(errBackend)

	if _, err := h.engine.Skip(h.ctx(t), alice, alice); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if view := h.mustSession(t, key); view.Asked != 1 {
		t.Fatalf("expected session untouched, got %+v", view)
	}
	if len(h.timers.Armed(key)) != 3 {
		t.Fatalf("expected timers untouched")
	}
}

func TestTimeoutRetriesWhenSourceFails(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10}).Key
	h.clock.fire(t, formatDelay)
	h.clock.fire(t, autoHintWait)
	h.source.fail(errBackend)

	h.clock.fire(t, timeoutDelay)
	if view := h.mustSession(t, key); view.Asked != 1 {
		t.Fatalf("expected session kept, got %+v", view)
	}
	if got := h.timers.Armed(key); len(got) != 1 || got[0] != app.TimerTimeout {
		t.Fatalf("expected timeout re-armed, got %v", got)
	}

	h.source.fail(nil)
	h.clock.fire(t, hintTimeout)
	if view := h.mustSession(t, key); view.Asked != 2 {
		t.Fatalf("expected retry to advance, got %+v", view)
	}
	if n := len(h.notes.ofKind(domain.NoticeTimeout)); n != 1 {
		t.Fatalf("expected a single timeout notification, got %d", n)
	}
}

func TestNoActiveSession(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	h.start(t, app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 10})

	// a personal session lives in the chat where it was started
	if _, err := h.engine.Answer(h.ctx(t), alice, room, "Рюрик"); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected no session in another chat, got %v", err)
	}
	if _, err := h.engine.Hint(h.ctx(t), bob, bob); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected no session for bob, got %v", err)
	}
	if _, err := h.engine.Skip(h.ctx(t), bob, alice); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("bob cannot reach alice's personal session, got %v", err)
	}
}

func TestStartRejectsBadRequests(t *testing.T) {
	h := newHarness(t, true, triviaQuestions()...)
	if _, err := h.engine.Start(h.ctx(t), app.StartRequest{ParticipantID: alice, ChatID: alice, Scope: domain.ScopePersonal, Total: 0}); err == nil {
		t.Fatalf("expected invalid length error")
	}
	if _, err := h.engine.Start(h.ctx(t), app.StartRequest{ParticipantID: alice, ChatID: alice, Total: 10}); err == nil {
		t.Fatalf("expected invalid scope error")
	}
}

func revealedCount(pattern []string) int {
	n := 0
	for _, p := range pattern {
		if p != "_" {
			n++
		}
	}
	return n
}

func TestObserverRefreshedOnEveryQuestion(t *testing.T) {
	obs := newKeyLog()
	h := newHarnessWith(t, []app.Option{app.WithSessionObserver(obs)}, true, triviaQuestions()...)
	key := h.start(t, app.StartRequest{ParticipantID: alice, ChatID: room, Scope: domain.ScopeShared, Total: 3}).Key

	h.clock.fire(t, timeoutDelay)
	if _, err := h.engine.Skip(h.ctx(t), alice, room); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if installed, removed := obs.counts(key); installed != 3 || removed != 0 {
		t.Fatalf("expected start plus two refreshes, got installed=%d removed=%d", installed, removed)
	}

	h.clock.fire(t, timeoutDelay)
	if _, ok := h.session(t, key); ok {
		t.Fatalf("expected the series to complete")
	}
	if installed, removed := obs.counts(key); installed != 3 || removed != 1 {
		t.Fatalf("expected removal on completion, got installed=%d removed=%d", installed, removed)
	}
}
