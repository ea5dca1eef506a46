package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
)

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

// fakeClock records timers instead of running them; tests fire them by delay.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimerRef struct {
	clock *fakeClock
	timer *fakeTimer
}

func (r fakeTimerRef) Stop() bool {
	r.clock.mu.Lock()
	defer r.clock.mu.Unlock()
	active := !r.timer.stopped && !r.timer.fired
	r.timer.stopped = true
	return active
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) app.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	c.timers = append(c.timers, t)
	return fakeTimerRef{clock: c, timer: t}
}

// pending returns the delays of timers that are neither stopped nor fired.
func (c *fakeClock) pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

// armed counts every timer ever armed.
func (c *fakeClock) armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// last returns the most recently armed timer with the given delay, whatever its state.
func (c *fakeClock) last(d time.Duration) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.timers) - 1; i >= 0; i-- {
		if c.timers[i].delay == d {
			return c.timers[i]
		}
	}
	return nil
}

// fire runs every pending timer armed with delay d.
func (c *fakeClock) fire(t *testing.T, d time.Duration) {
	t.Helper()
	c.mu.Lock()
	var due []*fakeTimer
	for _, tm := range c.timers {
		if !tm.stopped && !tm.fired && tm.delay == d {
			tm.fired = true
			due = append(due, tm)
		}
	}
	c.mu.Unlock()
	if len(due) == 0 {
		t.Fatalf("no pending timer with delay %s", d)
	}
	for _, tm := range due {
		tm.f()
	}
}

type recorder struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (r *recorder) Notify(_ context.Context, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.notes...)
}

func (r *recorder) ofKind(kind domain.NotificationKind) []domain.Notification {
	var out []domain.Notification
	for _, n := range r.all() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) lastKind() domain.NotificationKind {
	all := r.all()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1].Kind
}

// scriptedSource hands out questions in order, cycling when cycle is set.
type scriptedSource struct {
	mu        sync.Mutex
	questions []domain.Question
	next      int
	cycle     bool
	err       error
}

func (s *scriptedSource) Next(context.Context) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Question{}, s.err
	}
	if len(s.questions) == 0 || (!s.cycle && s.next >= len(s.questions)) {
		return domain.Question{}, domain.ErrEmptySource
	}
	q := s.questions[s.next%len(s.questions)]
	s.next++
	return q, nil
}

func (s *scriptedSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type flakyLedger struct {
	*memory.Scoreboard
	mu      sync.Mutex
	failAdd error
}

func (l *flakyLedger) AddScore(ctx context.Context, participantID int64, delta int) error {
	l.mu.Lock()
	err := l.failAdd
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.Scoreboard.AddScore(ctx, participantID, delta)
}

var errBackend = errors.New("backend unavailable")

// keyLog records observer calls per key.
type keyLog struct {
	mu        sync.Mutex
	installed map[domain.SessionKey]int
	removed   map[domain.SessionKey]int
}

func newKeyLog() *keyLog {
	return &keyLog{installed: map[domain.SessionKey]int{}, removed: map[domain.SessionKey]int{}}
}

func (l *keyLog) SessionInstalled(key domain.SessionKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.installed[key]++
}

func (l *keyLog) SessionRemoved(key domain.SessionKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed[key]++
}

func (l *keyLog) counts(key domain.SessionKey) (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.installed[key], l.removed[key]
}

var (
	formatDelay  = 30 * time.Second
	autoHintWait = 50 * time.Second
	timeoutDelay = 60 * time.Second
	hintTimeout  = 45 * time.Second
)

type harness struct {
	engine *app.Engine
	timers *app.TimerScheduler
	clock  *fakeClock
	notes  *recorder
	source *scriptedSource
	ledger *flakyLedger
}

func newHarness(t *testing.T, cycle bool, questions ...domain.Question) *harness {
	t.Helper()
	return newHarnessWith(t, nil, cycle, questions...)
}

func newHarnessWith(t *testing.T, extra []app.Option, cycle bool, questions ...domain.Question) *harness {
	t.Helper()
	clock := &fakeClock{}
	timers := app.NewTimerSchedulerWithClock(clock.AfterFunc)
	h := &harness{
		timers: timers,
		clock:  clock,
		notes:  &recorder{},
		source: &scriptedSource{questions: questions, cycle: cycle},
		ledger: &flakyLedger{Scoreboard: memory.NewScoreboard()},
	}
	h.engine = app.NewEngine(timers, h.source, h.ledger, h.notes,
		append([]app.Option{
			app.WithTiming(app.Timing{
				FormatReveal: formatDelay,
				AutoHint:     autoHintWait,
				Timeout:      timeoutDelay,
				HintTimeout:  hintTimeout,
			}),
			app.WithRand(rand.New(rand.NewSource(7))),
			app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		}, extra...)...,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) ctx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (h *harness) session(t *testing.T, key domain.SessionKey) (app.SessionView, bool) {
	t.Helper()
	view, ok, err := h.engine.Session(h.ctx(t), key)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return view, ok
}

func (h *harness) mustSession(t *testing.T, key domain.SessionKey) app.SessionView {
	t.Helper()
	view, ok := h.session(t, key)
	if !ok {
		t.Fatalf("expected live session under %s", key)
	}
	return view
}

func (h *harness) start(t *testing.T, req app.StartRequest) app.SessionView {
	t.Helper()
	view, err := h.engine.Start(h.ctx(t), req)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return view
}

func (h *harness) score(t *testing.T, participantID int64) int {
	t.Helper()
	score, err := h.ledger.Score(context.Background(), participantID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	return score
}

func triviaQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Text: "Начальник варяжского отряда в Новгороде?", Answer: "Рюрик"},
		{ID: 2, Text: "Кем приходился Пётр II Петру I?", Answer: "внук"},
		{ID: 3, Text: "Xpaнилищe для пacпopтa (Мaякoвcк.)?", Answer: "портфель"},
	}
}
