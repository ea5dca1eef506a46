package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"trivia-service/internal/domain"
)

// Timing holds the delays of a question cycle, relative to the moment the question is asked.
type Timing struct {
	FormatReveal time.Duration
	AutoHint     time.Duration
	Timeout      time.Duration
	// HintTimeout re-arms the timeout after a manual hint, counted from the hint.
	HintTimeout time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		FormatReveal: 30 * time.Second,
		AutoHint:     50 * time.Second,
		Timeout:      60 * time.Second,
		HintTimeout:  30 * time.Second,
	}
}

// StartRequest asks for a new series. Total is the number of questions or domain.Unlimited.
type StartRequest struct {
	ParticipantID int64
	ChatID        int64
	Scope         domain.Scope
	Total         int
}

// AnswerResult describes how a free-text message was handled.
type AnswerResult struct {
	Key     domain.SessionKey
	Matched bool
	Points  int
}

// HintResult is the pattern after a manual hint.
type HintResult struct {
	Key       domain.SessionKey
	Pattern   []string
	HintsUsed int
}

// Engine drives sessions through their questions. Every command and every timer fire runs
// on the single dispatcher goroutine started by Run, so session state needs no locking.
type Engine struct {
	registry  *Registry
	timers    Scheduler
	questions QuestionSource
	scores    ScoreLedger
	notifier  Notifier
	hints     *HintEngine
	timing    Timing
	now       func() time.Time
	newID     func() string
	log       *slog.Logger
	observer  SessionObserver

	events chan func(context.Context)
	done   chan struct{}
}

// Option customises an Engine.
type Option func(*Engine)

func WithTiming(t Timing) Option {
	return func(e *Engine) { e.timing = t }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand seeds letter selection, for deterministic hints in tests.
func WithRand(rnd *rand.Rand) Option {
	return func(e *Engine) { e.hints = NewHintEngine(rnd) }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithSessionObserver(o SessionObserver) Option {
	return func(e *Engine) { e.observer = o }
}

func NewEngine(timers Scheduler, questions QuestionSource, scores ScoreLedger, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		timers:    timers,
		questions: questions,
		scores:    scores,
		notifier:  notifier,
		timing:    DefaultTiming(),
		now:       time.Now,
		newID:     uuid.NewString,
		log:       slog.Default(),
		events:    make(chan func(context.Context)),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hints == nil {
		e.hints = NewHintEngine(nil)
	}
	if e.notifier == nil {
		e.notifier = NopNotifier{}
	}
	e.registry = NewRegistry(timers, e.observer)
	return e
}

// Run processes events until ctx is cancelled. On exit every timer is cancelled and
// every session dropped, since sessions do not outlive the process.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	e.log.Info("engine started")
	for {
		select {
		case ev := <-e.events:
			ev(ctx)
		case <-ctx.Done():
			n := e.registry.Clear()
			e.log.Info("engine stopped", "dropped_sessions", n)
			return ctx.Err()
		}
	}
}

// do runs fn on the dispatcher and waits for its result.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	ev := func(context.Context) { reply <- fn(ctx) }

	select {
	case e.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return domain.ErrEngineStopped
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fire hands a timer over to the dispatcher. It runs on the timer's goroutine.
func (e *Engine) fire(h TimerHandle) {
	select {
	case e.events <- func(ctx context.Context) { e.onTimer(ctx, h) }:
	case <-e.done:
	}
}

// Start cancels whatever runs under the requested key and begins a fresh series.
func (e *Engine) Start(ctx context.Context, req StartRequest) (SessionView, error) {
	if req.Scope != domain.ScopePersonal && req.Scope != domain.ScopeShared {
		return SessionView{}, fmt.Errorf("unknown scope %d", req.Scope)
	}
	if req.Total != domain.Unlimited && req.Total < 1 {
		return SessionView{}, fmt.Errorf("invalid series length %d", req.Total)
	}

	var view SessionView
	err := e.do(ctx, func(ctx context.Context) error {
		key := domain.SharedKey(req.ChatID)
		if req.Scope == domain.ScopePersonal {
			key = domain.PersonalKey(req.ParticipantID)
		}

		q, err := e.questions.Next(ctx)
		if errors.Is(err, domain.ErrEmptySource) {
			if e.registry.Remove(key) {
				e.log.Info("session discarded, no questions left", "key", key)
			}
			return domain.ErrEmptySource
		}
		if err != nil {
			return fmt.Errorf("draw question: %w", err)
		}

		s := newSession(e.newID(), key, req.ChatID, req.ParticipantID, req.Total, q, e.now())
		replaced := e.registry.Replace(key, s)
		e.armQuestion(key)
		e.log.Info("session started",
			"session", s.ID, "key", key, "chat", s.ChatID, "total", s.Total, "replaced", replaced)
		e.notifyQuestion(ctx, s)
		view = s.view()
		return nil
	})
	return view, err
}

// Answer checks free text against the session the participant is in.
// Text that does not match is not an error.
func (e *Engine) Answer(ctx context.Context, participantID, chatID int64, text string) (AnswerResult, error) {
	var res AnswerResult
	err := e.do(ctx, func(ctx context.Context) error {
		s, err := e.resolve(participantID, chatID)
		if err != nil {
			return err
		}
		res.Key = s.Key
		if !s.mayControl(participantID) {
			return domain.ErrUnauthorized
		}
		if !AnswerMatches(text, s.Question.Answer) {
			return nil
		}

		points := Points(s.HintsUsed)
		next, err := e.drawNext(ctx, s)
		if err != nil {
			return err
		}
		if err := e.scores.AddScore(ctx, participantID, points); err != nil {
			return fmt.Errorf("award points: %w", err)
		}
		res.Matched = true
		res.Points = points

		e.timers.CancelAll(s.Key)
		e.log.Info("question answered",
			"session", s.ID, "key", s.Key, "participant", participantID, "points", points)
		e.notify(ctx, domain.Notification{
			Kind:          domain.NoticeCorrect,
			SessionID:     s.ID,
			Scope:         s.Scope(),
			ChatID:        s.ChatID,
			Asked:         s.Asked,
			Total:         s.Total,
			Answer:        s.Question.Answer,
			ParticipantID: participantID,
			Points:        points,
		})
		e.advance(ctx, s, next)
		return nil
	})
	return res, err
}

// Hint reveals one more letter on demand and restarts the answer window.
func (e *Engine) Hint(ctx context.Context, participantID, chatID int64) (HintResult, error) {
	var res HintResult
	err := e.do(ctx, func(ctx context.Context) error {
		s, err := e.resolve(participantID, chatID)
		if err != nil {
			return err
		}
		res.Key = s.Key
		if !s.mayControl(participantID) {
			return domain.ErrUnauthorized
		}
		if s.HintsUsed >= MaxHints {
			return domain.ErrHintsExhausted
		}
		pattern, ok := e.hints.Reveal(s)
		if !ok {
			return domain.ErrHintsExhausted
		}

		e.timers.CancelAll(s.Key)
		e.timers.Schedule(s.Key, TimerTimeout, e.timing.HintTimeout, e.fire)

		res.Pattern = pattern
		res.HintsUsed = s.HintsUsed
		e.notify(ctx, domain.Notification{
			Kind:          domain.NoticeHint,
			SessionID:     s.ID,
			Scope:         s.Scope(),
			ChatID:        s.ChatID,
			Asked:         s.Asked,
			Total:         s.Total,
			Pattern:       pattern,
			Manual:        true,
			ParticipantID: participantID,
		})
		return nil
	})
	return res, err
}

// Skip moves the starter's session to its next question without scoring.
func (e *Engine) Skip(ctx context.Context, participantID, chatID int64) (domain.SessionKey, error) {
	var key domain.SessionKey
	err := e.do(ctx, func(ctx context.Context) error {
		s, err := e.resolve(participantID, chatID)
		if err != nil {
			return err
		}
		key = s.Key
		if participantID != s.StarterID {
			return domain.ErrUnauthorized
		}
		next, err := e.drawNext(ctx, s)
		if err != nil {
			return err
		}

		e.timers.CancelAll(s.Key)
		e.log.Info("question skipped", "session", s.ID, "key", s.Key)
		e.notify(ctx, domain.Notification{
			Kind:          domain.NoticeSkipped,
			SessionID:     s.ID,
			Scope:         s.Scope(),
			ChatID:        s.ChatID,
			Asked:         s.Asked,
			Total:         s.Total,
			ParticipantID: participantID,
		})
		e.advance(ctx, s, next)
		return nil
	})
	return key, err
}

// Stop ends the starter's session.
func (e *Engine) Stop(ctx context.Context, participantID, chatID int64) (domain.SessionKey, error) {
	var key domain.SessionKey
	err := e.do(ctx, func(ctx context.Context) error {
		s, err := e.resolve(participantID, chatID)
		if err != nil {
			return err
		}
		key = s.Key
		if participantID != s.StarterID {
			return domain.ErrUnauthorized
		}
		e.registry.Remove(s.Key)
		e.log.Info("session stopped", "session", s.ID, "key", s.Key)
		e.notify(ctx, domain.Notification{
			Kind:          domain.NoticeStopped,
			SessionID:     s.ID,
			Scope:         s.Scope(),
			ChatID:        s.ChatID,
			Asked:         s.Asked,
			Total:         s.Total,
			ParticipantID: participantID,
		})
		return nil
	})
	return key, err
}

// Session returns a copy of the session under key.
func (e *Engine) Session(ctx context.Context, key domain.SessionKey) (SessionView, bool, error) {
	var (
		view SessionView
		ok   bool
	)
	err := e.do(ctx, func(context.Context) error {
		var s *Session
		if s, ok = e.registry.Get(key); ok {
			view = s.view()
		}
		return nil
	})
	return view, ok, err
}

// Resolve returns the session a participant's action in chatID would reach.
func (e *Engine) Resolve(ctx context.Context, participantID, chatID int64) (SessionView, error) {
	var view SessionView
	err := e.do(ctx, func(context.Context) error {
		s, err := e.resolve(participantID, chatID)
		if err != nil {
			return err
		}
		view = s.view()
		return nil
	})
	return view, err
}

// ActiveSessions reports how many sessions are live.
func (e *Engine) ActiveSessions() int {
	return e.registry.Len()
}

func (e *Engine) resolve(participantID, chatID int64) (*Session, error) {
	key, ok := e.registry.ResolveActive(participantID, chatID)
	if !ok {
		return nil, domain.ErrNoActiveSession
	}
	s, ok := e.registry.Get(key)
	if !ok {
		return nil, domain.ErrNoActiveSession
	}
	return s, nil
}

func (e *Engine) onTimer(ctx context.Context, h TimerHandle) {
	if !e.timers.Cancel(h) {
		e.log.Debug("stale timer fire", "key", h.Key, "kind", h.Kind)
		return
	}
	s, ok := e.registry.Get(h.Key)
	if !ok {
		e.log.Debug("timer fired without session", "key", h.Key, "kind", h.Kind)
		return
	}

	switch h.Kind {
	case TimerFormatReveal:
		e.notify(ctx, domain.Notification{
			Kind:      domain.NoticeFormat,
			SessionID: s.ID,
			Scope:     s.Scope(),
			ChatID:    s.ChatID,
			Asked:     s.Asked,
			Total:     s.Total,
			Pattern:   s.Pattern(),
		})
	case TimerAutoHint:
		if s.HintsUsed >= MaxHints {
			return
		}
		pattern, ok := e.hints.Reveal(s)
		if !ok {
			return
		}
		e.notify(ctx, domain.Notification{
			Kind:      domain.NoticeHint,
			SessionID: s.ID,
			Scope:     s.Scope(),
			ChatID:    s.ChatID,
			Asked:     s.Asked,
			Total:     s.Total,
			Pattern:   pattern,
		})
	case TimerTimeout:
		e.timeout(ctx, s)
	}
}

func (e *Engine) timeout(ctx context.Context, s *Session) {
	next, err := e.drawNext(ctx, s)
	if err != nil {
		// Keep the session as it is and try again later.
		e.log.Error("advance after timeout failed", "session", s.ID, "key", s.Key, "err", err)
		e.timers.Schedule(s.Key, TimerTimeout, e.timing.HintTimeout, e.fire)
		return
	}

	e.timers.CancelAll(s.Key)
	e.log.Info("question timed out", "session", s.ID, "key", s.Key, "asked", s.Asked)
	e.notify(ctx, domain.Notification{
		Kind:          domain.NoticeTimeout,
		SessionID:     s.ID,
		Scope:         s.Scope(),
		ChatID:        s.ChatID,
		Asked:         s.Asked,
		Total:         s.Total,
		Answer:        s.Question.Answer,
		ParticipantID: s.StarterID,
	})
	e.advance(ctx, s, next)
}

// drawNext fetches the question that follows the current one. It returns nil when the
// series ends here or the source has run dry; advance tells those apart.
func (e *Engine) drawNext(ctx context.Context, s *Session) (*domain.Question, error) {
	if s.isLast() {
		return nil, nil
	}
	q, err := e.questions.Next(ctx)
	if errors.Is(err, domain.ErrEmptySource) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("draw question: %w", err)
	}
	return &q, nil
}

// advance moves s past its current question. The caller has already cancelled the timers of s.
func (e *Engine) advance(ctx context.Context, s *Session, next *domain.Question) {
	if s.isLast() {
		e.complete(ctx, s)
		return
	}
	if next == nil {
		e.registry.Remove(s.Key)
		e.log.Warn("session ended, question source is empty", "session", s.ID, "key", s.Key)
		e.notify(ctx, domain.Notification{
			Kind:          domain.NoticeEmptySource,
			SessionID:     s.ID,
			Scope:         s.Scope(),
			ChatID:        s.ChatID,
			Asked:         s.Asked,
			Total:         s.Total,
			ParticipantID: s.StarterID,
		})
		return
	}

	s.Asked++
	s.setQuestion(*next)
	e.armQuestion(s.Key)
	e.registry.Refresh(s.Key)
	e.notifyQuestion(ctx, s)
}

func (e *Engine) complete(ctx context.Context, s *Session) {
	n := domain.Notification{
		Kind:          domain.NoticeCompleted,
		SessionID:     s.ID,
		Scope:         s.Scope(),
		ChatID:        s.ChatID,
		Asked:         s.Asked,
		Total:         s.Total,
		ParticipantID: s.StarterID,
	}
	score, err := e.scores.Score(ctx, s.StarterID)
	if err != nil {
		e.log.Error("read final score", "session", s.ID, "participant", s.StarterID, "err", err)
	} else {
		n.Score = score
		n.HasScore = true
	}

	e.registry.Remove(s.Key)
	e.log.Info("session completed", "session", s.ID, "key", s.Key, "asked", s.Asked)
	e.notify(ctx, n)
}

func (e *Engine) armQuestion(key domain.SessionKey) {
	e.timers.Schedule(key, TimerFormatReveal, e.timing.FormatReveal, e.fire)
	e.timers.Schedule(key, TimerAutoHint, e.timing.AutoHint, e.fire)
	e.timers.Schedule(key, TimerTimeout, e.timing.Timeout, e.fire)
}

func (e *Engine) notifyQuestion(ctx context.Context, s *Session) {
	e.notify(ctx, domain.Notification{
		Kind:          domain.NoticeQuestion,
		SessionID:     s.ID,
		Scope:         s.Scope(),
		ChatID:        s.ChatID,
		Asked:         s.Asked,
		Total:         s.Total,
		Question:      s.Question.Text,
		ParticipantID: s.StarterID,
	})
}

func (e *Engine) notify(ctx context.Context, n domain.Notification) {
	n.SentAt = e.now()
	e.notifier.Notify(ctx, n)
}

// Points awards 3 for an unaided answer, one less per hint, never below 1.
func Points(hintsUsed int) int {
	if p := 3 - hintsUsed; p > 1 {
		return p
	}
	return 1
}

// AnswerMatches compares trimmed strings case-insensitively. Nothing fuzzier.
func AnswerMatches(text, answer string) bool {
	return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(answer))
}
