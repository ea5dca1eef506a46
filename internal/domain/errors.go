package domain

import "errors"

var (
	// ErrEmptySource is returned when no question is available to ask.
	ErrEmptySource = errors.New("question source is empty")
	// ErrUnauthorized is returned when the actor may not perform the command under the scope rules.
	ErrUnauthorized = errors.New("participant is not allowed to do this")
	// ErrHintsExhausted is returned when no more manual hints can be given for the current question.
	ErrHintsExhausted = errors.New("hints exhausted")
	// ErrNoActiveSession is returned when a command cannot be resolved to a live session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionExists is returned when creating a session on an occupied key.
	ErrSessionExists = errors.New("session already exists")
	// ErrQuestionNotFound indicates an unknown question ID.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidQuestion indicates a question with empty text or answer.
	ErrInvalidQuestion = errors.New("question text and answer are required")
	// ErrEngineStopped is returned when the dispatcher is no longer running.
	ErrEngineStopped = errors.New("engine stopped")
)
