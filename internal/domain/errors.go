package domain

import "errors"

var (
	// ErrAlreadyActive is returned when a host starts a quiz that already has
	// an active session.
	ErrAlreadyActive = errors.New("quiz already has an active session")
	// ErrVersionConflict signals an optimistic-concurrency loss; the caller
	// must re-read the session and may retry.
	ErrVersionConflict = errors.New("session version conflict")
	// ErrAlreadyAtLastQuestion is returned when Advance is called on the
	// final question.
	ErrAlreadyAtLastQuestion = errors.New("already at last question")
	// ErrSessionEnded is returned when a transition targets an ended session.
	ErrSessionEnded = errors.New("session has ended")
	// ErrQuestionClosed is returned when a submission arrives after the host
	// moved on. Not fatal; the answer is simply not scored.
	ErrQuestionClosed = errors.New("question is closed")
	// ErrSessionNotFound is returned when a session ID resolves to nothing.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrCursorNotFound is returned when a self-paced participant acts
	// before beginning the quiz.
	ErrCursorNotFound = errors.New("self-paced cursor not found")
	// ErrStoreUnavailable wraps backing-store failures; callers should retry
	// with backoff.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
