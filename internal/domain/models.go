package domain

import "time"

// SessionState is the lifecycle phase of a host-directed quiz session.
type SessionState string

const (
	SessionNotStarted SessionState = "not_started"
	SessionActive     SessionState = "active"
	SessionEnded      SessionState = "ended"
)

// QuizSession is the single source of truth for which question is live in a
// host-directed run. Version strictly increases on every transition and is
// the optimistic-concurrency token; CurrentQuestionIndex never decreases.
type QuizSession struct {
	ID                   string       `json:"id"`
	QuizID               string       `json:"quizId"`
	EventID              string       `json:"eventId"`
	State                SessionState `json:"state"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	Version              int64        `json:"version"`
	QuestionStartedAt    time.Time    `json:"questionStartedAt"`
}

// IsActive reports whether the session accepts submissions.
func (s QuizSession) IsActive() bool {
	return s.State == SessionActive
}

// IsEnded reports whether the session is closed for good.
func (s QuizSession) IsEnded() bool {
	return s.State == SessionEnded
}

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is immutable within a session. CorrectOption holds the ID of the
// winning option; TimeLimitSeconds drives the client countdown and the
// latency clamp, it is not a server-enforced cutoff.
type Question struct {
	ID               string   `json:"id"`
	QuizID           string   `json:"quizId"`
	OrderIndex       int      `json:"orderIndex"`
	Text             string   `json:"text"`
	Options          []Option `json:"options"`
	CorrectOption    string   `json:"correctOption"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// Public returns a copy safe to send to participants while the question is
// open: the correct option is blanked out.
func (q Question) Public() Question {
	q.CorrectOption = ""
	return q
}

// HasOption reports whether the given option ID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	EventID   string     `json:"eventId"`
	Questions []Question `json:"questions"`
}

// QuestionAt returns the question at the given index.
func (q Quiz) QuestionAt(index int) (Question, bool) {
	if index < 0 || index >= len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[index], true
}

// AnswerSubmission is one participant's scored answer. SessionID is empty in
// self-paced mode; RunRef resolves the uniqueness scope either way.
type AnswerSubmission struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"sessionId,omitempty"`
	QuizID            string    `json:"quizId"`
	QuestionID        string    `json:"questionId"`
	UserID            string    `json:"userId"`
	SelectedOption    string    `json:"selectedOption"`
	SubmittedAt       time.Time `json:"submittedAt"`
	ResponseLatencyMs int64     `json:"responseLatencyMs"`
	IsCorrect         bool      `json:"isCorrect"`
	Score             int       `json:"score"`
}

// RunRef is the uniqueness scope for the submission: the session for
// host-directed runs, the quiz itself for self-paced runs.
func (a AnswerSubmission) RunRef() string {
	if a.SessionID != "" {
		return a.SessionID
	}
	return a.QuizID
}

// SubmissionResult is what Submit hands back. AlreadyRecorded marks the
// idempotent path: the submission is the previously stored row, untouched.
type SubmissionResult struct {
	Submission      AnswerSubmission `json:"submission"`
	AlreadyRecorded bool             `json:"alreadyRecorded"`
}

// Cursor tracks a self-paced participant's own progression through a quiz.
// It is private per participant and never shared.
type Cursor struct {
	QuizID        string    `json:"quizId"`
	UserID        string    `json:"userId"`
	QuestionIndex int       `json:"questionIndex"`
	StartedAt     time.Time `json:"startedAt"`
}

// LeaderboardEntry is a computed ranking row, never stored.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	TotalScore  int    `json:"totalScore"`
	TotalTimeMs int64  `json:"totalTimeMs"`
	Rank        int    `json:"rank"`
}

// LeaderboardScope selects which submissions feed the board.
type LeaderboardScope string

const (
	ScopeQuestion   LeaderboardScope = "question"
	ScopeCumulative LeaderboardScope = "cumulative"
)

// Leaderboard captures an ordered scoreboard snapshot.
type Leaderboard struct {
	QuizID    string             `json:"quizId"`
	SessionID string             `json:"sessionId,omitempty"`
	Scope     LeaderboardScope   `json:"scope"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
