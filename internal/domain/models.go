package domain

import "time"

// SessionState tracks one play attempt through its lifecycle.
// Finished and Errored are terminal; a new start replaces the session.
type SessionState string

const (
	StateNotStarted SessionState = "not_started"
	StateInProgress SessionState = "in_progress"
	StateFinishing  SessionState = "finishing"
	StateFinished   SessionState = "finished"
	StateErrored    SessionState = "error"
)

// Option is a possible answer for a question. Correctness is never
// exposed to players; grading happens on the backend.
type Option struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Question is one multiple-choice question in a session, 1-based order.
type Question struct {
	Order      int      `json:"order"`
	QuestionID int64    `json:"questionId"`
	Text       string   `json:"text"`
	Difficulty string   `json:"difficulty"`
	Category   string   `json:"category"`
	Options    []Option `json:"options"`
}

// Answer pairs a question with the chosen option.
type Answer struct {
	QuestionID int64 `json:"questionId"`
	OptionID   int64 `json:"optionId"`
}

// Session is a single quiz attempt as issued by the backend.
// TournamentID is zero for plain quiz sessions.
type Session struct {
	SessionID       int64         `json:"sessionId"`
	TournamentID    int64         `json:"tournamentId,omitempty"`
	Questions       []Question    `json:"questions"`
	TimeLimit       time.Duration `json:"-"`
	PassesRemaining int           `json:"passesRemaining,omitempty"`
}

// Result is the graded outcome of a finished session. Recorded reports
// whether the backend confirmed the on-chain write; Reason and Err carry
// diagnostics when it did not.
type Result struct {
	Correct         int    `json:"correct"`
	Total           int    `json:"total"`
	Passed          bool   `json:"passed"`
	Recorded        bool   `json:"recorded"`
	TxHash          string `json:"txHash,omitempty"`
	PassesRemaining int    `json:"passesRemaining,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Err             string `json:"error,omitempty"`
}

// SessionStatus is the backend's view of a session, used as a fallback
// read when a finish call reports the session already expired.
type SessionStatus struct {
	State     string
	Remaining time.Duration
	Correct   int
	Total     int
	Recorded  bool
	TxHash    string
}

// Settlement reports the payout transaction for a winning session, once
// the relayer has sent it.
type Settlement struct {
	TxHash string
}

// TournamentInfo is the subset of tournament metadata the gateway needs
// to drive play sessions.
type TournamentInfo struct {
	ID                  int64
	RegistrationEndTime time.Time
	StartTime           time.Time
	EndTime             time.Time
	QuestionsPerSession int
	TimePerQuestion     int
	EntryFeeWei         string
}

// JournalEntry is one finished session as persisted to the play journal.
type JournalEntry struct {
	SessionID    int64
	Address      string
	TournamentID int64
	Correct      int
	Total        int
	Passed       bool
	Recorded     bool
	TxHash       string
	FinishedAt   time.Time
}
