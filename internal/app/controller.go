package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"quiz-play-gateway/internal/domain"
	"quiz-play-gateway/internal/retry"
)

var (
	// ErrNoActiveSession is returned for answer/finish calls when no
	// session is in progress.
	ErrNoActiveSession = errors.New("no session in progress")
	// ErrUnknownQuestion is returned when an answer names a question that
	// is not part of the current session.
	ErrUnknownQuestion = errors.New("question not in session")
)

// Options tunes one controller. Zero values fall back to sane defaults.
// AutoSubmitBuffer applies to tournament sessions only, submitting a few
// seconds early so slow mobile schedulers still beat the backend deadline;
// quiz sessions always run to the deadline.
type Options struct {
	QuestionCount    int
	AutoSubmitBuffer time.Duration
	FinishTimeout    time.Duration
	TickInterval     time.Duration
	AnswerRetry      retry.Envelope
	FinishRetry      retry.Envelope
	Settlement       SettlementPoller
}

func (o Options) withDefaults() Options {
	if o.QuestionCount <= 0 {
		o.QuestionCount = 10
	}
	if o.FinishTimeout <= 0 {
		o.FinishTimeout = 15 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.AnswerRetry.MaxAttempts == 0 {
		o.AnswerRetry = retry.Default
	}
	if o.FinishRetry.MaxAttempts == 0 {
		o.FinishRetry = retry.Default
	}
	return o
}

// Callbacks deliver terminal events to the transport layer.
type Callbacks struct {
	OnResult  func(domain.Result)
	OnSettled func(txHash string)
}

// SessionController drives exactly one quiz attempt at a time from start
// through answers to finish, with a client-side deadline. A new Start
// replaces the previous session; Finished and Errored are terminal.
type SessionController struct {
	backend Backend
	credits *CreditReconciler
	journal Journal
	opts    Options
	cb      Callbacks
	now     func() time.Time

	mu            sync.Mutex
	address       string
	sess          domain.Session
	state         domain.SessionState
	answers       map[int64]int64
	startedAt     time.Time
	inFlight      bool
	finishing     bool
	autoFired     bool
	creditCounted bool
	result        domain.Result
	timerCancel   context.CancelFunc
	pollCancel    context.CancelFunc
}

func NewSessionController(backend Backend, credits *CreditReconciler, journal Journal, opts Options, cb Callbacks) *SessionController {
	return &SessionController{
		backend: backend,
		credits: credits,
		journal: journal,
		opts:    opts.withDefaults(),
		cb:      cb,
		now:     time.Now,
		state:   domain.StateNotStarted,
	}
}

// NewSessionControllerWithClock allows deterministic deadlines in tests.
func NewSessionControllerWithClock(backend Backend, credits *CreditReconciler, journal Journal, opts Options, cb Callbacks, now func() time.Time) *SessionController {
	c := NewSessionController(backend, credits, journal, opts, cb)
	c.now = now
	return c
}

// Start begins a fresh session for address. One credit is deducted
// optimistically before the call; a failed start rolls the deduction back,
// any later failure does not.
func (c *SessionController) Start(ctx context.Context, address string, tournamentID int64) (domain.Session, error) {
	if address == "" {
		return domain.Session{}, domain.ErrNotConnected
	}

	c.credits.RecordOptimisticSpend()
	sess, err := c.backend.StartSession(ctx, address, tournamentID, c.opts.QuestionCount)
	if err != nil {
		c.credits.RollbackOptimisticSpend()
		return domain.Session{}, domain.Wrap(domain.Classify(err), "start session", err)
	}

	c.mu.Lock()
	c.stopTimersLocked()
	c.address = address
	c.sess = sess
	c.state = domain.StateInProgress
	c.answers = make(map[int64]int64, len(sess.Questions))
	c.startedAt = c.now()
	c.inFlight = false
	c.finishing = false
	c.autoFired = false
	c.creditCounted = true
	c.result = domain.Result{}

	tctx, cancel := context.WithCancel(context.Background())
	c.timerCancel = cancel
	c.mu.Unlock()

	go c.runTimer(tctx)
	c.credits.ScheduleRefreshCascade(context.Background())

	log.Printf("session %d started: %d questions, %s limit", sess.SessionID, len(sess.Questions), sess.TimeLimit)
	return sess, nil
}

// ChooseOption records the answer locally and submits it in the
// background. Calls are single-flight: while a submission is outstanding,
// further calls are ignored rather than queued. Answering the final
// question schedules the finish sequence.
func (c *SessionController) ChooseOption(ctx context.Context, questionID, optionID int64) error {
	c.mu.Lock()
	if c.state != domain.StateInProgress {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	if c.inFlight {
		c.mu.Unlock()
		return nil
	}

	var question *domain.Question
	for i := range c.sess.Questions {
		if c.sess.Questions[i].QuestionID == questionID {
			question = &c.sess.Questions[i]
			break
		}
	}
	if question == nil {
		c.mu.Unlock()
		return ErrUnknownQuestion
	}

	c.answers[questionID] = optionID
	c.inFlight = true
	address := c.address
	sessionID := c.sess.SessionID
	tournamentID := c.sess.TournamentID
	last := question.Order == len(c.sess.Questions)
	c.mu.Unlock()

	go func() {
		// Fire-and-forget: grading happens at finish time, so a lost
		// per-answer submit is tolerable.
		err := c.backend.SubmitAnswers(ctx, address, sessionID, tournamentID, []domain.Answer{{QuestionID: questionID, OptionID: optionID}})
		if err != nil {
			log.Printf("session %d: background answer submit failed: %v", sessionID, err)
		}

		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()

		if last {
			if _, err := c.FinishAndSubmit(context.Background()); err != nil {
				log.Printf("session %d: finish after last answer failed: %v", sessionID, err)
			}
		}
	}()
	return nil
}

// FinishAndSubmit submits all recorded answers and settles the session.
// It is idempotent: concurrent and repeated calls produce exactly one
// backend finish call and one Result.
func (c *SessionController) FinishAndSubmit(ctx context.Context) (domain.Result, error) {
	c.mu.Lock()
	switch c.state {
	case domain.StateFinished, domain.StateErrored:
		res := c.result
		c.mu.Unlock()
		return res, nil
	case domain.StateInProgress:
	default:
		c.mu.Unlock()
		return domain.Result{}, ErrNoActiveSession
	}
	if c.finishing {
		res := c.result
		c.mu.Unlock()
		return res, nil
	}
	c.finishing = true
	c.state = domain.StateFinishing
	address := c.address
	sess := c.sess
	answers := c.answerListLocked()
	counted := c.creditCounted
	c.creditCounted = true
	c.mu.Unlock()

	// The credit for this attempt is spent exactly once per session even
	// when the start path could not record it.
	if !counted {
		c.credits.RecordOptimisticSpend()
		c.credits.ScheduleRefreshCascade(context.Background())
	}

	if len(answers) > 0 {
		err := c.opts.AnswerRetry.Do(ctx, func(ctx context.Context) error {
			return c.backend.SubmitAnswers(ctx, address, sess.SessionID, sess.TournamentID, answers)
		})
		if err != nil {
			return c.failSession(fmt.Errorf("submit answers: %w", err))
		}
	}

	var result domain.Result
	err := c.opts.FinishRetry.Do(ctx, func(ctx context.Context) error {
		fctx, cancel := context.WithTimeout(ctx, c.opts.FinishTimeout)
		defer cancel()

		r, ferr := c.backend.FinishSession(fctx, address, sess.SessionID, sess.TournamentID)
		if ferr == nil {
			result = r
			return nil
		}
		if isExpired(ferr) {
			// The backend auto-submits expired sessions; their outcome is
			// still readable from the status endpoint.
			if st, serr := c.backend.SessionStatus(ctx, address, sess.SessionID, sess.TournamentID); serr == nil {
				result = resultFromStatus(st, len(sess.Questions))
				return nil
			}
		}
		return ferr
	})
	if err != nil {
		return c.failSession(fmt.Errorf("finish session: %w", err))
	}

	if result.Total == 0 {
		result.Total = len(sess.Questions)
	}
	if !result.Passed && result.Total > 0 && result.Correct == result.Total {
		result.Passed = true
	}

	c.mu.Lock()
	c.state = domain.StateFinished
	c.result = result
	c.stopDeadlineLocked()
	var pollCtx context.Context
	if result.Passed {
		pollCtx, c.pollCancel = context.WithCancel(context.Background())
	}
	c.mu.Unlock()

	c.record(sess, address, result)
	if c.cb.OnResult != nil {
		c.cb.OnResult(result)
	}
	if result.Passed {
		go c.opts.Settlement.Run(pollCtx, func(ctx context.Context) (string, error) {
			s, err := c.backend.SettlementStatus(ctx, address, sess.SessionID)
			if err != nil {
				return "", err
			}
			return s.TxHash, nil
		}, c.settled)
	}
	return result, nil
}

func (c *SessionController) settled(txHash string) {
	if _, err := c.credits.Refresh(context.Background()); err != nil {
		log.Printf("credits: refresh after settlement failed: %v", err)
	}
	if c.cb.OnSettled != nil {
		c.cb.OnSettled(txHash)
	}
}

func (c *SessionController) failSession(cause error) (domain.Result, error) {
	c.mu.Lock()
	res := domain.Result{
		Total: len(c.sess.Questions),
		Err:   cause.Error(),
	}
	c.state = domain.StateErrored
	c.result = res
	c.stopDeadlineLocked()
	c.mu.Unlock()

	if c.cb.OnResult != nil {
		c.cb.OnResult(res)
	}
	return res, domain.Wrap(domain.Classify(cause), "finish", cause)
}

func (c *SessionController) record(sess domain.Session, address string, result domain.Result) {
	if c.journal == nil {
		return
	}
	entry := domain.JournalEntry{
		SessionID:    sess.SessionID,
		Address:      strings.ToLower(address),
		TournamentID: sess.TournamentID,
		Correct:      result.Correct,
		Total:        result.Total,
		Passed:       result.Passed,
		Recorded:     result.Recorded,
		TxHash:       result.TxHash,
		FinishedAt:   c.now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.journal.Record(ctx, entry); err != nil {
		log.Printf("journal: record session %d failed: %v", sess.SessionID, err)
	}
}

// State returns the lifecycle state of the current session.
func (c *SessionController) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the stored terminal Result, if any.
func (c *SessionController) Result() (domain.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateFinished && c.state != domain.StateErrored {
		return domain.Result{}, false
	}
	return c.result, true
}

// Remaining reports time left on the session clock, floored at zero.
func (c *SessionController) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateInProgress && c.state != domain.StateFinishing {
		return 0
	}
	left := c.sess.TimeLimit - c.now().Sub(c.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Close abandons the current session: the deadline ticker, refresh timers
// and settlement poller stop. Abandoned timers firing against stale state
// were a real leak in earlier clients.
func (c *SessionController) Close() {
	c.mu.Lock()
	c.stopTimersLocked()
	c.mu.Unlock()
}

func (c *SessionController) stopDeadlineLocked() {
	if c.timerCancel != nil {
		c.timerCancel()
		c.timerCancel = nil
	}
}

func (c *SessionController) stopTimersLocked() {
	c.stopDeadlineLocked()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
}

func (c *SessionController) answerListLocked() []domain.Answer {
	answers := make([]domain.Answer, 0, len(c.answers))
	for qid, oid := range c.answers {
		answers = append(answers, domain.Answer{QuestionID: qid, OptionID: oid})
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
	return answers
}

func (c *SessionController) runTimer(ctx context.Context) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.tick() {
				return
			}
		}
	}
}

// tick fires the auto-submit latch once the deadline is reached. Tournament
// sessions fire AutoSubmitBuffer early; quiz sessions run to the deadline.
// Returns true when the ticker should stop.
func (c *SessionController) tick() bool {
	c.mu.Lock()
	if c.state != domain.StateInProgress {
		c.mu.Unlock()
		return true
	}
	var buffer time.Duration
	if c.sess.TournamentID > 0 {
		buffer = c.opts.AutoSubmitBuffer
	}
	remaining := c.sess.TimeLimit - c.now().Sub(c.startedAt)
	fire := remaining <= buffer && !c.autoFired && !c.finishing
	if fire {
		c.autoFired = true
	}
	c.mu.Unlock()

	if fire {
		go func() {
			if _, err := c.FinishAndSubmit(context.Background()); err != nil {
				log.Printf("auto-submit failed: %v", err)
			}
		}()
		return true
	}
	return false
}

func isExpired(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "expired")
}

func resultFromStatus(st domain.SessionStatus, questionCount int) domain.Result {
	total := st.Total
	if total == 0 {
		total = questionCount
	}
	return domain.Result{
		Correct:  st.Correct,
		Total:    total,
		Passed:   total > 0 && st.Correct == total,
		Recorded: st.Recorded,
		TxHash:   st.TxHash,
		Reason:   "recovered from session status after expiry",
	}
}
