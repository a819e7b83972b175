// Package backend is the typed HTTP client for the quiz game backend.
// Player identity travels in the X-Addr header on every call, matching
// what the backend's auth middleware expects.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"quiz-play-gateway/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the backend rooted at baseURL (e.g.
// "https://game.example.com/api"). The HTTP timeout is a safety net;
// per-call deadlines come from the caller's context.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type startRequest struct {
	Count        int   `json:"count,omitempty"`
	TournamentID int64 `json:"tournamentId,omitempty"`
}

type startResponse struct {
	SessionID       int64             `json:"sessionId"`
	TournamentID    int64             `json:"tournamentId"`
	TimeLimit       int               `json:"timeLimit"`
	Questions       []domain.Question `json:"questions"`
	PassesRemaining int               `json:"passesRemaining"`
}

// StartSession opens a new session. tournamentID zero uses the plain quiz
// variant; otherwise the tournament variant, which also reports the
// player's remaining passes.
func (c *Client) StartSession(ctx context.Context, address string, tournamentID int64, count int) (domain.Session, error) {
	var path string
	var req startRequest
	if tournamentID > 0 {
		path = "/tournament/session/start/"
		req.TournamentID = tournamentID
	} else {
		path = "/quiz/session/start/"
		req.Count = count
	}

	var resp startResponse
	if err := c.do(ctx, http.MethodPost, path, address, req, &resp); err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		SessionID:       resp.SessionID,
		TournamentID:    tournamentID,
		Questions:       resp.Questions,
		TimeLimit:       time.Duration(resp.TimeLimit) * time.Second,
		PassesRemaining: resp.PassesRemaining,
	}, nil
}

type answerRequest struct {
	SessionID int64           `json:"sessionId"`
	Answers   []domain.Answer `json:"answers"`
}

// SubmitAnswers records answers for a session. Both variants share the
// quiz answer endpoint; grading happens only at finish time.
func (c *Client) SubmitAnswers(ctx context.Context, address string, sessionID, _ int64, answers []domain.Answer) error {
	return c.do(ctx, http.MethodPost, "/quiz/session/answer/", address,
		answerRequest{SessionID: sessionID, Answers: answers}, nil)
}

type finishRequest struct {
	SessionID    int64 `json:"sessionId"`
	TournamentID int64 `json:"tournamentId,omitempty"`
}

// FinishSession grades and settles the session.
func (c *Client) FinishSession(ctx context.Context, address string, sessionID, tournamentID int64) (domain.Result, error) {
	path := "/quiz/session/finish/"
	if tournamentID > 0 {
		path = "/tournament/session/finish/"
	}
	var result domain.Result
	err := c.do(ctx, http.MethodPost, path, address, finishRequest{SessionID: sessionID, TournamentID: tournamentID}, &result)
	return result, err
}

type statusResponse struct {
	State       string `json:"state"`
	RemainingMs int64  `json:"remainingMs"`
	Correct     int    `json:"correct"`
	Total       int    `json:"total"`
	Recorded    bool   `json:"recorded"`
	TxHash      string `json:"txHash"`
}

// SessionStatus reads the backend's view of a session, including graded
// counts once the backend has auto-submitted an expired session.
func (c *Client) SessionStatus(ctx context.Context, address string, sessionID, tournamentID int64) (domain.SessionStatus, error) {
	prefix := "/quiz/session/status/"
	if tournamentID > 0 {
		prefix = "/tournament/session/status/"
	}
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, prefix+strconv.FormatInt(sessionID, 10)+"/", address, nil, &resp); err != nil {
		return domain.SessionStatus{}, err
	}
	return domain.SessionStatus{
		State:     resp.State,
		Remaining: time.Duration(resp.RemainingMs) * time.Millisecond,
		Correct:   resp.Correct,
		Total:     resp.Total,
		Recorded:  resp.Recorded,
		TxHash:    resp.TxHash,
	}, nil
}

type creditsResponse struct {
	Credits int `json:"credits"`
}

// Credits fetches the authoritative credit balance for an address.
func (c *Client) Credits(ctx context.Context, address string) (int, error) {
	var resp creditsResponse
	if err := c.do(ctx, http.MethodGet, "/quiz/user/?address="+address, address, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Credits, nil
}

type settlementResponse struct {
	TxHash string `json:"tx_hash"`
}

// SettlementStatus reports the payout transaction for a session, if the
// relayer has sent it yet.
func (c *Client) SettlementStatus(ctx context.Context, address string, sessionID int64) (domain.Settlement, error) {
	path := fmt.Sprintf("/settlement/status/?session=%d&addr=%s", sessionID, address)
	var resp settlementResponse
	if err := c.do(ctx, http.MethodGet, path, address, nil, &resp); err != nil {
		return domain.Settlement{}, err
	}
	return domain.Settlement{TxHash: resp.TxHash}, nil
}

type tournamentInfoResponse struct {
	ID                  int64  `json:"id"`
	RegistrationEndTime int64  `json:"registrationEndTime"`
	StartTime           int64  `json:"startTime"`
	EndTime             int64  `json:"endTime"`
	QuestionsPerSession int    `json:"questionsPerSession"`
	TimePerQuestion     int    `json:"timePerQuestion"`
	EntryFee            string `json:"entryFee"`
}

// TournamentInfo fetches tournament metadata.
func (c *Client) TournamentInfo(ctx context.Context, tournamentID int64) (domain.TournamentInfo, error) {
	var resp tournamentInfoResponse
	path := fmt.Sprintf("/tournament/%d/info/", tournamentID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return domain.TournamentInfo{}, err
	}
	return domain.TournamentInfo{
		ID:                  resp.ID,
		RegistrationEndTime: time.Unix(resp.RegistrationEndTime, 0),
		StartTime:           time.Unix(resp.StartTime, 0),
		EndTime:             time.Unix(resp.EndTime, 0),
		QuestionsPerSession: resp.QuestionsPerSession,
		TimePerQuestion:     resp.TimePerQuestion,
		EntryFeeWei:         resp.EntryFee,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, address string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if address != "" {
		req.Header.Set("X-Addr", address)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindNetwork, method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorBody(resp.Body)
		if msg == "" {
			msg = resp.Status
		}
		kind := domain.KindNetwork
		if resp.StatusCode < 500 {
			// 4xx responses carry a definitive rejection; retrying them
			// only burns the attempt budget.
			kind = domain.KindBackendRejected
		}
		return domain.E(kind, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Wrap(domain.KindNetwork, "decode response", err)
	}
	return nil
}

// readErrorBody extracts {"error": "..."} bodies, falling back to raw text.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(data)
}
