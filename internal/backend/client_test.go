package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quiz-play-gateway/internal/domain"
)

func TestStartSessionQuizVariant(t *testing.T) {
	var gotPath, gotAddr string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAddr = r.Header.Get("X-Addr")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sessionId": 42,
			"timeLimit": 20,
			"questions": []map[string]interface{}{
				{"order": 1, "questionId": 11, "text": "q", "options": []map[string]interface{}{{"id": 1, "text": "a"}}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	sess, err := c.StartSession(context.Background(), "0xabc", 0, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if gotPath != "/quiz/session/start/" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAddr != "0xabc" {
		t.Fatalf("expected X-Addr header, got %q", gotAddr)
	}
	if gotBody["count"] != float64(10) {
		t.Fatalf("expected count in body, got %v", gotBody)
	}
	if sess.SessionID != 42 || sess.TimeLimit != 20*time.Second || len(sess.Questions) != 1 {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestStartSessionTournamentVariant(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sessionId": 43, "timeLimit": 60, "passesRemaining": 1,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	sess, err := c.StartSession(context.Background(), "0xabc", 7, 10)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if gotPath != "/tournament/session/start/" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotBody["tournamentId"] != float64(7) {
		t.Fatalf("expected tournamentId in body, got %v", gotBody)
	}
	if sess.TournamentID != 7 || sess.PassesRemaining != 1 {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestSubmitAnswersSharesQuizEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	// The tournament variant submits through the same endpoint.
	err := c.SubmitAnswers(context.Background(), "0xabc", 43, 7, []domain.Answer{{QuestionID: 11, OptionID: 2}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotPath != "/quiz/session/answer/" {
		t.Fatalf("unexpected path %s", gotPath)
	}
}

func TestFinishSessionRoutesByVariant(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"correct": 8, "total": 10})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	if _, err := c.FinishSession(context.Background(), "0xabc", 42, 0); err != nil {
		t.Fatalf("quiz finish: %v", err)
	}
	res, err := c.FinishSession(context.Background(), "0xabc", 43, 7)
	if err != nil {
		t.Fatalf("tournament finish: %v", err)
	}
	if res.Correct != 8 || res.Total != 10 {
		t.Fatalf("unexpected result %+v", res)
	}
	if paths[0] != "/quiz/session/finish/" || paths[1] != "/tournament/session/finish/" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestSessionStatusParsesRemaining(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quiz/session/status/42/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"state": "active", "remainingMs": 12500,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	st, err := c.SessionStatus(context.Background(), "0xabc", 42, 0)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != "active" || st.Remaining != 12500*time.Millisecond {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestCreditsQueriesByAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quiz/user/" || r.URL.Query().Get("address") != "0xabc" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"credits": 3})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	n, err := c.Credits(context.Background(), "0xabc")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 credits, got %d (%v)", n, err)
	}
}

func TestSettlementStatusParsesSnakeCaseHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("session") != "42" || q.Get("addr") != "0xabc" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"tx_hash": "0xfeed"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	s, err := c.SettlementStatus(context.Background(), "0xabc", 42)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}
	if s.TxHash != "0xfeed" {
		t.Fatalf("expected tx hash, got %q", s.TxHash)
	}
}

func TestTournamentInfoParsesUnixTimes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tournament/7/info/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":                  7,
			"startTime":           1750000000,
			"endTime":             1750086400,
			"questionsPerSession": 10,
			"timePerQuestion":     6,
			"entryFee":            "1000000000000000000",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	info, err := c.TournamentInfo(context.Background(), 7)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.ID != 7 || info.QuestionsPerSession != 10 {
		t.Fatalf("unexpected info %+v", info)
	}
	if !info.StartTime.Equal(time.Unix(1750000000, 0)) {
		t.Fatalf("unexpected start time %v", info.StartTime)
	}
	if info.EntryFeeWei != "1000000000000000000" {
		t.Fatalf("unexpected entry fee %q", info.EntryFeeWei)
	}
}

func TestClientErrorKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quiz/session/start/":
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "daily limit reached"})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)

	_, err := c.StartSession(context.Background(), "0xabc", 0, 10)
	if domain.KindOf(err) != domain.KindBackendRejected {
		t.Fatalf("4xx must classify as backend rejection, got %v (%v)", domain.KindOf(err), err)
	}
	if !domain.IsPermanent(err) {
		t.Fatalf("4xx must not be retried")
	}
	if !strings.Contains(err.Error(), "daily limit reached") {
		t.Fatalf("expected server message in error, got %q", err.Error())
	}

	_, err = c.FinishSession(context.Background(), "0xabc", 42, 0)
	if domain.KindOf(err) != domain.KindNetwork {
		t.Fatalf("5xx must classify as network, got %v", domain.KindOf(err))
	}
	if domain.IsPermanent(err) {
		t.Fatalf("5xx must stay retryable")
	}
}
