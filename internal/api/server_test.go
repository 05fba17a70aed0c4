package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/ai"
	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/store"
)

const body = `{
  "session_id": "alice",
  "options": [{"id": "stay", "label": "Stay"}, {"id": "switch", "label": "Switch employer"}],
  "signals": [
    {"option": "stay", "metric": "salary", "value": "100"},
    {"option_id": "switch", "dimension": "salary", "value": 150, "confidence": 0.9}
  ]
}`

func newTestServer(t *testing.T, deps Deps, cfg Config) (*Server, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if deps.Decider == nil {
		session, err := decision.New(decision.DefaultConfig(), zap.NewNop())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		deps.Decider = session
	}
	if deps.Store == nil {
		st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		deps.Store = st
	}
	deps.Logger = zap.NewNop()

	return NewServer(cfg, deps), deps.Store
}

func do(s *Server, method, path, payload string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if payload != "" {
		reader = bytes.NewReader([]byte(payload))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestCreateDecisionAndRead(t *testing.T) {
	s, _ := newTestServer(t, Deps{Narrator: ai.TemplateNarrator{}}, Config{})

	rec := do(s, http.MethodPost, "/v1/decisions?narrate=true", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}

	var resp decisionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RecordID == "" || resp.SessionID != "alice" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Outcome.Result.ChosenOption != "switch" {
		t.Fatalf("expected switch, got %s", resp.Outcome.Result.ChosenOption)
	}
	if !strings.Contains(resp.Narrative, "Recommended: Switch employer (switch)") {
		t.Fatalf("unexpected narrative %q", resp.Narrative)
	}

	rec = do(s, http.MethodGet, "/v1/sessions/alice", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), resp.RecordID) {
		t.Fatalf("unexpected session response %d: %s", rec.Code, rec.Body.String())
	}

	do(s, http.MethodPost, "/v1/decisions", body, nil)
	rec = do(s, http.MethodGet, "/v1/sessions/alice/history?limit=1", "", nil)
	var history struct {
		Records []store.Record `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(history.Records) != 1 {
		t.Fatalf("limit not applied: %d records", len(history.Records))
	}

	rec = do(s, http.MethodGet, "/v1/sessions", "", nil)
	if !strings.Contains(rec.Body.String(), `"alice"`) {
		t.Fatalf("unexpected sessions %s", rec.Body.String())
	}
}

func TestCreateDecisionAssignsSession(t *testing.T) {
	s, st := newTestServer(t, Deps{}, Config{})

	rec := do(s, http.MethodPost, "/v1/decisions", strings.Replace(body, `"session_id": "alice",`, "", 1), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp decisionResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionID == "" || resp.Narrative != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, err := st.Load(context.Background(), resp.SessionID); err != nil {
		t.Fatalf("generated session not stored: %v", err)
	}
}

type failingDecider struct{ err error }

func (f failingDecider) Decide(context.Context, decision.Request) (*decision.Outcome, error) {
	return nil, f.err
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		deps    Deps
		method  string
		path    string
		payload string
		status  int
		field   string
	}{
		{name: "broken json", method: http.MethodPost, path: "/v1/decisions", payload: "{", status: http.StatusBadRequest},
		{name: "unknown option", method: http.MethodPost, path: "/v1/decisions", payload: `{"options":[{"id":"a"}],"signals":[{"option":"b","metric":"salary","value":1}]}`, status: http.StatusBadRequest, field: "signals[0].option_id"},
		{name: "undecodable signal", method: http.MethodPost, path: "/v1/decisions", payload: `{"options":[{"id":"a"}],"signals":[{"metric":"salary","value":1}]}`, status: http.StatusBadRequest, field: "signals[0].option_id"},
		{name: "unsolvable", deps: Deps{Decider: failingDecider{err: errdefs.ErrUnsolvableExactly}}, method: http.MethodPost, path: "/v1/decisions", payload: body, status: http.StatusUnprocessableEntity},
		{name: "internal", deps: Deps{Decider: failingDecider{err: errors.New("boom")}}, method: http.MethodPost, path: "/v1/decisions", payload: body, status: http.StatusInternalServerError},
		{name: "screen rejects", deps: Deps{Screen: func(context.Context, decision.Request) (*decision.Request, error) {
			return nil, errdefs.NewConfiguration("filtering.min-confidence", "bad")
		}}, method: http.MethodPost, path: "/v1/decisions", payload: body, status: http.StatusBadRequest, field: "filtering.min-confidence"},
		{name: "unknown session", method: http.MethodGet, path: "/v1/sessions/nobody", status: http.StatusNotFound},
		{name: "bad limit", method: http.MethodGet, path: "/v1/sessions/a/history?limit=x", status: http.StatusBadRequest, field: "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.deps, Config{})
			rec := do(s, tt.method, tt.path, tt.payload, nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.field != "" {
				var resp map[string]any
				_ = json.Unmarshal(rec.Body.Bytes(), &resp)
				if resp["field"] != tt.field {
					t.Fatalf("expected field %q, got %v", tt.field, resp["field"])
				}
			}
		})
	}
}

func TestScreenRunsBeforeDecide(t *testing.T) {
	var screened bool
	s, _ := newTestServer(t, Deps{Screen: func(_ context.Context, req decision.Request) (*decision.Request, error) {
		screened = true
		req.Options = req.Options[:1]
		req.Signals = req.Signals[:1]
		return &req, nil
	}}, Config{})

	rec := do(s, http.MethodPost, "/v1/decisions", body, nil)
	if rec.Code != http.StatusOK || !screened {
		t.Fatalf("expected screened decision, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"chosen_option":"stay"`) {
		t.Fatalf("screened option set not used: %s", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, Deps{JWTSecret: "secret"}, Config{})

	if rec := do(s, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", rec.Code)
	}

	token, err := IssueToken("secret", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	expired, _ := IssueToken("secret", "alice", -time.Hour)
	foreign, _ := IssueToken("other", "alice", time.Hour)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + foreign, status: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			if rec := do(s, http.MethodGet, "/v1/sessions", "", headers); rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, Deps{}, Config{Rate: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		if rec := do(s, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := do(s, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRequestIDIsReused(t *testing.T) {
	s, _ := newTestServer(t, Deps{}, Config{})
	rec := do(s, http.MethodGet, "/healthz", "", map[string]string{"X-Request-ID": "abc"})
	if rec.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("request id not reused: %q", rec.Header().Get("X-Request-ID"))
	}
}
