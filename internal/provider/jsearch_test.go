package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/market"
)

func TestJSearchFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-RapidAPI-Key") != "key" || r.Header.Get("X-RapidAPI-Host") != jsearchHost {
			t.Errorf("missing rapidapi headers: %v", r.Header)
		}
		if r.URL.Query().Get("num_pages") != "1" {
			t.Errorf("unexpected num_pages %q", r.URL.Query().Get("num_pages"))
		}

		var data []map[string]any
		if r.URL.Query().Get("query") == "platform engineer" {
			data = []map[string]any{
				{"job_title": "Platform engineer", "job_is_remote": true, "job_min_salary": 100000, "job_max_salary": 140000, "job_salary_currency": "USD", "job_salary_period": "YEAR"},
				{"job_title": "SRE", "job_is_remote": false, "job_min_salary": 50, "job_max_salary": 70, "job_salary_currency": "USD", "job_salary_period": "HOUR"},
				{"job_title": "DevOps", "job_is_remote": true},
				{"job_title": "Cloud engineer", "job_is_remote": false, "job_min_salary": nil, "job_max_salary": nil},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "OK", "data": data})
	}))
	defer srv.Close()

	js, err := NewJSearch(JSearchConfig{APIKey: "key", BaseURL: srv.URL, Rate: 1000}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	signals, err := js.Fetch(context.Background(), Query{Options: []market.Option{
		{ID: "platform", Query: "platform engineer"},
		{ID: "cobol", Query: "cobol"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byDim := make(map[string]market.Signal)
	for _, s := range signals {
		if s.OptionID != "platform" {
			t.Fatalf("option without listings must produce no signals, got %+v", s)
		}
		byDim[s.Dimension] = s
	}

	if got := byDim[market.DimensionDemand].Value; got != 4 {
		t.Fatalf("expected demand 4, got %v", got)
	}
	if got := byDim[DimensionRemote].Value; got != 0.5 {
		t.Fatalf("expected remote share 0.5, got %v", got)
	}
	// (120000 + 60*2080) / 2
	if got := byDim[market.DimensionSalary].Value; got != 122400 {
		t.Fatalf("expected mean salary 122400, got %v", got)
	}
	if got := byDim[market.DimensionSalary].Confidence; got != 0.3 {
		t.Fatalf("expected salary confidence 0.3, got %v", got)
	}
}

func TestJSearchErrors(t *testing.T) {
	if _, err := NewJSearch(JSearchConfig{}, zap.NewNop()); err == nil {
		t.Fatalf("expected error without api key")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	js, err := NewJSearch(JSearchConfig{APIKey: "key", BaseURL: srv.URL, Rate: 1000}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := js.Fetch(context.Background(), Query{Options: options("go")}); err == nil {
		t.Fatalf("expected error on bad status")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := js.Fetch(ctx, Query{Options: options("go")}); err == nil {
		t.Fatalf("expected error for a cancelled context")
	}
}
