package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/provider"
	"github.com/spigell/career-minimax/internal/store"
)

type stubProvider struct {
	signals []market.Signal
	err     error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Fetch(context.Context, provider.Query) ([]market.Signal, error) {
	return s.signals, s.err
}

func setup(t *testing.T, p provider.Provider) (*Scheduler, store.Store, *observer.ObservedLogs) {
	t.Helper()

	session, err := decision.New(decision.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "watch.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	req := decision.Request{
		SessionID: "alice",
		Options:   []market.Option{{ID: "stay"}, {ID: "switch"}},
		Signals: []market.Signal{
			{OptionID: "stay", Dimension: market.DimensionSalary, Value: 100, Confidence: 1},
			{OptionID: "switch", Dimension: market.DimensionSalary, Value: 80, Confidence: 1},
			{OptionID: "switch", Dimension: market.DimensionDemand, Value: 5, Confidence: 1},
			{OptionID: "stay", Dimension: market.DimensionDemand, Value: 5, Confidence: 1},
		},
	}
	out, err := session.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := st.Save(context.Background(), req, out); err != nil {
		t.Fatalf("save: %v", err)
	}

	core, logs := observer.New(zap.InfoLevel)
	s := New(context.Background(), Config{}, Deps{
		Provider: p,
		Decider:  session,
		Store:    st,
		Logger:   zap.New(core),
	})
	return s, st, logs
}

func TestEvaluateDetectsChange(t *testing.T) {
	p := &stubProvider{signals: []market.Signal{
		{OptionID: "switch", Dimension: market.DimensionSalary, Value: 180, Confidence: 1, Source: "hh.ru"},
	}}
	s, st, logs := setup(t, p)

	change, err := s.Evaluate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !change.Changed() || change.Previous != "stay" || change.Current != "switch" {
		t.Fatalf("unexpected change %+v", change)
	}

	entries := logs.FilterMessage("recommendation changed").All()
	if len(entries) != 1 || entries[0].ContextMap()["previous"] != "stay" {
		t.Fatalf("expected a change log entry, got %+v", entries)
	}

	latest, err := st.Load(context.Background(), "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if latest.ID != change.RecordID {
		t.Fatalf("new outcome not stored")
	}
	if len(latest.Request.Signals) != 4 {
		t.Fatalf("fresh signals must replace stored ones by key, got %+v", latest.Request.Signals)
	}
	for _, sig := range latest.Request.Signals {
		if sig.OptionID == "switch" && sig.Dimension == market.DimensionSalary && sig.Source != "hh.ru" {
			t.Fatalf("stale salary kept: %+v", sig)
		}
	}
}

func TestEvaluateReusesSignalsWithoutData(t *testing.T) {
	s, _, logs := setup(t, &stubProvider{err: provider.ErrNoData})

	change, err := s.Evaluate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Changed() {
		t.Fatalf("unchanged signals must keep the recommendation, got %+v", change)
	}
	if logs.FilterMessage("no fresh signals, reusing stored ones").Len() != 1 {
		t.Fatalf("expected a warning about missing data")
	}
}

func TestRunNow(t *testing.T) {
	s, _, _ := setup(t, &stubProvider{err: errors.New("provider down")})

	changes, err := s.RunNow(context.Background())
	if err == nil {
		t.Fatalf("expected provider error")
	}
	if len(changes) != 0 {
		t.Fatalf("failed sessions must not report changes, got %+v", changes)
	}

	s.cfg.Sessions = []string{"nobody"}
	if _, err := s.RunNow(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	s := New(context.Background(), Config{Spec: "not a spec"}, Deps{Logger: zap.NewNop()})
	if err := s.Register(); err == nil {
		t.Fatalf("expected error for a bad spec")
	}

	s = New(context.Background(), Config{}, Deps{Logger: zap.NewNop()})
	if err := s.Register(); err != nil {
		t.Fatalf("default spec must register: %v", err)
	}
	if len(s.Cron.Entries()) != 1 {
		t.Fatalf("expected one cron entry")
	}
}
