package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/game"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/payoff"
)

func sampleRequest() Request {
	return Request{
		SessionID: "session-1",
		Options: []market.Option{
			{ID: "backend", Label: "Backend engineer"},
			{ID: "data", Label: "Data scientist"},
			{ID: "pm", Label: "Product manager"},
		},
		Scenarios: []market.Scenario{
			{ID: "status_quo"},
			{ID: "recession", DefaultShift: -0.1},
			{ID: "ai_spike", DefaultShift: 0.05},
		},
		Signals: []market.Signal{
			{OptionID: "backend", Dimension: market.DimensionSalary, Value: 140000, Confidence: 1, Source: "corpus"},
			{OptionID: "data", Dimension: market.DimensionSalary, Value: 150000, Confidence: 0.9, Source: "corpus"},
			{OptionID: "pm", Dimension: market.DimensionSalary, Value: 130000, Confidence: 1, Source: "corpus"},
			{OptionID: "backend", Dimension: market.DimensionDemand, Value: 800, Confidence: 1},
			{OptionID: "data", Dimension: market.DimensionDemand, Value: 500, Confidence: 1},
			{OptionID: "pm", Dimension: market.DimensionDemand, Value: 300, Confidence: 1},
			{OptionID: "backend", ScenarioID: "recession", Dimension: market.DimensionDemand, Value: 200, Confidence: 1},
			{OptionID: "data", ScenarioID: "ai_spike", Dimension: market.DimensionDemand, Value: 1200, Confidence: 1},
			{OptionID: "pm", ScenarioID: "recession", Dimension: market.DimensionDemand, Value: 250, Confidence: 1},
		},
		Weights: payoff.WeightVector{market.DimensionSalary: 1, market.DimensionDemand: 2},
	}
}

func newSession(t *testing.T, cfg Config, log *zap.Logger) *Session {
	t.Helper()

	s, err := New(cfg, log)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestDecideIsDeterministic(t *testing.T) {
	s := newSession(t, DefaultConfig(), zap.NewNop())

	first, err := s.Decide(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.Decide(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("expected byte-identical outcomes\nfirst:  %s\nsecond: %s", a, b)
	}
}

func TestDecideProducesCompleteOutcome(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	s := newSession(t, DefaultConfig(), zap.New(core))

	out, err := s.Decide(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.Matrix.Individual) != 3 || len(out.Matrix.Individual[0]) != 3 {
		t.Fatalf("expected a full 3x3 matrix, got %v", out.Matrix.Individual)
	}
	if out.Result.ChosenOption == "" || out.Explanation.ChosenOption != out.Result.ChosenOption {
		t.Fatalf("explanation must describe the chosen option")
	}
	if len(out.Explanation.Defaults) == 0 {
		t.Fatalf("baseline salary signals must be reported as default applications")
	}
	if len(out.Explanation.Rankings) != 3 {
		t.Fatalf("expected every option ranked, got %d", len(out.Explanation.Rankings))
	}

	entries := observed.FilterMessage("decision made").All()
	if len(entries) != 1 {
		t.Fatalf("expected one decision log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()[logger.FieldSession]; got != "session-1" {
		t.Fatalf("expected session id in log, got %v", got)
	}
}

func TestDecideDefaults(t *testing.T) {
	s := newSession(t, DefaultConfig(), zap.NewNop())

	req := sampleRequest()
	req.Scenarios = nil
	req.Weights = nil
	req.Signals = req.Signals[:6]

	out, err := s.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(out.Matrix.Scenarios); got != len(DefaultConfig().DefaultScenarios) {
		t.Fatalf("expected default scenarios, got %d", got)
	}
	if w := out.Metadata.Weights[market.DimensionSalary]; w < 0.2999 || w > 0.3001 {
		t.Fatalf("expected default weights, got %v", out.Metadata.Weights)
	}
}

func TestDecideErrors(t *testing.T) {
	s := newSession(t, DefaultConfig(), zap.NewNop())

	tests := []struct {
		name     string
		mutate   func(*Request)
		sentinel error
		field    string
	}{
		{
			name: "all zero weights",
			mutate: func(r *Request) {
				r.Weights = payoff.WeightVector{market.DimensionSalary: 0, market.DimensionDemand: 0}
			},
			sentinel: errdefs.ErrConfiguration,
			field:    "weights",
		},
		{
			name:     "no options",
			mutate:   func(r *Request) { r.Options = nil },
			sentinel: errdefs.ErrData,
			field:    "options",
		},
		{
			name: "signal for unknown option",
			mutate: func(r *Request) {
				r.Signals = append(r.Signals, market.Signal{OptionID: "chef", Dimension: market.DimensionDemand, Value: 1, Confidence: 1})
			},
			sentinel: errdefs.ErrData,
			field:    "signals[9].option_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := sampleRequest()
			tt.mutate(&req)

			out, err := s.Decide(context.Background(), req)
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %v, got %v", tt.sentinel, err)
			}
			if errdefs.Field(err) != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, errdefs.Field(err))
			}
			if out != nil {
				t.Fatalf("expected no partial outcome")
			}
		})
	}
}

func TestDecideGeneralSum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = string(payoff.GeneralSum)
	cfg.MarketWeights = payoff.WeightVector{market.DimensionDemand: 1}
	s := newSession(t, cfg, zap.NewNop())

	signal := func(option, scenario, dim string, value float64) market.Signal {
		return market.Signal{OptionID: option, ScenarioID: scenario, Dimension: dim, Value: value, Confidence: 1}
	}
	req := Request{
		SessionID: "general",
		Options:   []market.Option{{ID: "a"}, {ID: "b"}},
		Scenarios: []market.Scenario{{ID: "x"}, {ID: "y"}},
		Weights:   payoff.WeightVector{market.DimensionSalary: 1},
		// Individual [[1 0] [0 0.5]], Market [[1 0] [0 1]]: (a,x) and (b,y)
		// are both equilibria and (a,x) pays the Individual more.
		Signals: []market.Signal{
			signal("a", "x", market.DimensionSalary, 100),
			signal("a", "y", market.DimensionSalary, 0),
			signal("b", "x", market.DimensionSalary, 0),
			signal("b", "y", market.DimensionSalary, 50),
			signal("a", "x", market.DimensionDemand, 10),
			signal("a", "y", market.DimensionDemand, 0),
			signal("b", "x", market.DimensionDemand, 0),
			signal("b", "y", market.DimensionDemand, 10),
			// Not a requested scenario: must not stretch the salary range.
			signal("a", "z", market.DimensionSalary, 1000),
		},
	}

	out, err := s.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := out.Result
	if res.Mode != payoff.GeneralSum || res.Method != game.MethodPureNash || !res.Exact {
		t.Fatalf("expected exact pure nash, got mode=%s method=%s exact=%v", res.Mode, res.Method, res.Exact)
	}
	if res.ChosenOption != "a" || res.MarketResponse != "x" {
		t.Fatalf("expected a/x, got %s/%s", res.ChosenOption, res.MarketResponse)
	}
	if res.Value != 1 || res.MarketValue != 1 {
		t.Fatalf("expected values 1/1, got %v/%v", res.Value, res.MarketValue)
	}
	if len(res.Trace.Equilibria) != 2 {
		t.Fatalf("expected two equilibria, got %+v", res.Trace.Equilibria)
	}
}

func TestDecideMatrix(t *testing.T) {
	s := newSession(t, DefaultConfig(), zap.NewNop())

	m, err := payoff.NewMatrix(
		[]market.Option{{ID: "a"}, {ID: "b"}},
		[]market.Scenario{{ID: "x"}, {ID: "y"}},
		[][]float64{{5, 5}, {5, 5}},
	)
	if err != nil {
		t.Fatalf("new matrix: %v", err)
	}

	out, err := s.DecideMatrix(context.Background(), "direct", m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result.ChosenOption != "a" || out.Result.Value != 5 {
		t.Fatalf("expected a with value 5, got %s with %v", out.Result.ChosenOption, out.Result.Value)
	}
	if out.Metadata != nil {
		t.Fatalf("expected no builder metadata")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "cooperative" }, field: "mode"},
		{name: "negative rows", mutate: func(c *Config) { c.MaxRows = -1 }, field: "max-rows"},
		{name: "zero default weights", mutate: func(c *Config) { c.DefaultWeights = payoff.WeightVector{"demand": 0} }, field: "default-weights"},
		{name: "inverted bounds", mutate: func(c *Config) { c.Normalization.Lower = 2 }, field: "normalization.bounds"},
		{name: "bad fallback", mutate: func(c *Config) { c.Fallback = "guess" }, field: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := New(cfg, nil)
			if !errors.Is(err, errdefs.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if errdefs.Field(err) != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, errdefs.Field(err))
			}
		})
	}
}
