package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/explain"
	"github.com/spigell/career-minimax/internal/game"
)

type stubGenerator struct {
	output   string
	err      error
	system   string
	messages []string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, message string) (string, error) {
	s.system = system
	s.messages = append(s.messages, message)
	return s.output, s.err
}

func (s *stubGenerator) Model() string { return "stub-1" }

const answer = "Here is my analysis.\n\nCAREER_MATRIX:\n```json\n" + `{
  "careers": {
    "Data Scientist": {"salary_potential": 8, "job_security": 7, "growth_opportunity": 9, "work_life_balance": 6,
      "skill_transferability": 8, "market_demand": 9, "education_barrier": 4, "remote_flexibility": 8},
    "UX Designer": {"salary_potential": "6", "job_security": 6, "growth_opportunity": 7},
    "Backend Engineer": {"salary_potential": 8, "job_security": 8, "growth_opportunity": 8, "work_life_balance": 6,
      "skill_transferability": 9, "market_demand": 9, "education_barrier": 6, "remote_flexibility": 9}
  },
  "criteria_weights": {"salary_potential": 0.5, "market_demand": 0.5}
}` + "\n```\n"

func TestParseCareerMatrix(t *testing.T) {
	m, err := ParseCareerMatrix(answer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(m.Careers) != 3 {
		t.Fatalf("expected 3 careers, got %d", len(m.Careers))
	}
	wantIDs := []string{"backend_engineer", "data_scientist", "ux_designer"}
	for i, c := range m.Careers {
		if c.ID != wantIDs[i] {
			t.Fatalf("career %d: expected id %s, got %s", i, wantIDs[i], c.ID)
		}
		if len(c.Scores) != len(Criteria) {
			t.Fatalf("career %s must hold every criterion, got %v", c.ID, c.Scores)
		}
	}

	ux := m.Careers[2]
	if ux.Scores["salary_potential"] != 6 {
		t.Fatalf("numeric strings must be accepted, got %v", ux.Scores["salary_potential"])
	}
	if ux.Scores["remote_flexibility"] != 5 {
		t.Fatalf("missing criteria must score 5, got %v", ux.Scores["remote_flexibility"])
	}
	if m.Weights["market_demand"] != 0.5 {
		t.Fatalf("unexpected weights %v", m.Weights)
	}
}

func TestParseCareerMatrixFallbacksAndErrors(t *testing.T) {
	plain := "```json\n{\"careers\": {\"Nurse\": {\"job_security\": 9}}}\n```"
	m, err := ParseCareerMatrix(plain)
	if err != nil {
		t.Fatalf("plain json block should parse: %v", err)
	}
	if len(m.Careers) != 1 || m.Careers[0].ID != "nurse" {
		t.Fatalf("unexpected careers %+v", m.Careers)
	}
	if m.Source != sourceLLM {
		t.Fatalf("expected source %s, got %s", sourceLLM, m.Source)
	}

	tests := []struct {
		name  string
		text  string
		field string
	}{
		{name: "no block", text: "just prose", field: "career_matrix"},
		{name: "broken json", text: "CAREER_MATRIX:\n```json\n{oops\n```", field: "career_matrix"},
		{name: "no careers", text: "CAREER_MATRIX:\n```json\n{\"careers\": {}}\n```", field: "career_matrix.careers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCareerMatrix(tt.text)
			if !errors.Is(err, errdefs.ErrData) {
				t.Fatalf("expected data error, got %v", err)
			}
			if got := errdefs.Field(err); got != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, got)
			}
		})
	}
}

func TestParseCareerMatrixFromMentions(t *testing.T) {
	prose := "Moving from Product Manager to Data Scientist is realistic. A Software Engineer pays well, " +
		"an MBA graduate path is slower and a florist is a long shot."

	m, err := ParseCareerMatrix(prose)
	if err != nil {
		t.Fatalf("careers named in prose should parse: %v", err)
	}
	if m.Source != sourceLLMMentions {
		t.Fatalf("expected source %s, got %s", sourceLLMMentions, m.Source)
	}

	wantIDs := []string{"data_scientist", "mba", "product_manager", "software_engineer"}
	if len(m.Careers) != len(wantIDs) {
		t.Fatalf("expected %v, got %+v", wantIDs, m.Careers)
	}
	for i, c := range m.Careers {
		if c.ID != wantIDs[i] {
			t.Fatalf("career %d: expected id %s, got %s", i, wantIDs[i], c.ID)
		}
		if len(c.Scores) != len(Criteria) {
			t.Fatalf("career %s must hold every criterion, got %v", c.ID, c.Scores)
		}
	}

	if m.Careers[1].Name != "MBA" || m.Careers[3].Name != "Software Engineer" {
		t.Fatalf("unexpected names %q %q", m.Careers[1].Name, m.Careers[3].Name)
	}
	if se := m.Careers[3].Scores; se["salary_potential"] != 9 || se["education_barrier"] != 6 {
		t.Fatalf("software engineer must use its default vector, got %v", se)
	}
	for c, v := range m.Careers[1].Scores {
		if v != genericScore {
			t.Fatalf("unknown career must score %d everywhere, got %s=%v", genericScore, c, v)
		}
	}

	req := m.Request("mentions", 0)
	if req.Signals[0].Source != sourceLLMMentions || req.Signals[0].Confidence != mentionConfidence {
		t.Fatalf("guessed scores must be marked as such, got %+v", req.Signals[0])
	}
	if req = m.Request("mentions", 0.9); req.Signals[0].Confidence != 0.9 {
		t.Fatalf("explicit confidence must be kept, got %v", req.Signals[0].Confidence)
	}
}

func TestParseCareerMatrixMentionLimit(t *testing.T) {
	prose := "Consider: consultant, researcher, analyst, developer, designer, architect, specialist or engineer."

	m, err := ParseCareerMatrix(prose)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Careers) != maxMentionedCareers {
		t.Fatalf("expected %d careers, got %d", maxMentionedCareers, len(m.Careers))
	}
	for _, c := range m.Careers {
		if c.ID == "specialist" || c.ID == "engineer" {
			t.Fatalf("careers past the limit must be dropped, got %s", c.ID)
		}
	}
}

func TestSlugDeduplicates(t *testing.T) {
	m, err := ParseCareerMatrix("CAREER_MATRIX:\n```json\n{\"careers\": {\"Dev Ops\": {}, \"dev-ops\": {}}}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Careers[0].ID != "dev_ops" || m.Careers[1].ID != "dev_ops_2" {
		t.Fatalf("unexpected ids %s %s", m.Careers[0].ID, m.Careers[1].ID)
	}
}

func TestCareerMatrixDecides(t *testing.T) {
	m, err := ParseCareerMatrix(answer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session, err := decision.New(decision.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("criteria as scenarios", func(t *testing.T) {
		matrix, err := m.Matrix()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out, err := session.DecideMatrix(context.Background(), "llm", matrix)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// backend engineer has the best worst criterion (6).
		if out.Result.ChosenOption != "backend_engineer" || out.Result.Value != 6 {
			t.Fatalf("unexpected result %s %v", out.Result.ChosenOption, out.Result.Value)
		}
	})

	t.Run("scores as signals", func(t *testing.T) {
		req := m.Request("llm", 0)
		if len(req.Signals) != 3*len(Criteria) {
			t.Fatalf("expected %d signals, got %d", 3*len(Criteria), len(req.Signals))
		}
		if req.Signals[0].Confidence != defaultConfidence || req.Signals[0].Source != sourceLLM {
			t.Fatalf("unexpected signal %+v", req.Signals[0])
		}

		out, err := session.Decide(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Result.ChosenOption == "" {
			t.Fatalf("expected a chosen option")
		}
	})

	t.Run("equal weights without criteria weights", func(t *testing.T) {
		bare := &CareerMatrix{Careers: m.Careers}
		req := bare.Request("llm", 1)
		if len(req.Weights) != len(Criteria) {
			t.Fatalf("expected a weight per criterion, got %v", req.Weights)
		}
	})
}

func TestExtractor(t *testing.T) {
	gen := &stubGenerator{output: answer}
	ex := NewExtractor(gen, "stub", zap.NewNop(), 0)

	m, err := ex.Extract(context.Background(), "  Should I move into data science?  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Careers) != 3 {
		t.Fatalf("unexpected careers %+v", m.Careers)
	}
	if gen.messages[0] != "Should I move into data science?" {
		t.Fatalf("question must be trimmed, got %q", gen.messages[0])
	}
	if !strings.Contains(gen.system, "CAREER_MATRIX") {
		t.Fatalf("system prompt must ask for a CAREER_MATRIX block")
	}

	if _, err := ex.Extract(context.Background(), " "); !errors.Is(err, errdefs.ErrData) {
		t.Fatalf("expected data error for an empty question, got %v", err)
	}

	failing := NewExtractor(&stubGenerator{err: errors.New("quota")}, "stub", zap.NewNop(), 0)
	if _, err := failing.Extract(context.Background(), "q"); err == nil {
		t.Fatalf("expected generator error")
	}

	core, logs := observer.New(zap.WarnLevel)
	prose := NewExtractor(&stubGenerator{output: "A data scientist or an analyst role fits."}, "stub", zap.New(core), 0)
	m, err = prose.Extract(context.Background(), "q")
	if err != nil {
		t.Fatalf("prose answer should fall back to mentions: %v", err)
	}
	if m.Source != sourceLLMMentions || len(m.Careers) != 2 {
		t.Fatalf("unexpected matrix %+v", m)
	}
	if logs.FilterMessageSnippet("no CAREER_MATRIX block").Len() != 1 {
		t.Fatalf("expected a warning about the missing block, got %v", logs.All())
	}
}

func sampleExplanation() *explain.Explanation {
	return &explain.Explanation{
		ChosenOption:   "stay",
		ChosenLabel:    "Stay",
		Kind:           game.Pure,
		Method:         game.MethodSaddlePoint,
		Exact:          true,
		Value:          0.42,
		MarketResponse: "recession",
		Scenarios:      []string{"recession", "status_quo"},
		Rankings: []explain.Ranking{
			{OptionID: "stay", Label: "Stay", Worst: 0.42, Average: 0.5, Probability: 1},
			{OptionID: "switch", Worst: 0.1, Average: 0.6, Eliminated: true},
		},
		Breakdown: []explain.Breakdown{{
			OptionID: "stay",
			Factors: []explain.Factor{
				{Dimension: "salary", Contribution: 0.1, Magnitude: 0.1, Direction: explain.Raises},
			},
		}},
	}
}

func TestTemplateNarrator(t *testing.T) {
	text, err := TemplateNarrator{}.Narrate(context.Background(), sampleExplanation())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"Minimax strategy (saddle_point)",
		"across 2 scenarios",
		"- Stay (stay): worst 0.420",
		"- switch: worst 0.100, average 0.600 (dominated)",
		"Recommended: Stay (stay), guaranteed payoff 0.420, binding scenario recession",
		"- salary raises the payoff by 0.100",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("narration misses %q:\n%s", want, text)
		}
	}

	mixed := sampleExplanation()
	mixed.Kind = game.Mixed
	mixed.Method = game.MethodFictitiousPlay
	mixed.BudgetExceeded = true
	mixed.Rankings[1].Probability = 0.25
	mixed.Rankings[0].Probability = 0.75
	text, err = TemplateNarrator{}.Narrate(context.Background(), mixed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Mixed strategy (fictitious_play, approximate)", "- Stay (stay): 75%", "- switch: 25%", "best effort"} {
		if !strings.Contains(text, want) {
			t.Fatalf("narration misses %q:\n%s", want, text)
		}
	}

	if _, err := (TemplateNarrator{}).Narrate(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil explanation")
	}
}

func TestLLMNarratorFallsBack(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	n := NewLLMNarrator(&stubGenerator{err: errors.New("503")}, "stub", zap.New(core), 10)
	text, err := n.Narrate(context.Background(), sampleExplanation())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(text, "Minimax strategy") {
		t.Fatalf("expected template narration, got %q", text)
	}

	warns := logs.FilterMessage("narration failed, using template").All()
	if len(warns) != 1 {
		t.Fatalf("expected a fallback warning")
	}
	if warns[0].ContextMap()["ai_model"] != "stub-1" || warns[0].ContextMap()["ai_provider"] != "stub" {
		t.Fatalf("expected common ai fields, got %v", warns[0].ContextMap())
	}

	gen := &stubGenerator{output: " You should stay. "}
	text, err = NewLLMNarrator(gen, "stub", zap.NewNop(), 0).Narrate(context.Background(), sampleExplanation())
	if err != nil || text != "You should stay." {
		t.Fatalf("unexpected narration %q, %v", text, err)
	}
	if !strings.Contains(gen.messages[0], `"chosen_option": "stay"`) {
		t.Fatalf("explanation json must be sent, got %s", gen.messages[0])
	}
}
