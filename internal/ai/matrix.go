package ai

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/payoff"
	"github.com/spigell/career-minimax/internal/utils"
)

//go:embed prompts/career_matrix.md
var careerMatrixPrompt string

// Criteria scored by the LLM, in payoff column order. All are
// higher-is-better; education_barrier is phrased as ease of entry.
var Criteria = []string{
	"salary_potential",
	"job_security",
	"growth_opportunity",
	"work_life_balance",
	"skill_transferability",
	"market_demand",
	"education_barrier",
	"remote_flexibility",
}

const (
	missingScore      = 5
	defaultConfidence = 0.8
	sourceLLM         = "llm"
)

var (
	matrixBlock = regexp.MustCompile(`(?is)CAREER_MATRIX:\s*` + "```" + `(?:json)?\s*(.*?)\s*` + "```")
	jsonBlock   = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
)

// Career is one scored option. Scores always hold every criterion.
type Career struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Scores map[string]float64 `json:"scores"`
}

// CareerMatrix is the parsed CAREER_MATRIX block, careers sorted by name.
// Source tells whether the scores came from the block or were guessed from
// careers named in prose.
type CareerMatrix struct {
	Careers []Career            `json:"careers"`
	Weights payoff.WeightVector `json:"criteria_weights,omitempty"`
	Source  string              `json:"source"`
}

// ParseCareerMatrix extracts the CAREER_MATRIX block from an LLM answer. A
// plain json block with a careers key is accepted too. Missing criteria
// score 5. Without any block the careers named in the text are scored with
// rough defaults; an answer naming none is a DataError.
func ParseCareerMatrix(text string) (*CareerMatrix, error) {
	var raw string
	if m := matrixBlock.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else if m := jsonBlock.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else if mentioned := careersFromMentions(text); mentioned != nil {
		return mentioned, nil
	} else {
		return nil, errdefs.NewData("career_matrix", "no CAREER_MATRIX block found and no career mentioned")
	}

	var payload struct {
		Careers map[string]map[string]any `json:"careers"`
		Weights map[string]any            `json:"criteria_weights"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, errdefs.NewData("career_matrix", "decode json: %v", err)
	}
	if len(payload.Careers) == 0 {
		return nil, errdefs.NewData("career_matrix.careers", "no careers listed")
	}

	names := make([]string, 0, len(payload.Careers))
	for n := range payload.Careers {
		names = append(names, n)
	}
	sort.Strings(names)

	out := &CareerMatrix{Source: sourceLLM}
	used := make(map[string]int)
	for _, n := range names {
		scores := make(map[string]float64, len(Criteria))
		for _, c := range Criteria {
			scores[c] = missingScore
			if v, ok := coerceFloat(payload.Careers[n][c]); ok {
				scores[c] = v
			}
		}

		id := slug(n)
		used[id]++
		if used[id] > 1 {
			id = fmt.Sprintf("%s_%d", id, used[id])
		}

		out.Careers = append(out.Careers, Career{ID: id, Name: strings.TrimSpace(n), Scores: scores})
	}

	if len(payload.Weights) > 0 {
		out.Weights = make(payoff.WeightVector, len(payload.Weights))
		for k, v := range payload.Weights {
			if f, ok := coerceFloat(v); ok {
				out.Weights[k] = f
			}
		}
	}

	return out, nil
}

// Options returns the careers as decision options.
func (m *CareerMatrix) Options() []market.Option {
	out := make([]market.Option, len(m.Careers))
	for i, c := range m.Careers {
		out[i] = market.Option{ID: c.ID, Label: c.Name}
	}
	return out
}

// Request converts the matrix into baseline signals for the engine. The
// scores become dimensions and the criteria weights become the weight vector;
// without criteria weights every criterion counts the same. A confidence
// outside (0,1] is replaced by the default for the matrix source.
func (m *CareerMatrix) Request(sessionID string, confidence float64) decision.Request {
	source := m.Source
	if source == "" {
		source = sourceLLM
	}
	if confidence <= 0 || confidence > 1 {
		confidence = defaultConfidence
		if source == sourceLLMMentions {
			confidence = mentionConfidence
		}
	}

	weights := m.Weights.Clone()
	if len(weights) == 0 {
		weights = make(payoff.WeightVector, len(Criteria))
		for _, c := range Criteria {
			weights[c] = 1
		}
	}

	req := decision.Request{
		SessionID: sessionID,
		Options:   m.Options(),
		Weights:   weights,
	}
	for _, c := range m.Careers {
		for _, crit := range Criteria {
			req.Signals = append(req.Signals, market.Signal{
				OptionID:   c.ID,
				Dimension:  crit,
				Value:      c.Scores[crit],
				Unit:       "score[1,10]",
				Source:     source,
				Confidence: confidence,
			})
		}
	}
	return req
}

// Matrix treats every criterion as a market scenario, so the maximin pick is
// the career with the best worst criterion.
func (m *CareerMatrix) Matrix() (*payoff.Matrix, error) {
	scenarios := make([]market.Scenario, len(Criteria))
	for j, c := range Criteria {
		scenarios[j] = market.Scenario{ID: c, Label: criterionLabel(c)}
	}

	payoffs := make([][]float64, len(m.Careers))
	for i, c := range m.Careers {
		payoffs[i] = make([]float64, len(Criteria))
		for j, crit := range Criteria {
			payoffs[i][j] = c.Scores[crit]
		}
	}

	return payoff.NewMatrix(m.Options(), scenarios, payoffs)
}

func criterionLabel(c string) string {
	words := strings.Split(c, "_")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func slug(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "career"
	}
	return out
}

func coerceFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Extractor asks a generator for a CAREER_MATRIX answer and parses it.
type Extractor struct {
	generator Generator
	logger    *zap.Logger
	maxLogLen int
}

func NewExtractor(generator Generator, provider string, log *zap.Logger, maxLogLength int) *Extractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Extractor{
		generator: generator,
		logger:    logger.WithCommonFields(log, provider, generator.Model()),
		maxLogLen: maxLogLength,
	}
}

func (e *Extractor) Extract(ctx context.Context, question string) (*CareerMatrix, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errdefs.NewData("question", "question must not be empty")
	}

	e.logger.Debug("career matrix request", zap.String("question", utils.TruncateForLog(question, e.maxLogLen)))

	raw, err := e.generator.GenerateContent(ctx, careerMatrixPrompt, question)
	if err != nil {
		return nil, fmt.Errorf("generate career matrix: %w", err)
	}

	e.logger.Debug("career matrix response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	m, err := ParseCareerMatrix(raw)
	if err != nil {
		return nil, err
	}

	if m.Source == sourceLLMMentions {
		e.logger.Warn("no CAREER_MATRIX block in the answer, scoring mentioned careers with defaults",
			zap.Int("careers", len(m.Careers)),
		)
	}
	e.logger.Info("career matrix extracted", zap.Int("careers", len(m.Careers)), zap.String("source", m.Source))
	return m, nil
}
