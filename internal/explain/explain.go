// Package explain turns builder metadata and a solver result into a ranked,
// serializable breakdown for chat, chart and export collaborators.
package explain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/spigell/career-minimax/internal/game"
	"github.com/spigell/career-minimax/internal/payoff"
)

const neutralTolerance = 1e-12

// Direction is the sign of a factor's contribution.
type Direction string

const (
	Raises  Direction = "raises"
	Lowers  Direction = "lowers"
	Neutral Direction = "neutral"
)

// Factor is one dimension's push on an option's expected payoff.
type Factor struct {
	Dimension    string    `json:"dimension"`
	Contribution float64   `json:"contribution"`
	Magnitude    float64   `json:"magnitude"`
	Direction    Direction `json:"direction"`
}

// Breakdown lists the ranked factors of an option played with positive
// probability.
type Breakdown struct {
	OptionID    string   `json:"option_id"`
	Label       string   `json:"label,omitempty"`
	Probability float64  `json:"probability"`
	Factors     []Factor `json:"factors"`
}

// Ranking compares every option across all scenarios.
type Ranking struct {
	OptionID    string    `json:"option_id"`
	Label       string    `json:"label,omitempty"`
	Worst       float64   `json:"worst_case"`
	Best        float64   `json:"best_case"`
	Average     float64   `json:"average"`
	Total       float64   `json:"total"`
	Probability float64   `json:"probability"`
	Payoffs     []float64 `json:"payoffs"`
	Eliminated  bool      `json:"eliminated"`
}

// Explanation is the structured rationale of a decision.
type Explanation struct {
	ChosenOption   string                      `json:"chosen_option"`
	ChosenLabel    string                      `json:"chosen_label,omitempty"`
	Mode           payoff.Mode                 `json:"mode"`
	Kind           game.Kind                   `json:"kind"`
	Method         game.Method                 `json:"method"`
	Exact          bool                        `json:"exact"`
	BudgetExceeded bool                        `json:"budget_exceeded"`
	Value          float64                     `json:"value"`
	MarketValue    float64                     `json:"market_value"`
	MarketResponse string                      `json:"market_response"`
	Scenarios      []string                    `json:"scenarios"`
	Breakdown      []Breakdown                 `json:"breakdown"`
	Rankings       []Ranking                   `json:"rankings"`
	Eliminations   []game.Elimination          `json:"eliminations,omitempty"`
	Defaults       []payoff.DefaultApplication `json:"defaults,omitempty"`
	Notes          []string                    `json:"notes,omitempty"`
}

// Explain reads the recorded contributions and matrix cells; it never
// recomputes payoffs from signals and has no side effects.
func Explain(m *payoff.Matrix, meta *payoff.Metadata, res *game.Result) *Explanation {
	options := m.Options()
	scenarios := m.Scenarios()

	labels := make(map[string]string, len(options))
	for _, o := range options {
		labels[o.ID] = o.Label
	}

	exp := &Explanation{
		ChosenOption:   res.ChosenOption,
		ChosenLabel:    labels[res.ChosenOption],
		Mode:           res.Mode,
		Kind:           res.Kind,
		Method:         res.Method,
		Exact:          res.Exact,
		BudgetExceeded: res.BudgetExceeded,
		Value:          res.Value,
		MarketValue:    res.MarketValue,
		MarketResponse: res.MarketResponse,
		Eliminations:   append([]game.Elimination(nil), res.Trace.Eliminations...),
		Notes:          append([]string(nil), res.Trace.Notes...),
	}
	for _, s := range scenarios {
		exp.Scenarios = append(exp.Scenarios, s.ID)
	}
	if meta != nil {
		exp.Defaults = append([]payoff.DefaultApplication(nil), meta.Defaults...)
		for _, d := range meta.Defaults {
			exp.Notes = append(exp.Notes, fmt.Sprintf("%s/%s/%s filled by %s (shift %+g)", d.OptionID, d.ScenarioID, d.Dimension, d.Kind, d.Shift))
		}
	}

	exp.Breakdown = breakdowns(res, meta, labels)
	exp.Rankings = rankings(m, res)

	return exp
}

func breakdowns(res *game.Result, meta *payoff.Metadata, labels map[string]string) []Breakdown {
	if meta == nil {
		return nil
	}

	byOption := make(map[string][]payoff.Contribution)
	for _, c := range meta.Contributions {
		byOption[c.OptionID] = append(byOption[c.OptionID], c)
	}

	played := make([]game.Probability, 0, len(res.Strategy))
	for _, p := range res.Strategy {
		if p.Probability > 0 {
			played = append(played, p)
		}
	}
	sort.SliceStable(played, func(i, j int) bool {
		if (played[i].ID == res.ChosenOption) != (played[j].ID == res.ChosenOption) {
			return played[i].ID == res.ChosenOption
		}
		if played[i].Probability != played[j].Probability {
			return played[i].Probability > played[j].Probability
		}
		return played[i].ID < played[j].ID
	})

	out := make([]Breakdown, 0, len(played))
	for _, p := range played {
		sums := make(map[string]float64)
		for _, c := range byOption[p.ID] {
			if q := res.MarketProbabilityOf(c.ScenarioID); q > 0 {
				sums[c.Dimension] += q * c.Deviation
			}
		}

		factors := make([]Factor, 0, len(sums))
		for dim, v := range sums {
			factors = append(factors, Factor{
				Dimension:    dim,
				Contribution: v,
				Magnitude:    math.Abs(v),
				Direction:    direction(v),
			})
		}
		sort.Slice(factors, func(i, j int) bool {
			if factors[i].Magnitude != factors[j].Magnitude {
				return factors[i].Magnitude > factors[j].Magnitude
			}
			return factors[i].Dimension < factors[j].Dimension
		})

		out = append(out, Breakdown{
			OptionID:    p.ID,
			Label:       labels[p.ID],
			Probability: p.Probability,
			Factors:     factors,
		})
	}

	return out
}

// rankings orders options by worst case, then average, then id.
func rankings(m *payoff.Matrix, res *game.Result) []Ranking {
	rows, cols := m.Dims()
	eliminated := make(map[string]bool)
	for _, e := range res.Trace.Eliminations {
		if e.Player == game.Individual {
			eliminated[e.ID] = true
		}
	}

	out := make([]Ranking, 0, rows)
	for i := 0; i < rows; i++ {
		o := m.Option(i)
		r := Ranking{
			OptionID:    o.ID,
			Label:       o.Label,
			Worst:       math.Inf(1),
			Best:        math.Inf(-1),
			Probability: res.ProbabilityOf(o.ID),
			Eliminated:  eliminated[o.ID],
			Payoffs:     make([]float64, cols),
		}
		for j := 0; j < cols; j++ {
			v := m.Payoff(i, j)
			r.Payoffs[j] = v
			r.Total += v
			r.Worst = math.Min(r.Worst, v)
			r.Best = math.Max(r.Best, v)
		}
		r.Average = r.Total / float64(cols)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Worst != out[j].Worst {
			return out[i].Worst > out[j].Worst
		}
		if out[i].Average != out[j].Average {
			return out[i].Average > out[j].Average
		}
		return out[i].OptionID < out[j].OptionID
	})

	return out
}

func direction(v float64) Direction {
	switch {
	case v > neutralTolerance:
		return Raises
	case v < -neutralTolerance:
		return Lowers
	default:
		return Neutral
	}
}

// Record returns the explanation as a generic map, the form rendering and
// export collaborators consume.
func (e *Explanation) Record() (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal explanation: %w", err)
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal explanation: %w", err)
	}

	return record, nil
}
