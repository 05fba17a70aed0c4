package game

import (
	"fmt"

	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/payoff"
)

// Kind tells whether the recommended strategy is deterministic.
type Kind string

const (
	Pure  Kind = "pure"
	Mixed Kind = "mixed"
)

// Method names the procedure that produced a result.
type Method string

const (
	MethodSaddlePoint    Method = "saddle_point"
	MethodMixed2x2       Method = "mixed_2x2"
	MethodFictitiousPlay Method = "fictitious_play"
	MethodPureNash       Method = "pure_nash"
	MethodSecurityLevel  Method = "security_level"
)

// Player identifies a side of the game.
type Player string

const (
	Individual Player = "individual"
	Market     Player = "market"
)

// Probability is the weight of one pure strategy in a distribution.
type Probability struct {
	ID          string  `json:"id"`
	Probability float64 `json:"probability"`
}

// Elimination records a strategy removed by strict dominance.
type Elimination struct {
	Player      Player `json:"player"`
	ID          string `json:"id"`
	DominatedBy string `json:"dominated_by"`
	Round       int    `json:"round"`
}

// Security summarizes one remaining option against the remaining scenarios.
type Security struct {
	OptionID      string  `json:"option_id"`
	Worst         float64 `json:"worst"`
	Average       float64 `json:"average"`
	WorstScenario string  `json:"worst_scenario"`
}

// Equilibrium is a pure-strategy Nash equilibrium cell.
type Equilibrium struct {
	OptionID   string  `json:"option_id"`
	ScenarioID string  `json:"scenario_id"`
	Individual float64 `json:"individual"`
	Market     float64 `json:"market"`
}

// Trace explains how the solver reached its result.
type Trace struct {
	Eliminations     []Elimination `json:"eliminations,omitempty"`
	ReducedOptions   []string      `json:"reduced_options"`
	ReducedScenarios []string      `json:"reduced_scenarios"`
	Security         []Security    `json:"security"`
	Maximin          float64       `json:"maximin"`
	Minimax          float64       `json:"minimax,omitempty"`
	Saddle           bool          `json:"saddle"`
	Equilibria       []Equilibrium `json:"equilibria,omitempty"`
	Iterations       int           `json:"iterations,omitempty"`
	Gap              float64       `json:"gap,omitempty"`
	Notes            []string      `json:"notes,omitempty"`
}

// Result is the solved game.
type Result struct {
	Mode   payoff.Mode `json:"mode"`
	Kind   Kind        `json:"kind"`
	Exact  bool        `json:"exact"`
	Method Method      `json:"method"`
	// Value is the payoff the Individual's strategy guarantees.
	Value float64 `json:"value"`
	// MarketValue is the Market-side minimax in zero-sum games and the
	// Market's equilibrium payoff in general-sum games.
	MarketValue    float64       `json:"market_value"`
	ChosenOption   string        `json:"chosen_option"`
	MarketResponse string        `json:"market_response"`
	Strategy       []Probability `json:"strategy"`
	MarketStrategy []Probability `json:"market_strategy"`
	BudgetExceeded bool          `json:"budget_exceeded"`
	Trace          Trace         `json:"trace"`
}

// Warning returns ErrBudgetExceeded when the approximate solver stopped at
// its iteration, time or cancellation cap. The result is still usable.
func (r *Result) Warning() error {
	if r == nil || !r.BudgetExceeded {
		return nil
	}
	return fmt.Errorf("%w after %d iterations (gap %.6f)", errdefs.ErrBudgetExceeded, r.Trace.Iterations, r.Trace.Gap)
}

// ProbabilityOf returns the Individual's probability for option id.
func (r *Result) ProbabilityOf(id string) float64 {
	for _, p := range r.Strategy {
		if p.ID == id {
			return p.Probability
		}
	}
	return 0
}

// MarketProbabilityOf returns the Market's probability for scenario id.
func (r *Result) MarketProbabilityOf(id string) float64 {
	for _, p := range r.MarketStrategy {
		if p.ID == id {
			return p.Probability
		}
	}
	return 0
}
