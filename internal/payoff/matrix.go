package payoff

import (
	"fmt"
	"math"

	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/market"
)

// Mode selects how the Market's payoffs relate to the Individual's.
type Mode string

const (
	ZeroSum    Mode = "zero_sum"
	GeneralSum Mode = "general_sum"
)

// ParseMode accepts the configuration spelling of a mode. Empty means zero-sum.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ZeroSum:
		return ZeroSum, nil
	case GeneralSum:
		return GeneralSum, nil
	default:
		return "", errdefs.NewConfiguration("mode", "unknown mode %q", s)
	}
}

// Matrix is an immutable strategic-form game. Rows are options and columns
// are scenarios, both ordered by id.
type Matrix struct {
	mode       Mode
	options    []market.Option
	scenarios  []market.Scenario
	individual [][]float64
	market     [][]float64
}

// NewMatrix builds a zero-sum matrix from explicit payoffs; payoffs[i][j]
// belongs to options[i] and scenarios[j]. Rows and columns are re-ordered by id.
func NewMatrix(options []market.Option, scenarios []market.Scenario, payoffs [][]float64) (*Matrix, error) {
	if err := validateStrategies(options, scenarios); err != nil {
		return nil, err
	}
	if len(payoffs) != len(options) {
		return nil, errdefs.NewData("payoffs", "expected %d rows, got %d", len(options), len(payoffs))
	}

	rowIdx := indexOptions(options)
	colIdx := indexScenarios(scenarios)
	sortedOpts := market.SortOptions(options)
	sortedScens := market.SortScenarios(scenarios)

	individual := newGrid(len(options), len(scenarios))
	for i, o := range sortedOpts {
		row := payoffs[rowIdx[o.ID]]
		if len(row) != len(scenarios) {
			return nil, errdefs.NewData(fmt.Sprintf("payoffs[%d]", rowIdx[o.ID]), "expected %d columns, got %d", len(scenarios), len(row))
		}
		for j, s := range sortedScens {
			v := row[colIdx[s.ID]]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errdefs.NewData(fmt.Sprintf("payoffs[%d][%d]", rowIdx[o.ID], colIdx[s.ID]), "value %v is not a finite number", v)
			}
			individual[i][j] = v
		}
	}

	return newMatrix(ZeroSum, sortedOpts, sortedScens, individual, nil), nil
}

func newMatrix(mode Mode, options []market.Option, scenarios []market.Scenario, individual, mkt [][]float64) *Matrix {
	if mode == ZeroSum || mkt == nil {
		mkt = newGrid(len(options), len(scenarios))
		for i := range individual {
			for j := range individual[i] {
				mkt[i][j] = -individual[i][j]
			}
		}
	}

	return &Matrix{
		mode:       mode,
		options:    options,
		scenarios:  scenarios,
		individual: individual,
		market:     mkt,
	}
}

func (m *Matrix) Mode() Mode { return m.mode }

// Dims returns rows, columns.
func (m *Matrix) Dims() (int, int) { return len(m.options), len(m.scenarios) }

func (m *Matrix) Options() []market.Option {
	return append([]market.Option(nil), m.options...)
}

func (m *Matrix) Scenarios() []market.Scenario {
	return append([]market.Scenario(nil), m.scenarios...)
}

func (m *Matrix) Option(i int) market.Option { return m.options[i] }

func (m *Matrix) Scenario(j int) market.Scenario { return m.scenarios[j] }

// Payoff is the Individual's payoff at row i, column j.
func (m *Matrix) Payoff(i, j int) float64 { return m.individual[i][j] }

// MarketPayoff is the Market's payoff at row i, column j.
func (m *Matrix) MarketPayoff(i, j int) float64 { return m.market[i][j] }

// OptionIndex returns the row of the option id or -1.
func (m *Matrix) OptionIndex(id string) int {
	for i, o := range m.options {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// ScenarioIndex returns the column of the scenario id or -1.
func (m *Matrix) ScenarioIndex(id string) int {
	for j, s := range m.scenarios {
		if s.ID == id {
			return j
		}
	}
	return -1
}

// Snapshot is the serializable form of a Matrix.
type Snapshot struct {
	Mode       Mode              `json:"mode"`
	Options    []market.Option   `json:"options"`
	Scenarios  []market.Scenario `json:"scenarios"`
	Individual [][]float64       `json:"individual"`
	Market     [][]float64       `json:"market"`
}

func (m *Matrix) Snapshot() Snapshot {
	return Snapshot{
		Mode:       m.mode,
		Options:    m.Options(),
		Scenarios:  m.Scenarios(),
		Individual: cloneGrid(m.individual),
		Market:     cloneGrid(m.market),
	}
}

func validateStrategies(options []market.Option, scenarios []market.Scenario) error {
	if len(options) == 0 {
		return errdefs.NewData("options", "at least one option is required")
	}
	if len(scenarios) == 0 {
		return errdefs.NewData("scenarios", "at least one scenario is required")
	}

	seen := make(map[string]struct{}, len(options))
	for idx, o := range options {
		if o.ID == "" {
			return errdefs.NewData(fmt.Sprintf("options[%d].id", idx), "id is required")
		}
		if _, ok := seen[o.ID]; ok {
			return errdefs.NewData(fmt.Sprintf("options[%d].id", idx), "duplicated id %q", o.ID)
		}
		seen[o.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(scenarios))
	for idx, s := range scenarios {
		if s.ID == "" {
			return errdefs.NewData(fmt.Sprintf("scenarios[%d].id", idx), "id is required")
		}
		if _, ok := seen[s.ID]; ok {
			return errdefs.NewData(fmt.Sprintf("scenarios[%d].id", idx), "duplicated id %q", s.ID)
		}
		if math.IsNaN(s.DefaultShift) || math.IsInf(s.DefaultShift, 0) {
			return errdefs.NewData(fmt.Sprintf("scenarios[%d].default_shift", idx), "value %v is not a finite number", s.DefaultShift)
		}
		seen[s.ID] = struct{}{}
	}

	return nil
}

func indexOptions(options []market.Option) map[string]int {
	idx := make(map[string]int, len(options))
	for i, o := range options {
		idx[o.ID] = i
	}
	return idx
}

func indexScenarios(scenarios []market.Scenario) map[string]int {
	idx := make(map[string]int, len(scenarios))
	for i, s := range scenarios {
		idx[s.ID] = i
	}
	return idx
}

func newGrid(rows, cols int) [][]float64 {
	grid := make([][]float64, rows)
	for i := range grid {
		grid[i] = make([]float64, cols)
	}
	return grid
}

func cloneGrid(src [][]float64) [][]float64 {
	out := make([][]float64, len(src))
	for i := range src {
		out[i] = append([]float64(nil), src[i]...)
	}
	return out
}
