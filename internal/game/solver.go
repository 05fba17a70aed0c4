package game

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/payoff"
)

// Fallback selects what happens when a game has no exact solution.
type Fallback string

const (
	FallbackFictitiousPlay Fallback = "fictitious_play"
	FallbackNone           Fallback = "none"
)

const (
	DefaultEpsilon              = 1e-9
	DefaultMaxIterations        = 10000
	DefaultConvergenceTolerance = 1e-3
)

// Config bounds the solver.
type Config struct {
	Epsilon              float64
	MaxRows              int
	MaxCols              int
	MaxIterations        int
	TimeBudget           time.Duration
	ConvergenceTolerance float64
	Fallback             Fallback
}

// Solver finds the Individual's optimal strategy for a payoff matrix.
// It keeps no state between calls and is safe for concurrent use.
type Solver struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewSolver(cfg Config, log *zap.Logger) (*Solver, error) {
	if cfg.Epsilon < 0 || math.IsNaN(cfg.Epsilon) {
		return nil, errdefs.NewConfiguration("epsilon", "must not be negative, got %v", cfg.Epsilon)
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = payoff.DefaultMaxRows
	}
	if cfg.MaxCols <= 0 {
		cfg.MaxCols = payoff.DefaultMaxCols
	}
	if cfg.MaxIterations < 0 {
		return nil, errdefs.NewConfiguration("max-iterations", "must not be negative, got %d", cfg.MaxIterations)
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.TimeBudget < 0 {
		return nil, errdefs.NewConfiguration("time-budget", "must not be negative, got %s", cfg.TimeBudget)
	}
	if cfg.ConvergenceTolerance <= 0 {
		cfg.ConvergenceTolerance = DefaultConvergenceTolerance
	}
	switch cfg.Fallback {
	case "":
		cfg.Fallback = FallbackFictitiousPlay
	case FallbackFictitiousPlay, FallbackNone:
	default:
		return nil, errdefs.NewConfiguration("fallback", "unknown fallback %q", cfg.Fallback)
	}

	return &Solver{
		cfg:    cfg,
		logger: logger.WithFields(log, zap.String("component", "solver")),
		now:    time.Now,
	}, nil
}

// Solve returns a complete result or an error, never both.
func (s *Solver) Solve(ctx context.Context, m *payoff.Matrix) (*Result, error) {
	rows, cols := m.Dims()
	if rows > s.cfg.MaxRows {
		return nil, errdefs.NewConfiguration("max_rows", "%d options exceed the limit of %d", rows, s.cfg.MaxRows)
	}
	if cols > s.cfg.MaxCols {
		return nil, errdefs.NewConfiguration("max_cols", "%d scenarios exceed the limit of %d", cols, s.cfg.MaxCols)
	}

	red, elims, err := eliminateDominated(ctx, m, s.cfg.Epsilon)
	if err != nil {
		return nil, fmt.Errorf("dominance elimination: %w", err)
	}

	s.logger.Debug("dominance elimination finished",
		zap.Int("eliminated", len(elims)),
		zap.Int("rows_left", len(red.rows)),
		zap.Int("cols_left", len(red.cols)),
	)

	trace := Trace{
		Eliminations:     elims,
		ReducedOptions:   optionIDs(m, red.rows),
		ReducedScenarios: scenarioIDs(m, red.cols),
	}

	if m.Mode() == payoff.GeneralSum {
		return s.solveGeneralSum(m, red, trace)
	}

	return s.solveZeroSum(ctx, m, red, trace)
}

func (s *Solver) solveZeroSum(ctx context.Context, m *payoff.Matrix, red reduction, trace Trace) (*Result, error) {
	eps := s.cfg.Epsilon

	bestRow, security := s.maximin(m, red)
	trace.Security = security
	trace.Maximin = security[indexOf(red.rows, bestRow)].Worst

	bestCol, minimax := s.minimax(m, red)
	trace.Minimax = minimax

	if math.Abs(trace.Maximin-minimax) <= eps {
		trace.Saddle = true
		return &Result{
			Mode:           payoff.ZeroSum,
			Kind:           Pure,
			Exact:          true,
			Method:         MethodSaddlePoint,
			Value:          trace.Maximin,
			MarketValue:    minimax,
			ChosenOption:   m.Option(bestRow).ID,
			MarketResponse: m.Scenario(bestCol).ID,
			Strategy:       pureDistribution(m.Options(), bestRow),
			MarketStrategy: pureScenarioDistribution(m, bestCol),
			Trace:          trace,
		}, nil
	}

	if len(red.rows) == 2 && len(red.cols) == 2 {
		if res, ok := s.solve2x2(m, red, trace); ok {
			return res, nil
		}
	}

	unsolvable := fmt.Errorf("%w: %dx%d game after dominance has no saddle point", errdefs.ErrUnsolvableExactly, len(red.rows), len(red.cols))
	if s.cfg.Fallback == FallbackNone {
		return nil, unsolvable
	}

	s.logger.Debug("falling back to approximate solver", zap.Error(unsolvable))
	trace.Notes = append(trace.Notes, unsolvable.Error())

	return s.fictitiousPlay(ctx, m, red, bestRow, bestCol, trace), nil
}

// maximin picks the row with the best worst case. Ties prefer the higher
// average payoff, then the smaller id.
func (s *Solver) maximin(m *payoff.Matrix, red reduction) (int, []Security) {
	eps := s.cfg.Epsilon
	security := make([]Security, 0, len(red.rows))
	best := -1
	var bestWorst, bestAvg float64

	for _, r := range red.rows {
		worst, worstCol, sum := math.Inf(1), red.cols[0], 0.0
		for _, c := range red.cols {
			v := m.Payoff(r, c)
			sum += v
			if v < worst-eps {
				worst, worstCol = v, c
			}
		}
		avg := sum / float64(len(red.cols))
		security = append(security, Security{
			OptionID:      m.Option(r).ID,
			Worst:         worst,
			Average:       avg,
			WorstScenario: m.Scenario(worstCol).ID,
		})

		switch {
		case best < 0, worst > bestWorst+eps:
			best, bestWorst, bestAvg = r, worst, avg
		case math.Abs(worst-bestWorst) <= eps && avg > bestAvg+eps:
			best, bestWorst, bestAvg = r, worst, avg
		}
	}

	return best, security
}

// minimax picks the Market's column with the lowest column maximum. Ties
// prefer the lower average Individual payoff, then the smaller id.
func (s *Solver) minimax(m *payoff.Matrix, red reduction) (int, float64) {
	eps := s.cfg.Epsilon
	best := -1
	var bestMax, bestAvg float64

	for _, c := range red.cols {
		colMax, sum := math.Inf(-1), 0.0
		for _, r := range red.rows {
			v := m.Payoff(r, c)
			sum += v
			colMax = math.Max(colMax, v)
		}
		avg := sum / float64(len(red.rows))

		switch {
		case best < 0, colMax < bestMax-eps:
			best, bestMax, bestAvg = c, colMax, avg
		case math.Abs(colMax-bestMax) <= eps && avg < bestAvg-eps:
			best, bestMax, bestAvg = c, colMax, avg
		}
	}

	return best, bestMax
}

// solve2x2 computes the equalizing mixed equilibrium of a 2x2 game
// without a saddle point.
func (s *Solver) solve2x2(m *payoff.Matrix, red reduction, trace Trace) (*Result, bool) {
	r1, r2 := red.rows[0], red.rows[1]
	c1, c2 := red.cols[0], red.cols[1]
	a, b := m.Payoff(r1, c1), m.Payoff(r1, c2)
	c, d := m.Payoff(r2, c1), m.Payoff(r2, c2)

	den := a - b - c + d
	if math.Abs(den) <= s.cfg.Epsilon {
		return nil, false
	}

	p := clamp01((d - c) / den)
	q := clamp01((d - b) / den)
	value := (a*d - b*c) / den

	rowMix := map[int]float64{r1: p, r2: 1 - p}
	colMix := map[int]float64{c1: q, c2: 1 - q}

	return &Result{
		Mode:           payoff.ZeroSum,
		Kind:           Mixed,
		Exact:          true,
		Method:         MethodMixed2x2,
		Value:          value,
		MarketValue:    value,
		ChosenOption:   m.Option(argmaxMix(rowMix, red.rows)).ID,
		MarketResponse: m.Scenario(argmaxMix(colMix, red.cols)).ID,
		Strategy:       optionDistribution(m, rowMix),
		MarketStrategy: scenarioDistribution(m, colMix),
		Trace:          trace,
	}, true
}

// fictitiousPlay approximates the mixed equilibrium of the reduced game.
// It stops on convergence, at the iteration cap, at the time budget or on
// cancellation, returning the best strategies found so far.
func (s *Solver) fictitiousPlay(ctx context.Context, m *payoff.Matrix, red reduction, startRow, startCol int, trace Trace) *Result {
	nR, nC := len(red.rows), len(red.cols)
	rowCounts := make([]float64, nR)
	colCounts := make([]float64, nC)
	rowTotals := make([]float64, nR)
	colTotals := make([]float64, nC)

	var deadline time.Time
	if s.cfg.TimeBudget > 0 {
		deadline = s.now().Add(s.cfg.TimeBudget)
	}

	r, c := indexOf(red.rows, startRow), indexOf(red.cols, startCol)
	bestLower, bestUpper := math.Inf(-1), math.Inf(1)
	bestRowMix := make([]float64, nR)
	bestColMix := make([]float64, nC)
	converged := false
	stopReason := "iteration cap"
	iter := 0

	for iter < s.cfg.MaxIterations {
		if iter > 0 {
			if err := ctx.Err(); err != nil {
				stopReason = "cancelled: " + err.Error()
				break
			}
			if !deadline.IsZero() && !s.now().Before(deadline) {
				stopReason = "time budget"
				break
			}
		}
		iter++

		rowCounts[r]++
		colCounts[c]++
		for i, row := range red.rows {
			rowTotals[i] += m.Payoff(row, red.cols[c])
		}
		for j, col := range red.cols {
			colTotals[j] += m.Payoff(red.rows[r], col)
		}

		t := float64(iter)
		lower, nextC := math.Inf(1), 0
		for j := range colTotals {
			if v := colTotals[j] / t; v < lower {
				lower, nextC = v, j
			}
		}
		upper, nextR := math.Inf(-1), 0
		for i := range rowTotals {
			if v := rowTotals[i] / t; v > upper {
				upper, nextR = v, i
			}
		}

		if lower > bestLower {
			bestLower = lower
			for i := range rowCounts {
				bestRowMix[i] = rowCounts[i] / t
			}
		}
		if upper < bestUpper {
			bestUpper = upper
			for j := range colCounts {
				bestColMix[j] = colCounts[j] / t
			}
		}

		if bestUpper-bestLower <= s.cfg.ConvergenceTolerance {
			converged = true
			break
		}

		r, c = nextR, nextC
	}

	trace.Iterations = iter
	trace.Gap = bestUpper - bestLower
	if !converged {
		trace.Notes = append(trace.Notes, "approximation stopped: "+stopReason)
		s.logger.Warn("approximate solver stopped before convergence",
			zap.String("reason", stopReason),
			zap.Int("iterations", iter),
			zap.Float64("gap", trace.Gap),
		)
	}

	rowMix := make(map[int]float64, nR)
	for i, row := range red.rows {
		rowMix[row] = bestRowMix[i]
	}
	colMix := make(map[int]float64, nC)
	for j, col := range red.cols {
		colMix[col] = bestColMix[j]
	}

	chosen := argmaxMix(rowMix, red.rows)
	kind := Mixed
	if rowMix[chosen] >= 1-s.cfg.Epsilon {
		kind = Pure
	}

	return &Result{
		Mode:           payoff.ZeroSum,
		Kind:           kind,
		Exact:          false,
		Method:         MethodFictitiousPlay,
		Value:          bestLower,
		MarketValue:    bestUpper,
		ChosenOption:   m.Option(chosen).ID,
		MarketResponse: m.Scenario(argmaxMix(colMix, red.cols)).ID,
		Strategy:       optionDistribution(m, rowMix),
		MarketStrategy: scenarioDistribution(m, colMix),
		BudgetExceeded: !converged,
		Trace:          trace,
	}
}

func (s *Solver) solveGeneralSum(m *payoff.Matrix, red reduction, trace Trace) (*Result, error) {
	eps := s.cfg.Epsilon

	bestRow, security := s.maximin(m, red)
	trace.Security = security
	trace.Maximin = security[indexOf(red.rows, bestRow)].Worst

	rowAvg := make(map[int]float64, len(red.rows))
	for i, r := range red.rows {
		rowAvg[r] = security[i].Average
	}

	bestR, bestC := -1, -1
	for _, r := range red.rows {
		for _, c := range red.cols {
			if !isPureNash(m, red, r, c, eps) {
				continue
			}
			trace.Equilibria = append(trace.Equilibria, Equilibrium{
				OptionID:   m.Option(r).ID,
				ScenarioID: m.Scenario(c).ID,
				Individual: m.Payoff(r, c),
				Market:     m.MarketPayoff(r, c),
			})

			switch {
			case bestR < 0, m.Payoff(r, c) > m.Payoff(bestR, bestC)+eps:
				bestR, bestC = r, c
			case math.Abs(m.Payoff(r, c)-m.Payoff(bestR, bestC)) <= eps && rowAvg[r] > rowAvg[bestR]+eps:
				bestR, bestC = r, c
			}
		}
	}

	if bestR >= 0 {
		return &Result{
			Mode:           payoff.GeneralSum,
			Kind:           Pure,
			Exact:          true,
			Method:         MethodPureNash,
			Value:          m.Payoff(bestR, bestC),
			MarketValue:    m.MarketPayoff(bestR, bestC),
			ChosenOption:   m.Option(bestR).ID,
			MarketResponse: m.Scenario(bestC).ID,
			Strategy:       pureDistribution(m.Options(), bestR),
			MarketStrategy: pureScenarioDistribution(m, bestC),
			Trace:          trace,
		}, nil
	}

	unsolvable := fmt.Errorf("%w: no pure-strategy equilibrium in %dx%d general-sum game", errdefs.ErrUnsolvableExactly, len(red.rows), len(red.cols))
	if s.cfg.Fallback == FallbackNone {
		return nil, unsolvable
	}
	trace.Notes = append(trace.Notes, unsolvable.Error())

	worst := security[indexOf(red.rows, bestRow)]
	worstCol := m.ScenarioIndex(worst.WorstScenario)

	return &Result{
		Mode:           payoff.GeneralSum,
		Kind:           Pure,
		Exact:          false,
		Method:         MethodSecurityLevel,
		Value:          worst.Worst,
		MarketValue:    m.MarketPayoff(bestRow, worstCol),
		ChosenOption:   worst.OptionID,
		MarketResponse: worst.WorstScenario,
		Strategy:       pureDistribution(m.Options(), bestRow),
		MarketStrategy: pureScenarioDistribution(m, worstCol),
		Trace:          trace,
	}, nil
}

// isPureNash reports whether neither player gains by deviating from (r, c)
// within the reduced game.
func isPureNash(m *payoff.Matrix, red reduction, r, c int, eps float64) bool {
	for _, other := range red.rows {
		if m.Payoff(other, c) > m.Payoff(r, c)+eps {
			return false
		}
	}
	for _, other := range red.cols {
		if m.MarketPayoff(r, other) > m.MarketPayoff(r, c)+eps {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// argmaxMix returns the index with the largest weight; ties keep the first
// index in order, which is the smaller id.
func argmaxMix(mix map[int]float64, order []int) int {
	best := order[0]
	for _, idx := range order[1:] {
		if mix[idx] > mix[best] {
			best = idx
		}
	}
	return best
}

func indexOf(items []int, v int) int {
	for i, item := range items {
		if item == v {
			return i
		}
	}
	return -1
}
