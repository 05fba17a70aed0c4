package game

import (
	"context"

	"github.com/spigell/career-minimax/internal/payoff"
)

// reduction is the sub-game left after dominance elimination, as indices
// into the original matrix. Both slices keep matrix (id) order.
type reduction struct {
	rows []int
	cols []int
}

// eliminateDominated runs iterated strict dominance. Each round removes every
// row dominated for the Individual and every column dominated for the Market
// at once; strict dominance makes the final sub-game independent of order.
func eliminateDominated(ctx context.Context, m *payoff.Matrix, eps float64) (reduction, []Elimination, error) {
	nRows, nCols := m.Dims()
	red := reduction{rows: seq(nRows), cols: seq(nCols)}
	var elims []Elimination

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return reduction{}, nil, err
		}

		deadRows := make(map[int]int)
		for _, r := range red.rows {
			for _, other := range red.rows {
				if other != r && rowDominates(m, red.cols, other, r, eps) {
					deadRows[r] = other
					break
				}
			}
		}

		deadCols := make(map[int]int)
		for _, c := range red.cols {
			for _, other := range red.cols {
				if other != c && colDominates(m, red.rows, other, c, eps) {
					deadCols[c] = other
					break
				}
			}
		}

		if len(deadRows) == 0 && len(deadCols) == 0 {
			return red, elims, nil
		}

		rows := red.rows[:0:0]
		for _, r := range red.rows {
			if by, dead := deadRows[r]; dead {
				elims = append(elims, Elimination{Player: Individual, ID: m.Option(r).ID, DominatedBy: m.Option(by).ID, Round: round})
				continue
			}
			rows = append(rows, r)
		}

		cols := red.cols[:0:0]
		for _, c := range red.cols {
			if by, dead := deadCols[c]; dead {
				elims = append(elims, Elimination{Player: Market, ID: m.Scenario(c).ID, DominatedBy: m.Scenario(by).ID, Round: round})
				continue
			}
			cols = append(cols, c)
		}

		red = reduction{rows: rows, cols: cols}
	}
}

// rowDominates reports whether row a is strictly better than row b for the
// Individual against every remaining column.
func rowDominates(m *payoff.Matrix, cols []int, a, b int, eps float64) bool {
	for _, c := range cols {
		if m.Payoff(a, c) <= m.Payoff(b, c)+eps {
			return false
		}
	}
	return true
}

// colDominates reports whether column a is strictly better than column b for
// the Market against every remaining row.
func colDominates(m *payoff.Matrix, rows []int, a, b int, eps float64) bool {
	for _, r := range rows {
		if m.MarketPayoff(r, a) <= m.MarketPayoff(r, b)+eps {
			return false
		}
	}
	return true
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
