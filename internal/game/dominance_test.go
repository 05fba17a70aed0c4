package game

import (
	"context"
	"sort"
	"testing"

	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/payoff"
)

var dominanceFixture = [][]float64{
	{3, 1, 4, 2},
	{2, 0, 3, 1},
	{5, 1, 0, 2},
	{4, 2, 5, 3},
}

func TestEliminateDominatedIsIdempotent(t *testing.T) {
	m := newTestMatrix(t, dominanceFixture)

	red, elims, err := eliminateDominated(context.Background(), m, DefaultEpsilon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(elims) == 0 {
		t.Fatalf("expected the fixture to shrink")
	}

	options := make([]market.Option, len(red.rows))
	for i, r := range red.rows {
		options[i] = m.Option(r)
	}
	scenarios := make([]market.Scenario, len(red.cols))
	for j, c := range red.cols {
		scenarios[j] = m.Scenario(c)
	}
	payoffs := make([][]float64, len(red.rows))
	for i, r := range red.rows {
		for _, c := range red.cols {
			payoffs[i] = append(payoffs[i], m.Payoff(r, c))
		}
	}

	reduced, err := payoff.NewMatrix(options, scenarios, payoffs)
	if err != nil {
		t.Fatalf("build reduced matrix: %v", err)
	}

	again, elims, err := eliminateDominated(context.Background(), reduced, DefaultEpsilon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(elims) != 0 {
		t.Fatalf("second pass must not eliminate anything, got %+v", elims)
	}
	if len(again.rows) != len(red.rows) || len(again.cols) != len(red.cols) {
		t.Fatalf("reduced matrix changed on second pass")
	}
}

func TestEliminateDominatedIsOrderIndependent(t *testing.T) {
	base := newTestMatrix(t, dominanceFixture)
	baseRed, _, err := eliminateDominated(context.Background(), base, DefaultEpsilon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Reverse the id order so the matrix is stored in the opposite sequence.
	rename := func(i int) string { return string(rune('z' - i)) }
	options := make([]market.Option, len(dominanceFixture))
	for i := range dominanceFixture {
		options[i] = market.Option{ID: rename(i), Label: base.Option(i).ID}
	}
	scenarios := make([]market.Scenario, len(dominanceFixture[0]))
	for j := range dominanceFixture[0] {
		scenarios[j] = market.Scenario{ID: rename(j), Label: base.Scenario(j).ID}
	}

	reversed, err := payoff.NewMatrix(options, scenarios, dominanceFixture)
	if err != nil {
		t.Fatalf("build matrix: %v", err)
	}
	revRed, _, err := eliminateDominated(context.Background(), reversed, DefaultEpsilon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var want, got []string
	for _, r := range baseRed.rows {
		want = append(want, "o:"+base.Option(r).ID)
	}
	for _, c := range baseRed.cols {
		want = append(want, "s:"+base.Scenario(c).ID)
	}
	for _, r := range revRed.rows {
		got = append(got, "o:"+reversed.Option(r).Label)
	}
	for _, c := range revRed.cols {
		got = append(got, "s:"+reversed.Scenario(c).Label)
	}
	sort.Strings(want)
	sort.Strings(got)

	if len(want) != len(got) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
