package game

import (
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/payoff"
)

func pureDistribution(options []market.Option, row int) []Probability {
	out := make([]Probability, len(options))
	for i, o := range options {
		out[i] = Probability{ID: o.ID}
		if i == row {
			out[i].Probability = 1
		}
	}
	return out
}

func pureScenarioDistribution(m *payoff.Matrix, col int) []Probability {
	scenarios := m.Scenarios()
	out := make([]Probability, len(scenarios))
	for j, s := range scenarios {
		out[j] = Probability{ID: s.ID}
		if j == col {
			out[j].Probability = 1
		}
	}
	return out
}

func optionDistribution(m *payoff.Matrix, mix map[int]float64) []Probability {
	options := m.Options()
	out := make([]Probability, len(options))
	for i, o := range options {
		out[i] = Probability{ID: o.ID, Probability: mix[i]}
	}
	return out
}

func scenarioDistribution(m *payoff.Matrix, mix map[int]float64) []Probability {
	scenarios := m.Scenarios()
	out := make([]Probability, len(scenarios))
	for j, s := range scenarios {
		out[j] = Probability{ID: s.ID, Probability: mix[j]}
	}
	return out
}

func optionIDs(m *payoff.Matrix, rows []int) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = m.Option(r).ID
	}
	return ids
}

func scenarioIDs(m *payoff.Matrix, cols []int) []string {
	ids := make([]string, len(cols))
	for i, c := range cols {
		ids[i] = m.Scenario(c).ID
	}
	return ids
}
