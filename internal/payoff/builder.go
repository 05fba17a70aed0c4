package payoff

import (
	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/market"
)

const (
	DefaultMaxRows = 8
	DefaultMaxCols = 8
)

// Origin tells where a cell term value came from.
type Origin string

const (
	OriginSignal        Origin = "signal"
	OriginBaselineShift Origin = "baseline_shift"
	OriginNeutralShift  Origin = "neutral_shift"
)

// BuilderConfig controls matrix construction.
type BuilderConfig struct {
	Mode         Mode
	NeutralValue float64
	MaxRows      int
	MaxCols      int
}

// Contribution is one weighted term of an Individual payoff cell.
type Contribution struct {
	OptionID   string  `json:"option_id"`
	ScenarioID string  `json:"scenario_id"`
	Dimension  string  `json:"dimension"`
	Weight     float64 `json:"weight"`
	Value      float64 `json:"value"`
	Weighted   float64 `json:"weighted"`
	// Deviation is Weight * (Value - neutral): the term's push away from an
	// uninformative cell.
	Deviation float64 `json:"deviation"`
	Origin    Origin  `json:"origin"`
}

// DefaultApplication records a term filled in by the default-shift policy.
type DefaultApplication struct {
	OptionID   string  `json:"option_id"`
	ScenarioID string  `json:"scenario_id"`
	Dimension  string  `json:"dimension"`
	Kind       Origin  `json:"kind"`
	Shift      float64 `json:"shift"`
	Value      float64 `json:"value"`
}

// Metadata records how a matrix was built.
type Metadata struct {
	Mode          Mode                 `json:"mode"`
	Weights       WeightVector         `json:"weights"`
	MarketWeights WeightVector         `json:"market_weights,omitempty"`
	NeutralValue  float64              `json:"neutral_value"`
	Contributions []Contribution       `json:"contributions"`
	Defaults      []DefaultApplication `json:"defaults,omitempty"`
}

// Builder combines normalized signals and weights into a payoff matrix.
type Builder struct {
	cfg BuilderConfig
}

func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Mode == "" {
		cfg.Mode = ZeroSum
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.MaxCols <= 0 {
		cfg.MaxCols = DefaultMaxCols
	}

	return &Builder{cfg: cfg}, nil
}

// Build produces the matrix and its metadata. marketWeights is only used in
// general-sum mode, where it is required.
func (b *Builder) Build(options []market.Option, scenarios []market.Scenario, normalized []market.Signal, weights, marketWeights WeightVector) (*Matrix, *Metadata, error) {
	w, err := weights.Normalized("weights")
	if err != nil {
		return nil, nil, err
	}

	var mw WeightVector
	if b.cfg.Mode == GeneralSum {
		if mw, err = marketWeights.Normalized("market_weights"); err != nil {
			return nil, nil, err
		}
	}

	if err := validateStrategies(options, scenarios); err != nil {
		return nil, nil, err
	}
	if len(options) > b.cfg.MaxRows {
		return nil, nil, errdefs.NewConfiguration("max_rows", "%d options exceed the limit of %d", len(options), b.cfg.MaxRows)
	}
	if len(scenarios) > b.cfg.MaxCols {
		return nil, nil, errdefs.NewConfiguration("max_cols", "%d scenarios exceed the limit of %d", len(scenarios), b.cfg.MaxCols)
	}

	opts := market.SortOptions(options)
	scens := market.SortScenarios(scenarios)
	table := market.NewTable(normalized)
	dims := w.Dimensions()

	meta := &Metadata{
		Mode:          b.cfg.Mode,
		Weights:       w,
		MarketWeights: mw,
		NeutralValue:  b.cfg.NeutralValue,
	}

	individual := newGrid(len(opts), len(scens))
	for i, o := range opts {
		for j, s := range scens {
			for _, d := range dims {
				value, origin := b.term(table, o, s, d)
				weighted := w[d] * value
				individual[i][j] += weighted

				meta.Contributions = append(meta.Contributions, Contribution{
					OptionID:   o.ID,
					ScenarioID: s.ID,
					Dimension:  d,
					Weight:     w[d],
					Value:      value,
					Weighted:   weighted,
					Deviation:  w[d] * (value - b.cfg.NeutralValue),
					Origin:     origin,
				})

				if origin != OriginSignal {
					meta.Defaults = append(meta.Defaults, DefaultApplication{
						OptionID:   o.ID,
						ScenarioID: s.ID,
						Dimension:  d,
						Kind:       origin,
						Shift:      s.DefaultShift,
						Value:      value,
					})
				}
			}
		}
	}

	var mkt [][]float64
	if b.cfg.Mode == GeneralSum {
		mkt = newGrid(len(opts), len(scens))
		for i, o := range opts {
			for j, s := range scens {
				for _, d := range mw.Dimensions() {
					value, _ := b.term(table, o, s, d)
					mkt[i][j] += mw[d] * value
				}
			}
		}
	}

	return newMatrix(b.cfg.Mode, opts, scens, individual, mkt), meta, nil
}

// term looks up the value of one cell term, applying the scenario's default
// shift when the scenario has no signal of its own.
func (b *Builder) term(table market.Table, o market.Option, s market.Scenario, dim string) (float64, Origin) {
	if sig, ok := table.Lookup(o.ID, s.ID, dim); ok {
		return sig.Value, OriginSignal
	}
	if sig, ok := table.Lookup(o.ID, "", dim); ok {
		return sig.Value + s.DefaultShift, OriginBaselineShift
	}
	return b.cfg.NeutralValue + s.DefaultShift, OriginNeutralShift
}
