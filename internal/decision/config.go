package decision

import (
	"time"

	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/game"
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/payoff"
)

// Config is the engine configuration surface exposed to every collaborator.
type Config struct {
	// Mode is zero_sum (default) or general_sum.
	Mode          string              `mapstructure:"mode" json:"mode"`
	Normalization NormalizationConfig `mapstructure:"normalization" json:"normalization"`
	// Epsilon is the tolerance under which payoffs compare equal.
	Epsilon float64 `mapstructure:"epsilon" json:"epsilon"`
	MaxRows int     `mapstructure:"max-rows" json:"max_rows"`
	MaxCols int     `mapstructure:"max-cols" json:"max_cols"`
	// MaxIterations and TimeBudget cap the approximate solver.
	MaxIterations        int           `mapstructure:"max-iterations" json:"max_iterations"`
	TimeBudget           time.Duration `mapstructure:"time-budget" json:"time_budget"`
	ConvergenceTolerance float64       `mapstructure:"convergence-tolerance" json:"convergence_tolerance"`
	// Fallback is fictitious_play (default) or none.
	Fallback         string              `mapstructure:"fallback" json:"fallback"`
	Dimensions       []market.Dimension  `mapstructure:"dimensions" json:"dimensions"`
	DefaultWeights   payoff.WeightVector `mapstructure:"default-weights" json:"default_weights"`
	MarketWeights    payoff.WeightVector `mapstructure:"market-weights" json:"market_weights,omitempty"`
	DefaultScenarios []market.Scenario   `mapstructure:"default-scenarios" json:"default_scenarios"`
}

// NormalizationConfig controls signal rescaling.
type NormalizationConfig struct {
	Lower               float64 `mapstructure:"lower" json:"lower"`
	Upper               float64 `mapstructure:"upper" json:"upper"`
	ConfidenceThreshold float64 `mapstructure:"confidence-threshold" json:"confidence_threshold"`
	// NeutralValue fills cells without any signal. Defaults to the midpoint.
	NeutralValue *float64 `mapstructure:"neutral-value" json:"neutral_value,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Mode: string(payoff.ZeroSum),
		Normalization: NormalizationConfig{
			Lower:               0,
			Upper:               1,
			ConfidenceThreshold: 0.5,
		},
		Epsilon:              game.DefaultEpsilon,
		MaxRows:              payoff.DefaultMaxRows,
		MaxCols:              payoff.DefaultMaxCols,
		MaxIterations:        game.DefaultMaxIterations,
		TimeBudget:           2 * time.Second,
		ConvergenceTolerance: game.DefaultConvergenceTolerance,
		Fallback:             string(game.FallbackFictitiousPlay),
		Dimensions:           market.DefaultDimensions(),
		DefaultWeights: payoff.WeightVector{
			market.DimensionDemand:      0.3,
			market.DimensionSalary:      0.3,
			market.DimensionGrowth:      0.2,
			market.DimensionCompetition: 0.1,
			market.DimensionLayoffRisk:  0.1,
		},
		DefaultScenarios: []market.Scenario{
			{ID: "status_quo", Label: "Status quo"},
			{ID: "recession", Label: "Recession", DefaultShift: -0.15},
			{ID: "ai_demand_spike", Label: "AI-driven demand spike", DefaultShift: 0.05},
		},
	}
}

// Neutral returns the configured neutral value or the midpoint of the bounds.
func (c Config) Neutral() float64 {
	if c.Normalization.NeutralValue != nil {
		return *c.Normalization.NeutralValue
	}
	return (c.Normalization.Lower + c.Normalization.Upper) / 2
}

// Validate checks the options that no component constructor covers.
func (c Config) Validate() error {
	if _, err := payoff.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.MaxRows < 0 {
		return errdefs.NewConfiguration("max-rows", "must not be negative, got %d", c.MaxRows)
	}
	if c.MaxCols < 0 {
		return errdefs.NewConfiguration("max-cols", "must not be negative, got %d", c.MaxCols)
	}
	if c.ConvergenceTolerance < 0 {
		return errdefs.NewConfiguration("convergence-tolerance", "must not be negative, got %v", c.ConvergenceTolerance)
	}
	if len(c.DefaultWeights) > 0 {
		if _, err := c.DefaultWeights.Normalized("default-weights"); err != nil {
			return err
		}
	}
	return nil
}
