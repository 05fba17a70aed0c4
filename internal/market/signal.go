package market

import (
	"sort"
	"strings"
)

// Direction tells whether larger raw values of a dimension are preferable.
type Direction string

const (
	HigherIsBetter Direction = "higher_is_better"
	LowerIsBetter  Direction = "lower_is_better"
)

// Well-known dimensions produced by the bundled providers.
const (
	DimensionDemand      = "demand"
	DimensionSalary      = "salary"
	DimensionGrowth      = "growth"
	DimensionCompetition = "competition"
	DimensionLayoffRisk  = "layoff_risk"
)

// Signal is a single market indicator for one option and dimension.
// An empty ScenarioID marks a baseline signal that holds under every scenario.
type Signal struct {
	OptionID   string  `json:"option_id" yaml:"option_id" mapstructure:"option_id"`
	ScenarioID string  `json:"scenario_id,omitempty" yaml:"scenario_id" mapstructure:"scenario_id"`
	Dimension  string  `json:"dimension" yaml:"dimension" mapstructure:"dimension"`
	Value      float64 `json:"value" yaml:"value" mapstructure:"value"`
	Unit       string  `json:"unit,omitempty" yaml:"unit" mapstructure:"unit"`
	Source     string  `json:"source,omitempty" yaml:"source" mapstructure:"source"`
	Confidence float64 `json:"confidence" yaml:"confidence" mapstructure:"confidence"`
}

// Key returns the flat table key of the signal.
func (s Signal) Key() Key {
	return Key{OptionID: s.OptionID, ScenarioID: s.ScenarioID, Dimension: s.Dimension}
}

// Option is a pure strategy of the Individual.
type Option struct {
	ID    string `json:"id" yaml:"id" mapstructure:"id"`
	Label string `json:"label,omitempty" yaml:"label" mapstructure:"label"`
	// Query is what providers search for. Defaults to Label.
	Query string `json:"query,omitempty" yaml:"query" mapstructure:"query"`
}

// SearchText returns the text providers should use to look the option up.
func (o Option) SearchText() string {
	if q := strings.TrimSpace(o.Query); q != "" {
		return q
	}
	if l := strings.TrimSpace(o.Label); l != "" {
		return l
	}
	return o.ID
}

// Scenario is a pure strategy of the Market.
type Scenario struct {
	ID    string `json:"id" yaml:"id" mapstructure:"id"`
	Label string `json:"label,omitempty" yaml:"label" mapstructure:"label"`
	// DefaultShift is added to a cell term when the option has no signal
	// for that dimension under this scenario.
	DefaultShift float64 `json:"default_shift,omitempty" yaml:"default_shift" mapstructure:"default_shift"`
}

// Dimension describes how a metric should be normalized.
type Dimension struct {
	Name      string    `json:"name" yaml:"name" mapstructure:"name"`
	Direction Direction `json:"direction" yaml:"direction" mapstructure:"direction"`
	Mandatory bool      `json:"mandatory" yaml:"mandatory" mapstructure:"mandatory"`
}

// DefaultDimensions is the registry used when the configuration has none.
func DefaultDimensions() []Dimension {
	return []Dimension{
		{Name: DimensionDemand, Direction: HigherIsBetter},
		{Name: DimensionSalary, Direction: HigherIsBetter},
		{Name: DimensionGrowth, Direction: HigherIsBetter},
		{Name: DimensionCompetition, Direction: LowerIsBetter},
		{Name: DimensionLayoffRisk, Direction: LowerIsBetter},
	}
}

// Key addresses one cell term: option x scenario x dimension.
type Key struct {
	OptionID   string
	ScenarioID string
	Dimension  string
}

func (k Key) Less(other Key) bool {
	if k.OptionID != other.OptionID {
		return k.OptionID < other.OptionID
	}
	if k.ScenarioID != other.ScenarioID {
		return k.ScenarioID < other.ScenarioID
	}
	return k.Dimension < other.Dimension
}

// Table is a flat lookup of signals by key.
type Table map[Key]Signal

// NewTable indexes signals. A later signal with the same key replaces an
// earlier one.
func NewTable(signals []Signal) Table {
	t := make(Table, len(signals))
	for _, s := range signals {
		t[s.Key()] = s
	}
	return t
}

// Lookup returns the signal stored under key.
func (t Table) Lookup(optionID, scenarioID, dimension string) (Signal, bool) {
	s, ok := t[Key{OptionID: optionID, ScenarioID: scenarioID, Dimension: dimension}]
	return s, ok
}

// Dimensions returns the sorted set of dimension names present in signals.
func Dimensions(signals []Signal) []string {
	seen := make(map[string]struct{})
	for _, s := range signals {
		seen[s.Dimension] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// SortSignals orders signals by key in place.
func SortSignals(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Key().Less(signals[j].Key())
	})
}

// SortOptions returns a copy of options ordered by id.
func SortOptions(options []Option) []Option {
	out := append([]Option(nil), options...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortScenarios returns a copy of scenarios ordered by id.
func SortScenarios(scenarios []Scenario) []Scenario {
	out := append([]Scenario(nil), scenarios...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Merge returns stored overlaid with fresh: a fresh signal replaces the
// stored one with the same key. The result is sorted by key.
func Merge(stored, fresh []Signal) []Signal {
	table := NewTable(stored)
	for _, s := range fresh {
		table[s.Key()] = s
	}

	out := make([]Signal, 0, len(table))
	for _, s := range table {
		out = append(out, s)
	}
	SortSignals(out)
	return out
}
