package market

import (
	"fmt"
	"math"
	"sort"

	"github.com/spigell/career-minimax/internal/errdefs"
)

const defaultEpsilon = 1e-9

// NormalizerConfig controls how raw metrics are rescaled.
type NormalizerConfig struct {
	Lower               float64
	Upper               float64
	ConfidenceThreshold float64
	Epsilon             float64
	Dimensions          []Dimension
}

// Normalizer maps heterogeneous raw metrics into a common bounded range.
type Normalizer struct {
	lower     float64
	upper     float64
	threshold float64
	epsilon   float64
	registry  map[string]Dimension
	mandatory []Dimension
}

func NewNormalizer(cfg NormalizerConfig) (*Normalizer, error) {
	if math.IsNaN(cfg.Lower) || math.IsNaN(cfg.Upper) || cfg.Lower >= cfg.Upper {
		return nil, errdefs.NewConfiguration("normalization.bounds", "lower bound %v must be below upper bound %v", cfg.Lower, cfg.Upper)
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, errdefs.NewConfiguration("normalization.confidence-threshold", "must be within [0,1], got %v", cfg.ConfidenceThreshold)
	}

	eps := cfg.Epsilon
	if eps <= 0 {
		eps = defaultEpsilon
	}

	dims := cfg.Dimensions
	if len(dims) == 0 {
		dims = DefaultDimensions()
	}

	registry := make(map[string]Dimension, len(dims))
	for _, d := range dims {
		if d.Name == "" {
			return nil, errdefs.NewConfiguration("dimensions", "dimension name must not be empty")
		}
		if d.Direction == "" {
			d.Direction = HigherIsBetter
		}
		if d.Direction != HigherIsBetter && d.Direction != LowerIsBetter {
			return nil, errdefs.NewConfiguration("dimensions."+d.Name+".direction", "unknown direction %q", d.Direction)
		}
		registry[d.Name] = d
	}

	mandatory := make([]Dimension, 0, len(registry))
	for _, d := range registry {
		if d.Mandatory {
			mandatory = append(mandatory, d)
		}
	}
	sort.Slice(mandatory, func(i, j int) bool { return mandatory[i].Name < mandatory[j].Name })

	return &Normalizer{
		lower:     cfg.Lower,
		upper:     cfg.Upper,
		threshold: cfg.ConfidenceThreshold,
		epsilon:   eps,
		registry:  registry,
		mandatory: mandatory,
	}, nil
}

// Bounds returns the configured output range.
func (n *Normalizer) Bounds() (float64, float64) {
	return n.lower, n.upper
}

// Dimension returns the registry entry for name, defaulting to a
// higher-is-better optional dimension.
func (n *Normalizer) Dimension(name string) Dimension {
	if d, ok := n.registry[name]; ok {
		return d
	}
	return Dimension{Name: name, Direction: HigherIsBetter}
}

// Normalize validates raw signals and rescales them. Signals bound to a
// scenario outside scenarios never reach the matrix, so they are dropped
// before ranges are computed. The input slice is not modified; the result
// is sorted by key.
func (n *Normalizer) Normalize(options []Option, scenarios []Scenario, signals []Signal) ([]Signal, error) {
	known := make(map[string]struct{}, len(options))
	for _, o := range options {
		known[o.ID] = struct{}{}
	}
	requested := make(map[string]struct{}, len(scenarios))
	for _, sc := range scenarios {
		requested[sc.ID] = struct{}{}
	}

	type span struct{ min, max float64 }
	spans := make(map[string]*span)
	seen := make(map[string]map[string]struct{})
	kept := make([]Signal, 0, len(signals))

	for idx, s := range signals {
		if s.ScenarioID != "" {
			if _, ok := requested[s.ScenarioID]; !ok {
				continue
			}
		}

		field := fmt.Sprintf("signals[%d]", idx)
		if _, ok := known[s.OptionID]; !ok {
			return nil, errdefs.NewData(field+".option_id", "unknown option %q", s.OptionID)
		}
		if s.Dimension == "" {
			return nil, errdefs.NewData(field+".dimension", "dimension is required")
		}
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			return nil, errdefs.NewData(field+".value", "value %v is not a finite number", s.Value)
		}
		if s.Confidence < 0 || s.Confidence > 1 || math.IsNaN(s.Confidence) {
			return nil, errdefs.NewData(field+".confidence", "confidence %v is outside [0,1]", s.Confidence)
		}

		v := n.oriented(s)
		sp, ok := spans[s.Dimension]
		if !ok {
			spans[s.Dimension] = &span{min: v, max: v}
		} else {
			sp.min = math.Min(sp.min, v)
			sp.max = math.Max(sp.max, v)
		}

		if seen[s.OptionID] == nil {
			seen[s.OptionID] = make(map[string]struct{})
		}
		seen[s.OptionID][s.Dimension] = struct{}{}
		kept = append(kept, s)
	}

	for _, o := range SortOptions(options) {
		for _, d := range n.mandatory {
			if _, ok := seen[o.ID][d.Name]; !ok {
				return nil, errdefs.NewData(fmt.Sprintf("options[%s].%s", o.ID, d.Name), "mandatory dimension has no signal")
			}
		}
	}

	unit := fmt.Sprintf("normalized[%g,%g]", n.lower, n.upper)
	midpoint := (n.lower + n.upper) / 2
	out := make([]Signal, 0, len(kept))

	for _, s := range kept {
		sp := spans[s.Dimension]
		scaled := midpoint
		if sp.max-sp.min > n.epsilon {
			scaled = n.lower + (n.oriented(s)-sp.min)/(sp.max-sp.min)*(n.upper-n.lower)
		}

		if s.Confidence < n.threshold {
			scaled *= s.Confidence
		}

		s.Value = scaled
		s.Unit = unit
		out = append(out, s)
	}

	SortSignals(out)

	return out, nil
}

// oriented flips lower-is-better metrics so larger always means better.
func (n *Normalizer) oriented(s Signal) float64 {
	if n.Dimension(s.Dimension).Direction == LowerIsBetter {
		return -s.Value
	}
	return s.Value
}
