package payoff

import (
	"math"
	"sort"

	"github.com/spigell/career-minimax/internal/errdefs"
)

// WeightVector maps a dimension name to a non-negative weight.
// Weights need not sum to one.
type WeightVector map[string]float64

// Normalized divides every weight by the sum. field names the vector in
// returned ConfigurationErrors.
func (w WeightVector) Normalized(field string) (WeightVector, error) {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)

	// Summing in name order keeps the result bit-identical across runs.
	sum := 0.0
	for _, name := range names {
		weight := w[name]
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			return nil, errdefs.NewConfiguration(field+"."+name, "weight %v is not a finite number", weight)
		}
		if weight < 0 {
			return nil, errdefs.NewConfiguration(field+"."+name, "weight %v must not be negative", weight)
		}
		sum += weight
	}

	if sum <= 0 {
		return nil, errdefs.NewConfiguration(field, "at least one weight must be positive")
	}

	out := make(WeightVector, len(w))
	for name, weight := range w {
		if weight > 0 {
			out[name] = weight / sum
		}
	}

	return out, nil
}

// Dimensions returns the names with a positive weight, sorted.
func (w WeightVector) Dimensions() []string {
	names := make([]string, 0, len(w))
	for name, weight := range w {
		if weight > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (w WeightVector) Clone() WeightVector {
	if w == nil {
		return nil
	}
	out := make(WeightVector, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
