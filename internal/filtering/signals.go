package filtering

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/market"
)

type lowConfidenceFilter struct {
	disabled bool
	reason   string
	min      float64
}

// NewLowConfidence creates a filter that drops signals below a confidence
// floor. Signals between the floor and the normalizer threshold are kept
// and damped by the normalizer instead.
func NewLowConfidence() Filter {
	return &lowConfidenceFilter{}
}

func (f *lowConfidenceFilter) Name() string { return "low_confidence" }

func (f *lowConfidenceFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *lowConfidenceFilter) IsEnabled() bool { return !f.disabled }

func (f *lowConfidenceFilter) Validate(cfg *Config) error {
	f.min = 0
	if cfg != nil {
		f.min = cfg.MinConfidence
	}
	if f.min < 0 || f.min > 1 {
		return fmt.Errorf("min-confidence must be within [0,1], got %v", f.min)
	}
	return nil
}

func (f *lowConfidenceFilter) Apply(_ context.Context, deps Deps, req *decision.Request) (*decision.Request, Step, error) {
	initial := len(req.Signals)
	if f.min == 0 {
		return req, Step{Items: "signals", Initial: initial, Left: initial}, nil
	}

	kept := req.Signals[:0]
	for _, s := range req.Signals {
		if s.Confidence < f.min {
			deps.Logger.Debug("dropping low confidence signal",
				zap.String("option_id", s.OptionID),
				zap.String("dimension", s.Dimension),
				zap.String("source", s.Source),
				zap.Float64("confidence", s.Confidence),
			)
			continue
		}
		kept = append(kept, s)
	}
	req.Signals = kept

	return req, Step{Items: "signals", Initial: initial, Dropped: initial - len(kept), Left: len(kept)}, nil
}

func (f *lowConfidenceFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"min_confidence": strconv.FormatFloat(f.min, 'f', 2, 64)},
	}
}

type dedupeSignalsFilter struct {
	disabled bool
	reason   string
}

// NewDedupeSignals creates a filter that keeps one signal per
// option/scenario/dimension key: the most confident one, and among equally
// confident ones the first seen. Providers in a fallback chain can report
// the same key more than once.
func NewDedupeSignals() Filter {
	return &dedupeSignalsFilter{}
}

func (f *dedupeSignalsFilter) Name() string { return "dedupe_signals" }

func (f *dedupeSignalsFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *dedupeSignalsFilter) IsEnabled() bool { return !f.disabled }

func (f *dedupeSignalsFilter) Validate(*Config) error { return nil }

func (f *dedupeSignalsFilter) Apply(_ context.Context, deps Deps, req *decision.Request) (*decision.Request, Step, error) {
	initial := len(req.Signals)
	best := make(map[market.Key]int, initial)
	order := make([]market.Key, 0, initial)

	for idx, s := range req.Signals {
		key := s.Key()
		prev, ok := best[key]
		if !ok {
			best[key] = idx
			order = append(order, key)
			continue
		}
		if s.Confidence > req.Signals[prev].Confidence {
			best[key] = idx
		}
	}

	kept := make([]market.Signal, 0, len(order))
	for _, key := range order {
		kept = append(kept, req.Signals[best[key]])
	}

	if dropped := initial - len(kept); dropped > 0 {
		deps.Logger.Info("removed duplicated signals", zap.Int("dropped", dropped))
	}
	req.Signals = kept

	return req, Step{Items: "signals", Initial: initial, Dropped: initial - len(kept), Left: len(kept)}, nil
}

func (f *dedupeSignalsFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}
