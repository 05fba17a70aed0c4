// Package filtering screens a decision request before it reaches the engine:
// options the user ruled out are dropped together with their signals, and
// signal noise is cleaned up so the normalizer sees one record per key.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/logger"
)

// Filter represents a single screening step applied to a request.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, req *decision.Request) (*decision.Request, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
}

// Step describes the result of executing a filtering step.
type Step struct {
	// Items is what the step counted: options or signals.
	Items   string
	Initial int
	Dropped int
	Left    int
}

// Config contains configuration settings consumed by the filters.
type Config struct {
	ExcludedOptions []string `mapstructure:"excluded-options"`
	ExcludeFile     string   `mapstructure:"exclude-file"`
	MinConfidence   float64  `mapstructure:"min-confidence"`
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default returns the standard pipeline in execution order.
func Default() []Filter {
	return []Filter{
		NewExcludedOptions(),
		NewExcludeFile(),
		NewLowConfidence(),
		NewDedupeSignals(),
	}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially on a copy of req.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, req decision.Request) (*decision.Request, error) {
	log := logger.WithFields(deps.Logger, logger.DecisionFields(req.SessionID, "")...)
	deps.Logger = log

	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	current := clone(req)
	for _, step := range steps {
		if !step.IsEnabled() {
			log.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, info, err := step.Apply(ctx, deps, current)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		log.Info("filter step",
			zap.String("name", step.Name()),
			zap.String("items", info.Items),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		current = next
	}

	return current, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

func clone(req decision.Request) *decision.Request {
	out := req
	out.Options = append(out.Options[:0:0], req.Options...)
	out.Scenarios = append(out.Scenarios[:0:0], req.Scenarios...)
	out.Signals = append(out.Signals[:0:0], req.Signals...)
	out.Weights = req.Weights.Clone()
	out.MarketWeights = req.MarketWeights.Clone()
	return &out
}

// dropOptions removes the given option ids and every signal attached to
// them. It returns the removed ids in request order.
func dropOptions(req *decision.Request, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	var removed []string
	options := req.Options[:0]
	for _, o := range req.Options {
		if _, ok := drop[o.ID]; ok {
			removed = append(removed, o.ID)
			continue
		}
		options = append(options, o)
	}
	req.Options = options

	signals := req.Signals[:0]
	for _, s := range req.Signals {
		if _, ok := drop[s.OptionID]; ok {
			continue
		}
		signals = append(signals, s)
	}
	req.Signals = signals

	return removed
}
