// Package provider fetches raw market signals for decision requests.
package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/market"
)

// ErrNoData is returned when no provider produced a single signal.
var ErrNoData = errors.New("no market data")

// Query names what a provider should look up.
type Query struct {
	Options   []market.Option
	Scenarios []market.Scenario
}

// Provider supplies raw signals with provenance. Options it knows nothing
// about are simply absent from the result.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]market.Signal, error)
}

// Chain asks providers in order. Each next provider is only asked about
// the options the previous ones returned nothing for.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

func NewChain(log *zap.Logger, providers ...Provider) *Chain {
	return &Chain{
		providers: providers,
		logger:    logger.WithFields(log, zap.String("component", "provider_chain")),
	}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Fetch(ctx context.Context, q Query) ([]market.Signal, error) {
	var (
		signals []market.Signal
		errs    []error
	)

	pending := q.Options
	for _, p := range c.providers {
		if len(pending) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log := c.logger.With(logger.SourceFields(p.Name())...)
		got, err := p.Fetch(ctx, Query{Options: pending, Scenarios: q.Scenarios})
		if err != nil {
			log.Warn("provider failed, falling back", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		covered := make(map[string]struct{})
		for _, s := range got {
			covered[s.OptionID] = struct{}{}
		}

		next := pending[:0:0]
		for _, o := range pending {
			if _, ok := covered[o.ID]; ok {
				continue
			}
			next = append(next, o)
		}

		log.Info("provider answered",
			zap.Int("signals", len(got)),
			zap.Int("options_covered", len(pending)-len(next)),
			zap.Int("options_pending", len(next)),
		)

		signals = append(signals, got...)
		pending = next
	}

	if len(signals) == 0 {
		errs = append([]error{ErrNoData}, errs...)
		return nil, errors.Join(errs...)
	}

	for _, o := range pending {
		c.logger.Warn("no provider has data for option", zap.String("option_id", o.ID))
	}

	return signals, nil
}
