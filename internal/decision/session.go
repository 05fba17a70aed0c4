// Package decision wires the engine together: normalize signals, build the
// payoff matrix, solve it and explain the result. A Session only holds
// immutable configuration; every call is a pure function of its request.
package decision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/explain"
	"github.com/spigell/career-minimax/internal/game"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/payoff"
)

// Request carries everything one decision needs. Empty Weights and
// Scenarios fall back to the configured defaults.
type Request struct {
	SessionID     string              `json:"session_id,omitempty" yaml:"session_id" mapstructure:"session_id"`
	Options       []market.Option     `json:"options" yaml:"options" mapstructure:"options"`
	Scenarios     []market.Scenario   `json:"scenarios,omitempty" yaml:"scenarios" mapstructure:"scenarios"`
	Signals       []market.Signal     `json:"signals" yaml:"signals" mapstructure:"signals"`
	Weights       payoff.WeightVector `json:"weights,omitempty" yaml:"weights" mapstructure:"weights"`
	MarketWeights payoff.WeightVector `json:"market_weights,omitempty" yaml:"market_weights" mapstructure:"market_weights"`
}

// Outcome is the immutable result of one decision. It carries no clock
// readings so identical requests serialize to identical bytes.
type Outcome struct {
	SessionID   string               `json:"session_id,omitempty"`
	Matrix      payoff.Snapshot      `json:"matrix"`
	Metadata    *payoff.Metadata     `json:"metadata,omitempty"`
	Result      *game.Result         `json:"result"`
	Explanation *explain.Explanation `json:"explanation"`
}

type Session struct {
	cfg        Config
	normalizer *market.Normalizer
	builder    *payoff.Builder
	solver     *game.Solver
	logger     *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode, _ := payoff.ParseMode(cfg.Mode)

	normalizer, err := market.NewNormalizer(market.NormalizerConfig{
		Lower:               cfg.Normalization.Lower,
		Upper:               cfg.Normalization.Upper,
		ConfidenceThreshold: cfg.Normalization.ConfidenceThreshold,
		Epsilon:             cfg.Epsilon,
		Dimensions:          cfg.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	builder, err := payoff.NewBuilder(payoff.BuilderConfig{
		Mode:         mode,
		NeutralValue: cfg.Neutral(),
		MaxRows:      cfg.MaxRows,
		MaxCols:      cfg.MaxCols,
	})
	if err != nil {
		return nil, err
	}

	solver, err := game.NewSolver(game.Config{
		Epsilon:              cfg.Epsilon,
		MaxRows:              cfg.MaxRows,
		MaxCols:              cfg.MaxCols,
		MaxIterations:        cfg.MaxIterations,
		TimeBudget:           cfg.TimeBudget,
		ConvergenceTolerance: cfg.ConvergenceTolerance,
		Fallback:             game.Fallback(cfg.Fallback),
	}, log)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:        cfg,
		normalizer: normalizer,
		builder:    builder,
		solver:     solver,
		logger:     logger.WithFields(log),
	}, nil
}

// Config returns the configuration the session was built with.
func (s *Session) Config() Config { return s.cfg }

// Decide runs the whole pipeline for one request.
func (s *Session) Decide(ctx context.Context, req Request) (*Outcome, error) {
	log := s.logger.With(logger.DecisionFields(req.SessionID, s.cfg.Mode)...)

	scenarios := req.Scenarios
	if len(scenarios) == 0 {
		scenarios = s.cfg.DefaultScenarios
	}
	weights := req.Weights
	if len(weights) == 0 {
		weights = s.cfg.DefaultWeights
	}
	marketWeights := req.MarketWeights
	if len(marketWeights) == 0 {
		marketWeights = s.cfg.MarketWeights
	}

	if len(req.Options) == 0 {
		return nil, errdefs.NewData("options", "at least one option is required")
	}

	normalized, err := s.normalizer.Normalize(req.Options, scenarios, req.Signals)
	if err != nil {
		return nil, fmt.Errorf("normalize signals: %w", err)
	}
	log.Debug("signals normalized",
		zap.Int("signals", len(normalized)),
		zap.Int("dropped", len(req.Signals)-len(normalized)),
	)

	matrix, meta, err := s.builder.Build(req.Options, scenarios, normalized, weights, marketWeights)
	if err != nil {
		return nil, fmt.Errorf("build payoff matrix: %w", err)
	}
	rows, cols := matrix.Dims()
	log.Debug("payoff matrix built",
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Int("defaults_applied", len(meta.Defaults)),
	)

	return s.solve(ctx, log, req.SessionID, matrix, meta)
}

// DecideMatrix solves an already built matrix, for callers that receive
// payoffs directly instead of signals. The explanation has no factor
// breakdown because no contributions were recorded.
func (s *Session) DecideMatrix(ctx context.Context, sessionID string, matrix *payoff.Matrix) (*Outcome, error) {
	log := s.logger.With(logger.DecisionFields(sessionID, string(matrix.Mode()))...)
	return s.solve(ctx, log, sessionID, matrix, nil)
}

func (s *Session) solve(ctx context.Context, log *zap.Logger, sessionID string, matrix *payoff.Matrix, meta *payoff.Metadata) (*Outcome, error) {
	result, err := s.solver.Solve(ctx, matrix)
	if err != nil {
		return nil, fmt.Errorf("solve game: %w", err)
	}

	if warn := result.Warning(); warn != nil {
		log.Warn("returning best-effort strategy", zap.Error(warn))
	}

	log.Info("decision made",
		zap.String("chosen_option", result.ChosenOption),
		zap.String("kind", string(result.Kind)),
		zap.String("method", string(result.Method)),
		zap.Bool("exact", result.Exact),
		zap.Float64("value", result.Value),
	)

	return &Outcome{
		SessionID:   sessionID,
		Matrix:      matrix.Snapshot(),
		Metadata:    meta,
		Result:      result,
		Explanation: explain.Explain(matrix, meta, result),
	}, nil
}
