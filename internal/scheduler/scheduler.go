// Package scheduler re-evaluates stored decisions on a cron schedule with
// fresh market signals.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/provider"
	"github.com/spigell/career-minimax/internal/store"
)

const DefaultSpec = "0 0 9 * * 1"

// Config is the watch section of the configuration file. Spec has a
// seconds field.
type Config struct {
	Spec       string   `mapstructure:"spec"`
	Sessions   []string `mapstructure:"sessions"`
	RunOnStart bool     `mapstructure:"run-on-start"`
}

type Decider interface {
	Decide(ctx context.Context, req decision.Request) (*decision.Outcome, error)
}

// Deps are the collaborators of the scheduler. Screen is optional.
type Deps struct {
	Provider provider.Provider
	Decider  Decider
	Store    store.Store
	Screen   func(ctx context.Context, req decision.Request) (*decision.Request, error)
	Logger   *zap.Logger
}

// Change is the result of one re-evaluation.
type Change struct {
	SessionID string
	RecordID  string
	Previous  string
	Current   string
}

func (c Change) Changed() bool { return c.Previous != c.Current }

type Scheduler struct {
	Cron   *cron.Cron
	cfg    Config
	deps   Deps
	ctx    context.Context
	logger *zap.Logger
}

func New(ctx context.Context, cfg Config, deps Deps) *Scheduler {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	return &Scheduler{
		Cron:   cron.New(cron.WithSeconds()),
		cfg:    cfg,
		deps:   deps,
		ctx:    ctx,
		logger: logger.WithFields(deps.Logger, zap.String("component", "scheduler")),
	}
}

// Register adds the re-evaluation task to the cron.
func (s *Scheduler) Register() error {
	if _, err := s.Cron.AddFunc(s.cfg.Spec, s.tick); err != nil {
		return fmt.Errorf("register watch task %q: %w", s.cfg.Spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.cfg.Spec))
	if s.cfg.RunOnStart {
		go s.tick()
	}
}

// Stop waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	if _, err := s.RunNow(s.ctx); err != nil {
		s.logger.Error("watch run failed", zap.Error(err))
	}
}

// RunNow re-evaluates every watched session. A failing session is logged
// and does not stop the others.
func (s *Scheduler) RunNow(ctx context.Context) ([]Change, error) {
	sessions := s.cfg.Sessions
	if len(sessions) == 0 {
		var err error
		sessions, err = s.deps.Store.Sessions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
	}

	var (
		changes []Change
		errs    []error
	)
	for _, id := range sessions {
		if err := ctx.Err(); err != nil {
			return changes, err
		}
		change, err := s.Evaluate(ctx, id)
		if err != nil {
			s.logger.Warn("session re-evaluation failed", zap.String(logger.FieldSession, id), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		changes = append(changes, *change)
	}

	s.logger.Info("watch run finished", zap.Int("sessions", len(sessions)), zap.Int("failed", len(errs)))
	return changes, errors.Join(errs...)
}

// Evaluate refreshes the signals of a session's newest request, decides
// again and stores the outcome.
func (s *Scheduler) Evaluate(ctx context.Context, sessionID string) (*Change, error) {
	log := s.logger.With(zap.String(logger.FieldSession, sessionID))

	prev, err := s.deps.Store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	req := prev.Request
	req.SessionID = sessionID

	fresh, err := s.deps.Provider.Fetch(ctx, provider.Query{Options: req.Options, Scenarios: req.Scenarios})
	switch {
	case errors.Is(err, provider.ErrNoData):
		log.Warn("no fresh signals, reusing stored ones", zap.Error(err))
	case err != nil:
		return nil, fmt.Errorf("fetch signals: %w", err)
	default:
		req.Signals = market.Merge(req.Signals, fresh)
		log.Debug("signals refreshed", zap.Int("fresh", len(fresh)), zap.Int("total", len(req.Signals)))
	}

	if s.deps.Screen != nil {
		screened, err := s.deps.Screen(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("screen request: %w", err)
		}
		req = *screened
	}

	out, err := s.deps.Decider.Decide(ctx, req)
	if err != nil {
		return nil, err
	}

	rec, err := s.deps.Store.Save(ctx, req, out)
	if err != nil {
		return nil, fmt.Errorf("save outcome: %w", err)
	}

	change := &Change{
		SessionID: sessionID,
		RecordID:  rec.ID,
		Previous:  prev.ChosenOption,
		Current:   out.Result.ChosenOption,
	}
	if change.Changed() {
		log.Info("recommendation changed",
			zap.String("previous", change.Previous),
			zap.String("current", change.Current),
			zap.Float64("value", out.Result.Value),
		)
	} else {
		log.Info("recommendation unchanged", zap.String("current", change.Current))
	}

	return change, nil
}
