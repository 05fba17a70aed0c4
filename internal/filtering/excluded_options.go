package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/decision"
)

type excludedOptionsFilter struct {
	disabled bool
	reason   string
	options  []string
}

// NewExcludedOptions creates a filter that removes options listed in the config.
func NewExcludedOptions() Filter {
	return &excludedOptionsFilter{}
}

func (f *excludedOptionsFilter) Name() string { return "excluded_options" }

func (f *excludedOptionsFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *excludedOptionsFilter) IsEnabled() bool { return !f.disabled }

func (f *excludedOptionsFilter) Validate(cfg *Config) error {
	f.options = nil
	if cfg != nil {
		f.options = append(f.options, cfg.ExcludedOptions...)
	}
	return nil
}

func (f *excludedOptionsFilter) Apply(_ context.Context, deps Deps, req *decision.Request) (*decision.Request, Step, error) {
	initial := len(req.Options)
	excluded := dropOptions(req, f.options)
	if len(excluded) > 0 {
		deps.Logger.Info("excluding options by config",
			zap.Strings("excluded_options", excluded),
			zap.Int("options_left", len(req.Options)),
		)
	}

	return req, Step{Items: "options", Initial: initial, Dropped: len(excluded), Left: len(req.Options)}, nil
}

func (f *excludedOptionsFilter) Status() Status {
	details := map[string]string{}
	if len(f.options) > 0 {
		details["options"] = strings.Join(f.options, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
