package filtering

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/career-minimax/internal/decision"
)

// ExcludedOptions is the content of an exclude file.
type ExcludedOptions struct {
	Items []*ExcludedOption `yaml:"items"`
}

type ExcludedOption struct {
	ID         string    `yaml:"id"`
	Label      string    `yaml:"label,omitempty"`
	Reason     string    `yaml:"reason,omitempty"`
	ExcludedAt time.Time `yaml:"excluded_at"`
}

// ReadExcludeFile loads an exclude file. A missing or empty file means
// nothing is excluded.
func ReadExcludeFile(path string) (*ExcludedOptions, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludedOptions{}, nil
	}
	if err != nil {
		return nil, err
	}

	var excluded ExcludedOptions
	if len(strings.TrimSpace(string(data))) == 0 {
		return &excluded, nil
	}
	if err := yaml.Unmarshal(data, &excluded); err != nil {
		return nil, fmt.Errorf("decode exclude file %q: %w", path, err)
	}
	return &excluded, nil
}

// Add appends an option unless it is already listed.
func (e *ExcludedOptions) Add(item *ExcludedOption) {
	for _, existing := range e.Items {
		if existing.ID == item.ID {
			return
		}
	}
	e.Items = append(e.Items, item)
}

func (e *ExcludedOptions) IDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// ToFile overwrites path with the list.
func (e *ExcludedOptions) ToFile(path string) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type excludeFileFilter struct {
	disabled bool
	reason   string
	path     string
}

// NewExcludeFile creates a filter that removes options listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *excludeFileFilter) IsEnabled() bool { return !f.disabled }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, req *decision.Request) (*decision.Request, Step, error) {
	initial := len(req.Options)
	if f.path == "" {
		return req, Step{Items: "options", Initial: initial, Left: initial}, nil
	}

	excluded, err := ReadExcludeFile(f.path)
	if err != nil {
		return req, Step{}, fmt.Errorf("getting excluded options from file: %w", err)
	}

	removed := dropOptions(req, excluded.IDs())
	if len(removed) > 0 {
		deps.Logger.Info("excluding options based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_options", removed),
			zap.Int("options_left", len(req.Options)),
		)
	}

	return req, Step{Items: "options", Initial: initial, Dropped: len(removed), Left: len(req.Options)}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
