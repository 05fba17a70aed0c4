package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/payoff"
)

// Document is the on-disk form of a decision request. Signals stay loosely
// typed until they are decoded at the boundary.
type Document struct {
	SessionID     string              `yaml:"session_id" json:"session_id"`
	Options       []market.Option     `yaml:"options" json:"options"`
	Scenarios     []market.Scenario   `yaml:"scenarios" json:"scenarios"`
	Weights       payoff.WeightVector `yaml:"weights" json:"weights"`
	MarketWeights payoff.WeightVector `yaml:"market_weights" json:"market_weights"`
	Signals       []map[string]any    `yaml:"signals" json:"signals"`
}

// LoadDocument reads a YAML or JSON document; the extension decides.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return &doc, nil
}

// Request converts the document into an engine request.
func (d *Document) Request() (decision.Request, error) {
	signals, err := market.DecodeSignals(d.Signals)
	if err != nil {
		return decision.Request{}, err
	}

	return decision.Request{
		SessionID:     d.SessionID,
		Options:       d.Options,
		Scenarios:     d.Scenarios,
		Signals:       signals,
		Weights:       d.Weights,
		MarketWeights: d.MarketWeights,
	}, nil
}

// Corpus serves signals from a local document. It is the offline fallback
// at the end of a chain.
type Corpus struct {
	signals []market.Signal
}

func NewCorpus(doc *Document) (*Corpus, error) {
	signals, err := market.DecodeSignals(doc.Signals)
	if err != nil {
		return nil, err
	}
	for i := range signals {
		if signals[i].Source == "" {
			signals[i].Source = "corpus"
		}
	}
	return &Corpus{signals: signals}, nil
}

func (c *Corpus) Name() string { return "corpus" }

func (c *Corpus) Fetch(_ context.Context, q Query) ([]market.Signal, error) {
	wanted := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		wanted[o.ID] = struct{}{}
	}

	var out []market.Signal
	for _, s := range c.signals {
		if _, ok := wanted[s.OptionID]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
