package ai

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/explain"
	"github.com/spigell/career-minimax/internal/game"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/utils"
)

//go:embed prompts/narrate.md
var narratePrompt string

const defaultMaxLogLength = 200

// TemplateNarrator renders explanations without any network call.
type TemplateNarrator struct{}

func (TemplateNarrator) Narrate(_ context.Context, exp *explain.Explanation) (string, error) {
	if exp == nil {
		return "", fmt.Errorf("explanation is required")
	}

	var b strings.Builder

	switch exp.Kind {
	case game.Mixed:
		fmt.Fprintf(&b, "Mixed strategy (%s", exp.Method)
		if !exp.Exact {
			b.WriteString(", approximate")
		}
		b.WriteString(")\n")
		b.WriteString("No single option is safe against every scenario, so the recommendation spreads over:\n")
		for _, r := range exp.Rankings {
			if r.Probability > 0 {
				fmt.Fprintf(&b, "- %s: %.0f%%\n", name(r.OptionID, r.Label), r.Probability*100)
			}
		}
	default:
		fmt.Fprintf(&b, "Minimax strategy (%s)\n", exp.Method)
		fmt.Fprintf(&b, "Each option is judged by its worst payoff across %d scenarios and the best worst case wins.\n", len(exp.Scenarios))
	}

	b.WriteString("\nWorst-case payoffs:\n")
	for _, r := range exp.Rankings {
		fmt.Fprintf(&b, "- %s: worst %.3f, average %.3f", name(r.OptionID, r.Label), r.Worst, r.Average)
		if r.Eliminated {
			b.WriteString(" (dominated)")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nRecommended: %s, guaranteed payoff %.3f", name(exp.ChosenOption, exp.ChosenLabel), exp.Value)
	if exp.MarketResponse != "" {
		fmt.Fprintf(&b, ", binding scenario %s", exp.MarketResponse)
	}
	b.WriteString("\n")

	if len(exp.Breakdown) > 0 && len(exp.Breakdown[0].Factors) > 0 {
		b.WriteString("Main factors:\n")
		for i, f := range exp.Breakdown[0].Factors {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "- %s %s the payoff by %.3f\n", f.Dimension, f.Direction, f.Magnitude)
		}
	}

	if len(exp.Defaults) > 0 {
		fmt.Fprintf(&b, "%d cells had no market signal and used scenario defaults.\n", len(exp.Defaults))
	}
	if exp.BudgetExceeded {
		b.WriteString("The solver stopped at its budget; treat the mix as a best effort.\n")
	}

	return strings.TrimSpace(b.String()), nil
}

func name(id, label string) string {
	if label == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", label, id)
}

// LLMNarrator asks a generator to phrase the explanation and falls back to
// the template when the generator fails.
type LLMNarrator struct {
	generator Generator
	fallback  TemplateNarrator
	logger    *zap.Logger
	maxLogLen int
}

func NewLLMNarrator(generator Generator, provider string, log *zap.Logger, maxLogLength int) *LLMNarrator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &LLMNarrator{
		generator: generator,
		logger:    logger.WithCommonFields(log, provider, generator.Model()),
		maxLogLen: maxLogLength,
	}
}

func (n *LLMNarrator) Narrate(ctx context.Context, exp *explain.Explanation) (string, error) {
	if exp == nil {
		return "", fmt.Errorf("explanation is required")
	}

	payload, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal explanation: %w", err)
	}

	n.logger.Debug("narration request",
		zap.Int("payload_length", utf8.RuneCount(payload)),
		zap.String("payload_preview", utils.TruncateForLog(string(payload), n.maxLogLen)),
	)

	text, err := n.generator.GenerateContent(ctx, narratePrompt, string(payload))
	if err != nil {
		n.logger.Warn("narration failed, using template", zap.Error(err))
		return n.fallback.Narrate(ctx, exp)
	}

	n.logger.Debug("narration response",
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", utils.TruncateForLog(text, n.maxLogLen)),
	)

	return strings.TrimSpace(text), nil
}
