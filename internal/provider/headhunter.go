package provider

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/headhunter"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/market"
)

const (
	sourceHeadHunter = "hh.ru"
	// Salary confidence reaches 1 at this many published salaries.
	salarySampleSize = 20
)

// VacancySearcher is the part of the hh.ru client the provider needs.
type VacancySearcher interface {
	Search(ctx context.Context, params *headhunter.SearchParams) (*headhunter.Vacancies, error)
}

// HeadHunter derives baseline demand and salary signals from hh.ru search.
type HeadHunter struct {
	client VacancySearcher
	params headhunter.SearchParams
	logger *zap.Logger
}

// NewHeadHunter uses params as the template of every search; Text is
// replaced with each option's query.
func NewHeadHunter(client VacancySearcher, params headhunter.SearchParams, log *zap.Logger) *HeadHunter {
	return &HeadHunter{
		client: client,
		params: params,
		logger: logger.WithFields(log, logger.SourceFields(sourceHeadHunter)...),
	}
}

func (h *HeadHunter) Name() string { return sourceHeadHunter }

func (h *HeadHunter) Fetch(ctx context.Context, q Query) ([]market.Signal, error) {
	var signals []market.Signal

	for _, o := range q.Options {
		params := h.params
		params.Text = o.SearchText()

		vacancies, err := h.client.Search(ctx, &params)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", params.Text, err)
		}

		signals = append(signals, market.Signal{
			OptionID:   o.ID,
			Dimension:  market.DimensionDemand,
			Value:      float64(vacancies.Found),
			Unit:       "vacancies",
			Source:     sourceHeadHunter,
			Confidence: 1,
		})

		stats := vacancies.SalaryStats(h.params.Currency)
		if stats.Count > 0 {
			signals = append(signals, market.Signal{
				OptionID:   o.ID,
				Dimension:  market.DimensionSalary,
				Value:      stats.Mean.InexactFloat64(),
				Unit:       stats.Currency,
				Source:     sourceHeadHunter,
				Confidence: math.Min(1, float64(stats.Count)/salarySampleSize),
			})
		}

		h.logger.Debug("option searched",
			zap.String("option_id", o.ID),
			zap.Int("found", vacancies.Found),
			zap.Int("salaries", stats.Count),
			zap.String("mean_salary", stats.Mean.String()),
		)
	}

	return signals, nil
}
