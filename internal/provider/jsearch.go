package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/market"
)

const (
	sourceJSearch      = "jsearch"
	jsearchURL         = "https://jsearch.p.rapidapi.com"
	jsearchHost        = "jsearch.p.rapidapi.com"
	jsearchConfidence  = 0.6
	DimensionRemote    = "remote_flexibility"
	defaultJSearchRate = 1
)

// JSearchConfig configures the RapidAPI JSearch provider.
type JSearchConfig struct {
	APIKey   string  `mapstructure:"api-key"`
	BaseURL  string  `mapstructure:"base-url"`
	NumPages int     `mapstructure:"num-pages"`
	Rate     float64 `mapstructure:"rate"`
}

// JSearch derives demand, salary and remote share from RapidAPI JSearch
// listings. Requests are paced by a token bucket since the free plan is
// limited per second.
type JSearch struct {
	cfg        JSearchConfig
	HTTPClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewJSearch(cfg JSearchConfig, log *zap.Logger) (*JSearch, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("jsearch api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = jsearchURL
	}
	if cfg.NumPages <= 0 {
		cfg.NumPages = 1
	}
	if cfg.Rate <= 0 {
		cfg.Rate = defaultJSearchRate
	}

	return &JSearch{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		logger:     logger.WithFields(log, logger.SourceFields(sourceJSearch)...),
	}, nil
}

func (j *JSearch) Name() string { return sourceJSearch }

type jsearchResponse struct {
	Status string       `json:"status"`
	Data   []jsearchJob `json:"data"`
}

type jsearchJob struct {
	Title          string   `json:"job_title"`
	Employer       string   `json:"employer_name"`
	IsRemote       bool     `json:"job_is_remote"`
	MinSalary      *float64 `json:"job_min_salary"`
	MaxSalary      *float64 `json:"job_max_salary"`
	SalaryCurrency string   `json:"job_salary_currency"`
	SalaryPeriod   string   `json:"job_salary_period"`
}

// annualSalary returns the yearly salary midpoint of a listing.
func (job jsearchJob) annualSalary() (decimal.Decimal, bool) {
	var low, high decimal.Decimal
	switch {
	case job.MinSalary != nil && job.MaxSalary != nil:
		low, high = decimal.NewFromFloat(*job.MinSalary), decimal.NewFromFloat(*job.MaxSalary)
	case job.MinSalary != nil:
		low = decimal.NewFromFloat(*job.MinSalary)
		high = low
	case job.MaxSalary != nil:
		high = decimal.NewFromFloat(*job.MaxSalary)
		low = high
	default:
		return decimal.Zero, false
	}

	mid := low.Add(high).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return decimal.Zero, false
	}

	switch strings.ToUpper(job.SalaryPeriod) {
	case "HOUR":
		mid = mid.Mul(decimal.NewFromInt(2080))
	case "WEEK":
		mid = mid.Mul(decimal.NewFromInt(52))
	case "MONTH":
		mid = mid.Mul(decimal.NewFromInt(12))
	}

	return mid, true
}

func (j *JSearch) Fetch(ctx context.Context, q Query) ([]market.Signal, error) {
	var signals []market.Signal

	for _, o := range q.Options {
		jobs, err := j.search(ctx, o.SearchText())
		if err != nil {
			return nil, err
		}
		if len(jobs) == 0 {
			j.logger.Debug("no listings", zap.String("option_id", o.ID))
			continue
		}

		remote := 0
		sum, count := decimal.Zero, 0
		currency := ""
		for _, job := range jobs {
			if job.IsRemote {
				remote++
			}
			salary, ok := job.annualSalary()
			if !ok {
				continue
			}
			if currency == "" {
				currency = strings.ToUpper(job.SalaryCurrency)
			}
			if strings.ToUpper(job.SalaryCurrency) != currency {
				continue
			}
			sum = sum.Add(salary)
			count++
		}

		signals = append(signals,
			market.Signal{
				OptionID:   o.ID,
				Dimension:  market.DimensionDemand,
				Value:      float64(len(jobs)),
				Unit:       "listings",
				Source:     sourceJSearch,
				Confidence: jsearchConfidence,
			},
			market.Signal{
				OptionID:   o.ID,
				Dimension:  DimensionRemote,
				Value:      float64(remote) / float64(len(jobs)),
				Unit:       "share",
				Source:     sourceJSearch,
				Confidence: jsearchConfidence,
			},
		)

		if count > 0 {
			mean := sum.Div(decimal.NewFromInt(int64(count))).Round(2)
			signals = append(signals, market.Signal{
				OptionID:   o.ID,
				Dimension:  market.DimensionSalary,
				Value:      mean.InexactFloat64(),
				Unit:       currency + "/year",
				Source:     sourceJSearch,
				Confidence: jsearchConfidence * float64(count) / float64(len(jobs)),
			})
		}
	}

	return signals, nil
}

func (j *JSearch) search(ctx context.Context, query string) ([]jsearchJob, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("num_pages", fmt.Sprint(j.cfg.NumPages))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(j.cfg.BaseURL, "/")+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", j.cfg.APIKey)
	req.Header.Set("X-RapidAPI-Host", jsearchHost)

	j.logger.Debug("make request", zap.String("query", query))
	resp, err := j.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jsearch %q: bad status: %s", query, resp.Status)
	}

	var body jsearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode jsearch response: %w", err)
	}

	return body.Data, nil
}
