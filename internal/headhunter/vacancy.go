package headhunter

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Vacancies struct {
	Items []*Vacancy
	// Found is the total number of matches reported by hh.ru, which can be
	// larger than len(Items).
	Found int
}

type Vacancy struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Area struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"area,omitempty"`
	Salary     *Salary `json:"salary,omitempty"`
	Experience struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"experience,omitempty"`
	Schedule struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"schedule,omitempty"`
	Employer struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"employer,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	Archived     bool   `json:"archived,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
}

type Salary struct {
	From     int    `json:"from,omitempty"`
	To       int    `json:"to,omitempty"`
	Currency string `json:"currency,omitempty"`
	Gross    bool   `json:"gross,omitempty"`
}

// Midpoint returns the middle of the salary fork, or the only bound given.
func (s *Salary) Midpoint() (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	from, to := decimal.NewFromInt(int64(s.From)), decimal.NewFromInt(int64(s.To))
	switch {
	case s.From > 0 && s.To > 0:
		return from.Add(to).Div(decimal.NewFromInt(2)), true
	case s.From > 0:
		return from, true
	case s.To > 0:
		return to, true
	default:
		return decimal.Zero, false
	}
}

// SalaryStats summarizes published salaries in one currency.
type SalaryStats struct {
	Currency string
	Count    int
	Mean     decimal.Decimal
}

// SalaryStats averages the salary midpoints of vacancies paid in currency.
// An empty currency accepts the currency of the first salary seen.
func (v *Vacancies) SalaryStats(currency string) SalaryStats {
	stats := SalaryStats{Currency: strings.ToUpper(strings.TrimSpace(currency))}
	sum := decimal.Zero

	for _, vacancy := range v.Items {
		if vacancy.Archived || vacancy.Salary == nil {
			continue
		}
		mid, ok := vacancy.Salary.Midpoint()
		if !ok {
			continue
		}
		cur := strings.ToUpper(vacancy.Salary.Currency)
		if stats.Currency == "" {
			stats.Currency = cur
		}
		if cur != stats.Currency {
			continue
		}
		sum = sum.Add(mid)
		stats.Count++
	}

	if stats.Count > 0 {
		stats.Mean = sum.Div(decimal.NewFromInt(int64(stats.Count))).Round(2)
	}

	return stats
}

func (v *Vacancies) Len() int {
	return len(v.Items)
}
