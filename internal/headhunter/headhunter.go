// Package headhunter is a small read-only client for the public hh.ru
// vacancy search, used to derive demand and salary signals.
package headhunter

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/logger"
)

const (
	apiURL    = "https://api.hh.ru"
	userAgent = "spigell/career-minimax (spigelly@gmail.com)"
	// Max value for search per page.
	perPage = "100"
	// hh.ru refuses to page past 2000 results, so there is no point in more.
	defaultMaxPages = 20
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	// MaxPages caps how many result pages a search walks through.
	MaxPages int
}

// New creates a client. The token is optional: vacancy search works
// anonymously, a token only raises the rate limit.
func New(log *zap.Logger, token string) *Client {
	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger.WithFields(log, zap.String("component", "headhunter")),
		UserAgent: userAgent,
		MaxPages:  defaultMaxPages,
	}
}

func (c *Client) Search(ctx context.Context, params *SearchParams) (*Vacancies, error) {
	return c.search(ctx, params)
}
