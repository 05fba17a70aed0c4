// Package api exposes decisions over HTTP for chat, chart and export
// front-ends.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/ai"
	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/store"
)

const (
	defaultListen  = "127.0.0.1:8080"
	defaultRate    = 5
	defaultBurst   = 10
	defaultTimeout = 30 * time.Second
)

// Config is the api section of the configuration file.
type Config struct {
	Listen string  `mapstructure:"listen"`
	Rate   float64 `mapstructure:"rate"`
	Burst  int     `mapstructure:"burst"`
	// Timeout bounds one decision request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Decider is the engine as the server sees it.
type Decider interface {
	Decide(ctx context.Context, req decision.Request) (*decision.Outcome, error)
}

// ScreenFunc filters a request before it reaches the engine.
type ScreenFunc func(ctx context.Context, req decision.Request) (*decision.Request, error)

// Deps are the collaborators of the server. Store, Screen, Narrator and
// JWTSecret are optional.
type Deps struct {
	Decider   Decider
	Store     store.Store
	Screen    ScreenFunc
	Narrator  ai.Narrator
	JWTSecret string
	Logger    *zap.Logger
}

type Server struct {
	Router *gin.Engine
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.Rate <= 0 {
		cfg.Rate = defaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if deps.Store == nil {
		deps.Store = store.Noop{}
	}

	log := logger.WithFields(deps.Logger, zap.String("component", "api"))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(RateLimitMiddleware(newLimiters(cfg.Rate, cfg.Burst), log))

	s := &Server{Router: r, cfg: cfg, deps: deps, logger: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/healthz", s.health)

	v1 := s.Router.Group("/v1")
	if s.deps.JWTSecret != "" {
		v1.Use(AuthMiddleware(s.deps.JWTSecret))
	}
	{
		v1.POST("/decisions", s.createDecision)
		v1.GET("/sessions", s.listSessions)
		v1.GET("/sessions/:id", s.getSession)
		v1.GET("/sessions/:id/history", s.getHistory)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("listen", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("api shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func contextWithTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}
