package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/errdefs"
	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/store"
)

const maxHistoryLimit = 100

// decisionRequest keeps signals loosely typed so they go through the same
// boundary decoding as file and provider records.
type decisionRequest struct {
	decision.Request
	Signals []map[string]any `json:"signals"`
}

type decisionResponse struct {
	RecordID  string            `json:"record_id"`
	SessionID string            `json:"session_id"`
	Outcome   *decision.Outcome `json:"outcome"`
	Narrative string            `json:"narrative,omitempty"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondEngineError maps the error taxonomy onto HTTP statuses.
func (s *Server) respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errdefs.ErrData), errors.Is(err, errdefs.ErrConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_INPUT",
			"error": err.Error(),
			"field": errdefs.Field(err),
		})
	case errors.Is(err, errdefs.ErrUnsolvableExactly):
		respondError(c, http.StatusUnprocessableEntity, "UNSOLVABLE", err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		s.logger.Error("request failed", zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createDecision(c *gin.Context) {
	var body decisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload: "+err.Error())
		return
	}

	signals, err := market.DecodeSignals(body.Signals)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	if skipped := len(body.Signals) - len(signals); skipped > 0 {
		s.logger.Debug("signals without a value skipped",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Int("skipped", skipped),
		)
	}
	req := body.Request
	req.Signals = signals
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ctx, cancel := contextWithTimeout(c, s.cfg.Timeout)
	defer cancel()

	if s.deps.Screen != nil {
		screened, err := s.deps.Screen(ctx, req)
		if err != nil {
			s.respondEngineError(c, err)
			return
		}
		req = *screened
	}

	outcome, err := s.deps.Decider.Decide(ctx, req)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}

	rec, err := s.deps.Store.Save(ctx, req, outcome)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}

	resp := decisionResponse{RecordID: rec.ID, SessionID: req.SessionID, Outcome: outcome}
	if s.deps.Narrator != nil && c.Query("narrate") == "true" {
		text, err := s.deps.Narrator.Narrate(ctx, outcome.Explanation)
		if err != nil {
			s.logger.Warn("narration failed", zap.String(logger.FieldSession, req.SessionID), zap.Error(err))
		}
		resp.Narrative = text
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) listSessions(c *gin.Context) {
	ids, err := s.deps.Store.Sessions(c.Request.Context())
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": ids})
}

func (s *Server) getSession(c *gin.Context) {
	rec, err := s.deps.Store.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) getHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_INPUT",
				"error": "limit must be an integer between 1 and 100",
				"field": "limit",
			})
			return
		}
		limit = n
	}

	records, err := s.deps.Store.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "records": records})
}
