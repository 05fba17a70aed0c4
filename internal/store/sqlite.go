package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/logger"
)

const defaultListLimit = 20

// SQLite stores records in a single SQLite file.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

// NewSQLite opens (or creates) the database at path and runs migrations.
func NewSQLite(path string, log *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: db, now: time.Now, logger: logger.WithFields(log, zap.String("component", "store"))}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.Info("sqlite store opened", zap.String("path", path))
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id            TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL,
			created_at    INTEGER NOT NULL,
			chosen_option TEXT,
			mode          TEXT,
			request       TEXT NOT NULL,
			outcome       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", strings.TrimSpace(stmt)[:30], err)
		}
	}
	return nil
}

func newRecord(req decision.Request, out *decision.Outcome, now time.Time) *Record {
	rec := &Record{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		CreatedAt: now.UTC(),
		Request:   req,
		Outcome:   out,
	}
	if out != nil && out.Result != nil {
		rec.ChosenOption = out.Result.ChosenOption
		rec.Mode = string(out.Result.Mode)
	}
	return rec
}

func (s *SQLite) Save(ctx context.Context, req decision.Request, out *decision.Outcome) (*Record, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, errors.New("session id is required")
	}
	if out == nil {
		return nil, errors.New("outcome is required")
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	outJSON, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal outcome: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := newRecord(req, out, s.now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, session_id, created_at, chosen_option, mode, request, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.CreatedAt.UnixNano(), rec.ChosenOption, rec.Mode, string(reqJSON), string(outJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("insert decision: %w", err)
	}

	s.logger.Debug("decision saved",
		zap.String("record_id", rec.ID),
		zap.String(logger.FieldSession, rec.SessionID),
		zap.String("chosen_option", rec.ChosenOption),
	)
	return rec, nil
}

func (s *SQLite) Load(ctx context.Context, sessionID string) (*Record, error) {
	records, err := s.List(ctx, sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	return &records[0], nil
}

func (s *SQLite) List(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, created_at, chosen_option, mode, request, outcome
		 FROM decisions WHERE session_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec              Record
			created          int64
			chosen, mode     sql.NullString
			reqJSON, outJSON string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &created, &chosen, &mode, &reqJSON, &outJSON); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		rec.ChosenOption = chosen.String
		rec.Mode = mode.String

		if err := json.Unmarshal([]byte(reqJSON), &rec.Request); err != nil {
			return nil, fmt.Errorf("decode request of %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(outJSON), &rec.Outcome); err != nil {
			return nil, fmt.Errorf("decode outcome of %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

func (s *SQLite) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM decisions ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
