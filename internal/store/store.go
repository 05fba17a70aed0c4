// Package store persists decision outcomes per session. The engine never
// touches it; callers save what Decide returned.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/career-minimax/internal/decision"
)

var ErrNotFound = errors.New("not found")

// Record is one stored decision.
type Record struct {
	ID           string            `json:"id"`
	SessionID    string            `json:"session_id"`
	CreatedAt    time.Time         `json:"created_at"`
	ChosenOption string            `json:"chosen_option"`
	Mode         string            `json:"mode"`
	Request      decision.Request  `json:"request"`
	Outcome      *decision.Outcome `json:"outcome"`
}

type Store interface {
	Save(ctx context.Context, req decision.Request, out *decision.Outcome) (*Record, error)
	// Load returns the newest record of a session or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*Record, error)
	// List returns up to limit records of a session, newest first.
	List(ctx context.Context, sessionID string, limit int) ([]Record, error)
	// Sessions returns every session id with at least one record.
	Sessions(ctx context.Context) ([]string, error)
	Close() error
}

// Noop keeps nothing.
type Noop struct{}

func (Noop) Save(_ context.Context, req decision.Request, out *decision.Outcome) (*Record, error) {
	return newRecord(req, out, time.Now()), nil
}

func (Noop) Load(context.Context, string) (*Record, error) { return nil, ErrNotFound }

func (Noop) List(context.Context, string, int) ([]Record, error) { return nil, nil }

func (Noop) Sessions(context.Context) ([]string, error) { return nil, nil }

func (Noop) Close() error { return nil }
