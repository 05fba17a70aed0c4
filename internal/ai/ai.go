// Package ai is the conversational collaborator of the engine: it narrates
// explanations and extracts candidate careers from free-form questions.
package ai

import (
	"context"

	"github.com/spigell/career-minimax/internal/explain"
)

// Generator sends one system instruction and one user message to an LLM and
// returns its text answer.
type Generator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Narrator turns a structured explanation into prose.
type Narrator interface {
	Narrate(ctx context.Context, exp *explain.Explanation) (string, error)
}

// MatrixExtractor asks for a scored career matrix for a question.
type MatrixExtractor interface {
	Extract(ctx context.Context, question string) (*CareerMatrix, error)
}
