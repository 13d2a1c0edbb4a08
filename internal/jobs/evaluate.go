package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/lingua-api/internal/generation"
)

// ErrEvaluatorUnavailable is returned by evaluate_text when no language
// model is configured.
var ErrEvaluatorUnavailable = errors.New("text evaluator not configured")

// EvaluatePayload is a learner's text to assess.
type EvaluatePayload struct {
	ResourceID string `json:"resource_id"`
	Text       string `json:"text" validate:"required"`
	Topic      string `json:"topic"`
}

// EvaluateResult is the output of evaluate_text.
type EvaluateResult struct {
	ResourceID string                `json:"resource_id,omitempty"`
	Feedback   []generation.Feedback `json:"feedback"`
	Model      string                `json:"model"`
}

// TextEvaluator runs evaluate_text against a language model.
type TextEvaluator struct {
	evaluator generation.Evaluator
}

// NewTextEvaluator creates the evaluate_text job. evaluator may be nil, in
// which case every run fails.
func NewTextEvaluator(evaluator generation.Evaluator) *TextEvaluator {
	return &TextEvaluator{evaluator: evaluator}
}

// Evaluate is the evaluate_text handler.
func (j *TextEvaluator) Evaluate(ctx context.Context, p EvaluatePayload) (EvaluateResult, error) {
	if j.evaluator == nil {
		return EvaluateResult{}, ErrEvaluatorUnavailable
	}

	eval, err := j.evaluator.EvaluateText(ctx, p.Text, p.Topic)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("evaluation failed: %w", err)
	}

	return EvaluateResult{
		ResourceID: p.ResourceID,
		Feedback:   eval.Feedback,
		Model:      eval.Model,
	}, nil
}
