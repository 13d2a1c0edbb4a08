package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrEvaluationFailed is returned when text evaluation fails for any general reason
	ErrEvaluationFailed = errors.New("failed to evaluate text")

	// ErrEmptyText is returned when there is no text to evaluate
	ErrEmptyText = errors.New("text to evaluate cannot be empty")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrInvalidConfig is returned when the evaluator configuration is invalid
	ErrInvalidConfig = errors.New("invalid evaluator configuration")
)
