package generation

import "context"

// Feedback is one evaluation criterion with a suggestion for the learner.
type Feedback struct {
	Criteria          string   `json:"criteria"`
	ReferenceSentence string   `json:"reference_sentence"`
	Suggestion        string   `json:"suggestion"`
	Examples          []string `json:"examples"`
}

// Evaluation is the language model's assessment of a learner's text.
type Evaluation struct {
	Feedback []Feedback `json:"feedback"`
	Model    string     `json:"model"`
}

// Evaluator defines the interface for evaluating learner-written text.
// Version: 1.0
type Evaluator interface {
	// EvaluateText assesses text written about topic and returns feedback
	// on grammar, vocabulary, phrasing, and fluency.
	EvaluateText(ctx context.Context, text, topic string) (*Evaluation, error)
}
