package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"google.golang.org/genai"

	"github.com/phrazzld/lingua-api/internal/config"
	"github.com/phrazzld/lingua-api/internal/generation"
)

// defaultPrompt is the evaluation prompt sent with every request.
const defaultPrompt = `You are an English tutor evaluating a student's writing about "{{.Topic}}".
Analyze the text for:
1. Grammar accuracy
2. Vocabulary usage
3. Phrase construction
4. Overall fluency

Provide specific feedback with suggestions for improvement.
Return a JSON array of objects with the fields: criteria, reference_sentence, suggestion, examples.

Text: {{.Text}}`

// promptData represents the data passed to the prompt template
type promptData struct {
	Text  string
	Topic string
}

// contentGenerator is the subset of the genai models service used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Evaluator implements generation.Evaluator using the Gemini API.
type Evaluator struct {
	models contentGenerator
	model  string
	prompt *template.Template
	logger *slog.Logger
}

// Ensure Evaluator implements generation.Evaluator
var _ generation.Evaluator = (*Evaluator)(nil)

// NewEvaluator creates a Gemini-backed evaluator from the LLM configuration.
func NewEvaluator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Evaluator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newEvaluator(client.Models, cfg.ModelName, logger)
}

func newEvaluator(models contentGenerator, model string, logger *slog.Logger) (*Evaluator, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	prompt, err := template.New("evaluation").Parse(defaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", generation.ErrInvalidConfig, err)
	}

	return &Evaluator{
		models: models,
		model:  model,
		prompt: prompt,
		logger: logger.With("component", "gemini_evaluator"),
	}, nil
}

// EvaluateText implements generation.Evaluator.
func (e *Evaluator) EvaluateText(ctx context.Context, text, topic string) (*generation.Evaluation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, generation.ErrEmptyText
	}
	if topic == "" {
		topic = "General writing"
	}

	var prompt bytes.Buffer
	if err := e.prompt.Execute(&prompt, promptData{Text: text, Topic: topic}); err != nil {
		return nil, fmt.Errorf("failed to execute prompt template: %w", err)
	}

	e.logger.DebugContext(ctx, "calling Gemini API", "model", e.model, "text_length", len(text))

	resp, err := e.models.GenerateContent(ctx, e.model, genai.Text(prompt.String()), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.3),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrEvaluationFailed, err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		e.logger.WarnContext(ctx, "evaluation blocked", "reason", resp.PromptFeedback.BlockReason)
		return nil, fmt.Errorf("%w: %s", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return nil, fmt.Errorf("%w: empty response", generation.ErrEvaluationFailed)
	}

	return &generation.Evaluation{
		Feedback: parseFeedback(content, e.logger),
		Model:    e.model,
	}, nil
}

// parseFeedback decodes the model's JSON feedback. A single object is
// accepted as a one-item list, and non-JSON output becomes one general
// suggestion.
func parseFeedback(content string, logger *slog.Logger) []generation.Feedback {
	var items []generation.Feedback
	if err := json.Unmarshal([]byte(content), &items); err == nil {
		return items
	}

	var single generation.Feedback
	err := json.Unmarshal([]byte(content), &single)
	if err == nil {
		return []generation.Feedback{single}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		logger.Warn("could not parse JSON from evaluation response")
	}
	return []generation.Feedback{{
		Criteria:          "general",
		ReferenceSentence: "Overall evaluation",
		Suggestion:        content,
		Examples:          []string{},
	}}
}
