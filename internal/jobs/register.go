package jobs

import (
	"log/slog"

	"github.com/phrazzld/lingua-api/internal/generation"
	"github.com/phrazzld/lingua-api/internal/task"
)

// Task names
const (
	CalculateRatingTask  = "calculate_rating"
	EvaluateTextTask     = "evaluate_text"
	SendNotificationTask = "send_notification"
)

// Dependencies are the collaborators jobs need. Nil fields disable the
// features that depend on them.
type Dependencies struct {
	Evaluator generation.Evaluator
	Sink      NotificationSink
	Logger    *slog.Logger
}

// Register adds every job to reg.
func Register(reg *task.Registry, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	task.Register(reg, CalculateRatingTask, CalculateRating)
	task.Register(reg, EvaluateTextTask, NewTextEvaluator(deps.Evaluator).Evaluate)
	task.Register(reg, SendNotificationTask, NewNotifier(deps.Sink, logger).Send)
}
