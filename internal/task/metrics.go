package task

import (
	"context"
	"fmt"

	"github.com/phrazzld/lingua-api/internal/events"
	"github.com/prometheus/client_golang/prometheus"
)

// unknownTaskName labels events whose task name is not known to the emitter,
// such as cancellations addressed only by ID.
const unknownTaskName = "unknown"

// MetricsHandler is an events.EventHandler that records task lifecycle
// events as Prometheus metrics.
type MetricsHandler struct {
	submitted   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// Ensure MetricsHandler implements events.EventHandler
var _ events.EventHandler = (*MetricsHandler)(nil)

// NewMetricsHandler creates the task metrics and registers them with reg.
func NewMetricsHandler(reg prometheus.Registerer) (*MetricsHandler, error) {
	h := &MetricsHandler{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingua_tasks_submitted_total",
				Help: "Total number of tasks accepted by an executor.",
			},
			[]string{"task_name", "executor"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingua_task_transitions_total",
				Help: "Total number of task status transitions.",
			},
			[]string{"task_name", "executor", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lingua_task_run_duration_seconds",
				Help:    "Task handler execution time in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task_name", "status"},
		),
	}

	for _, c := range []prometheus.Collector{h.submitted, h.transitions, h.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register task metrics: %w", err)
		}
	}
	return h, nil
}

// HandleEvent implements events.EventHandler.
func (h *MetricsHandler) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	name := event.TaskName
	if name == "" {
		name = unknownTaskName
	}

	switch event.Kind {
	case events.KindSubmitted:
		h.submitted.WithLabelValues(name, event.Executor).Inc()
	case events.KindTransition:
		h.transitions.WithLabelValues(name, event.Executor, event.Status).Inc()
		if Status(event.Status).IsTerminal() && event.Duration > 0 {
			h.duration.WithLabelValues(name, event.Status).Observe(event.Duration.Seconds())
		}
	default:
		return fmt.Errorf("unknown task event kind %q", event.Kind)
	}
	return nil
}
