package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter dispatches task events synchronously to handlers
// registered in process. A handler may subscribe to a subset of kinds.
type InMemoryEventEmitter struct {
	mu            sync.RWMutex
	subscriptions []subscription
	logger        *slog.Logger
}

// subscription pairs a handler with the kinds it receives. A nil kinds set
// matches every kind.
type subscription struct {
	handler EventHandler
	kinds   map[string]struct{}
}

func (s subscription) matches(kind string) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Ensure InMemoryEventEmitter implements EventEmitter
var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With("component", "task_event_emitter"),
	}
}

// RegisterHandler subscribes handler to every event kind.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.Subscribe(handler)
}

// Subscribe registers handler for the given kinds, or for every kind when
// none are given.
func (e *InMemoryEventEmitter) Subscribe(handler EventHandler, kinds ...string) {
	sub := subscription{handler: handler}
	if len(kinds) > 0 {
		sub.kinds = make(map[string]struct{}, len(kinds))
		for _, kind := range kinds {
			sub.kinds[kind] = struct{}{}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriptions = append(e.subscriptions, sub)
	e.logger.Debug("event handler subscribed", "kinds", kinds, "handler_count", len(e.subscriptions))
}

// EmitEvent delivers event to every matching handler in registration order.
// A failing or panicking handler does not stop delivery; the errors of all
// failed handlers are joined.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	e.mu.RLock()
	subs := e.subscriptions
	e.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if !sub.matches(event.Kind) {
			continue
		}
		if err := deliver(ctx, sub.handler, event); err != nil {
			e.logger.Error("event handler failed",
				"error", err,
				"event_id", event.ID,
				"event_kind", event.Kind,
				"task_id", event.TaskID)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, handler EventHandler, event *TaskEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return handler.HandleEvent(ctx, event)
}
