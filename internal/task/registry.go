package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Handler is the erased form of a registered task body.
type Handler interface {
	// Validate checks that the payload decodes into the handler's payload
	// type and satisfies its validation rules.
	Validate(payload json.RawMessage) error

	// Invoke runs the task body and returns its JSON-encoded output.
	Invoke(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a raw JSON function to the Handler interface. It
// accepts every payload.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Validate implements Handler.
func (f HandlerFunc) Validate(json.RawMessage) error {
	return nil
}

// Invoke implements Handler.
func (f HandlerFunc) Invoke(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, payload)
}

// Resolver looks up registered handlers by task name. Executors hold a
// Resolver rather than a copy of the registry.
type Resolver interface {
	Resolve(name string) (Handler, error)
}

// Registry maps task names to handlers. It is populated at process start.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// Ensure Registry implements Resolver
var _ Resolver = (*Registry)(nil)

// NewRegistry creates an empty task registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "task_registry"),
	}
}

// Register adds a handler under name. A previous registration for the same
// name is replaced.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		r.logger.Warn("replacing existing task registration", "task_name", name)
	}
	r.handlers[name] = h
	r.logger.Debug("registered task", "task_name", name, "task_count", len(r.handlers))
}

// Resolve returns the handler registered under name.
func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return h, nil
}

// Names returns the registered task names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// payloadValidator is shared by all typed handlers.
var payloadValidator = validator.New()

// Register adds a strongly typed handler to reg. Payloads are decoded into P
// and, when P is a struct, validated with its `validate` tags before the task
// is accepted. The output R is encoded as JSON.
func Register[P any, R any](reg *Registry, name string, fn func(ctx context.Context, payload P) (R, error)) {
	reg.Register(name, &typedHandler[P, R]{fn: fn})
}

type typedHandler[P any, R any] struct {
	fn func(ctx context.Context, payload P) (R, error)
}

func (h *typedHandler[P, R]) Validate(payload json.RawMessage) error {
	_, err := h.decode(payload)
	return err
}

func (h *typedHandler[P, R]) Invoke(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	p, err := h.decode(payload)
	if err != nil {
		return nil, err
	}

	out, err := h.fn(ctx, p)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task output: %w", err)
	}
	return encoded, nil
}

func (h *typedHandler[P, R]) decode(payload json.RawMessage) (P, error) {
	var p P
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	if isStruct(p) {
		if err := payloadValidator.Struct(p); err != nil {
			return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return p, nil
}

// isStruct reports whether v is a struct or a non-nil pointer to one.
func isStruct(v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct
}
