package task

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
)

// RoutingPolicy decides which executor handles a task name.
type RoutingPolicy struct {
	heavy              map[string]struct{}
	distributedEnabled bool
}

// NewRoutingPolicy builds a policy from the heavy task names and whether a
// distributed backend is configured.
func NewRoutingPolicy(heavyTasks []string, distributedEnabled bool) RoutingPolicy {
	heavy := make(map[string]struct{}, len(heavyTasks))
	for _, name := range heavyTasks {
		if name != "" {
			heavy[name] = struct{}{}
		}
	}
	return RoutingPolicy{
		heavy:              heavy,
		distributedEnabled: distributedEnabled,
	}
}

// IsHeavy reports whether name is designated for distributed execution.
func (p RoutingPolicy) IsHeavy(name string) bool {
	_, ok := p.heavy[name]
	return ok
}

// DistributedEnabled reports whether the policy allows distributed routing.
func (p RoutingPolicy) DistributedEnabled() bool {
	return p.distributedEnabled
}

// HeavyTasks returns the heavy task names in sorted order.
func (p RoutingPolicy) HeavyTasks() []string {
	names := make([]string, 0, len(p.heavy))
	for name := range p.heavy {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Router is an Executor that sends heavy tasks to the distributed executor
// and everything else to the lightweight one, and merges queries across
// both. Callers never need to know which backend produced a task ID.
type Router struct {
	lightweight Executor
	distributed Executor
	policy      atomic.Pointer[RoutingPolicy]
	logger      *slog.Logger
}

// Ensure Router implements Executor and Stopper
var (
	_ Executor = (*Router)(nil)
	_ Stopper  = (*Router)(nil)
)

// NewRouter creates a router. distributed may be nil when no broker is
// configured, in which case every task runs on the lightweight executor.
func NewRouter(lightweight, distributed Executor, policy RoutingPolicy, logger *slog.Logger) *Router {
	r := &Router{
		lightweight: lightweight,
		distributed: distributed,
		logger:      logger.With("component", "task_router"),
	}
	r.policy.Store(&policy)
	return r
}

// Policy returns the routing policy currently in effect.
func (r *Router) Policy() RoutingPolicy {
	return *r.policy.Load()
}

// Reload atomically replaces the routing policy.
func (r *Router) Reload(policy RoutingPolicy) {
	r.policy.Store(&policy)
	r.logger.Info("routing policy reloaded",
		"heavy_tasks", policy.HeavyTasks(),
		"distributed_enabled", policy.DistributedEnabled())
}

// Submit implements Executor.
func (r *Router) Submit(ctx context.Context, inv Invocation, opts SubmitOptions) (string, error) {
	return r.route(inv.Name).Submit(ctx, inv, opts)
}

// route picks the executor for a task name.
func (r *Router) route(name string) Executor {
	policy := r.policy.Load()
	if !policy.IsHeavy(name) {
		return r.lightweight
	}
	if policy.DistributedEnabled() && r.distributed != nil {
		return r.distributed
	}
	r.logger.Warn("heavy task falling back to lightweight execution, no distributed backend configured",
		"task_name", name)
	return r.lightweight
}

// GetResult implements Executor. The lightweight executor is consulted
// first, then the distributed one.
func (r *Router) GetResult(ctx context.Context, taskID string) (*Result, error) {
	result, lwErr := r.lightweight.GetResult(ctx, taskID)
	if result != nil {
		return result, nil
	}
	if lwErr != nil {
		r.logger.Warn("lightweight result lookup failed", "task_id", taskID, "error", lwErr)
	}

	if r.distributed == nil {
		return nil, lwErr
	}

	result, err := r.distributed.GetResult(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, lwErr
	}
	return result, nil
}

// Cancel implements Executor. The cancel goes to whichever executor holds a
// record for the task, probing the lightweight executor first.
func (r *Router) Cancel(ctx context.Context, taskID string) (bool, error) {
	result, err := r.lightweight.GetResult(ctx, taskID)
	if err != nil {
		r.logger.Warn("lightweight result lookup failed", "task_id", taskID, "error", err)
	}
	if result != nil || r.distributed == nil {
		return r.lightweight.Cancel(ctx, taskID)
	}
	return r.distributed.Cancel(ctx, taskID)
}

// Stop implements Stopper by stopping whichever backends hold work of their
// own.
func (r *Router) Stop(ctx context.Context) error {
	var errs []error
	for _, backend := range []Executor{r.lightweight, r.distributed} {
		if s, ok := backend.(Stopper); ok {
			errs = append(errs, s.Stop(ctx))
		}
	}
	return errors.Join(errs...)
}
