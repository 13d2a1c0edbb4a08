// Package distributed runs tasks on an external Redis-backed broker using
// asynq. The Executor enqueues invocations and reads their state back from
// the broker; the Worker is the asynq handler that runs registered task
// handlers in a separate worker process.
//
// The broker tracks each task's state natively. A small JSON envelope
// written through asynq's result writer carries what the broker does not:
// the handler output, the first failure message, and the first start time.
package distributed
