// Package task provides the backend-agnostic task execution layer.
//
// Callers register named handlers once at startup and submit work through a
// Manager. The Manager validates the submission and delegates it to an
// Executor: the in-process LightweightExecutor, a distributed executor backed
// by a message broker, or a Router that chooses between the two per task
// name. Every executor reports progress through the same Result record, so
// status, result and cancel queries look identical regardless of where the
// task actually ran.
package task
