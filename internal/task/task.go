package task

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a task
type Status string

// Possible task status values
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusRetry   Status = "retry"
)

// shutdownReason is the error recorded for delayed tasks still waiting when
// the executor stops.
const shutdownReason = "shut down before scheduled start"

// cancelledReason is the error recorded for tasks cancelled before they started.
const cancelledReason = "cancelled"

// IsTerminal reports whether no further transitions are possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailure, StatusRetry:
		return true
	default:
		return false
	}
}

// Result is the externally visible record of a task's progress.
//
// Result is only set when Status is StatusSuccess and Error is only set when
// Status is StatusFailure. CompletedAt is set exactly when Status is terminal.
type Result struct {
	TaskID      string          `json:"task_id"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Retries     int             `json:"retries"`
}

// NewPendingResult returns the initial record written when a task is submitted.
func NewPendingResult(taskID string) *Result {
	return &Result{
		TaskID: taskID,
		Status: StatusPending,
	}
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	if r.Result != nil {
		c.Result = append(json.RawMessage(nil), r.Result...)
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Running returns a copy of r moved to StatusRunning. StartedAt is only set
// the first time the task leaves pending.
func (r *Result) Running(now time.Time) *Result {
	next := r.Clone()
	next.Status = StatusRunning
	if next.StartedAt == nil {
		t := now.UTC()
		next.StartedAt = &t
	}
	return next
}

// Succeeded returns a terminal copy of r carrying the handler output.
func (r *Result) Succeeded(now time.Time, output json.RawMessage) *Result {
	next := r.complete(now)
	next.Status = StatusSuccess
	next.Result = output
	next.Error = ""
	return next
}

// Failed returns a terminal copy of r carrying the failure message. An empty
// message is replaced so that failed records always explain themselves.
func (r *Result) Failed(now time.Time, message string) *Result {
	if message == "" {
		message = "task failed"
	}
	next := r.complete(now)
	next.Status = StatusFailure
	next.Result = nil
	next.Error = message
	return next
}

// complete stamps the completion time, keeping CompletedAt >= StartedAt.
func (r *Result) complete(now time.Time) *Result {
	next := r.Clone()
	t := now.UTC()
	if next.StartedAt == nil {
		// Tasks that never ran (cancelled while pending) start and end together.
		started := t
		next.StartedAt = &started
	} else if t.Before(*next.StartedAt) {
		t = *next.StartedAt
	}
	next.CompletedAt = &t
	return next
}
