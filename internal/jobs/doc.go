// Package jobs holds the task handlers the service registers at startup.
// Each job is a typed function registered with task.Register, so payloads
// are decoded and validated before a submission is accepted.
package jobs
