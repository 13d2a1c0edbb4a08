// Package api exposes the task execution layer over HTTP: submitting tasks,
// reading their status records and requesting cancellation.
package api
