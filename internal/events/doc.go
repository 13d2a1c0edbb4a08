// Package events carries task lifecycle notifications from executors to
// interested subscribers (metrics, audit logging) without coupling the
// executors to those subscribers.
package events
