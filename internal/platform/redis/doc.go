// Package redis provides Redis-backed implementations of the storage
// interfaces used by the task layer: a task.ResultStore relying on native
// key expiry, and the notification sink used by the send_notification job.
package redis
