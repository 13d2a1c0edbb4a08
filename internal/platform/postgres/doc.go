// Package postgres provides a PostgreSQL implementation of task.ResultStore
// for deployments that want task records to survive Redis restarts. It also
// owns the embedded schema migrations for the task_results table.
package postgres
