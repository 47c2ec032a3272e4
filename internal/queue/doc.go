// Package queue persists dubbing jobs in SQLite and enforces the job state
// machine. Status changes go through compare-and-swap transitions so
// concurrent workers never double-claim a job, and stage outputs are recorded
// as write-once artifact references.
package queue
