// Package daemon hosts the long-running overdub process: it enforces
// single-instance execution with a file lock, runs the workflow manager, and
// serves the HTTP upload and job APIs.
package daemon
