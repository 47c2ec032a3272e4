// Package api exposes transport-friendly job operations shared by the HTTP
// server, the IPC surface, and the CLI. It owns the DTO shapes and the submit
// flow that stages an upload, records the source artifact, and queues the job.
package api
