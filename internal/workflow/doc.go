// Package workflow coordinates dubbing jobs: workers claim queued jobs with
// compare-and-swap transitions, run the stage pipeline with per-stage
// timeouts and bounded retry, heartbeat while working, and reclaim jobs
// abandoned by crashed runs.
package workflow
