package workflow

import (
	"context"

	"overdub/internal/queue"
	"overdub/internal/stage"
)

// Status is a point-in-time snapshot of the executor and queue.
type Status struct {
	Running bool
	Workers int
	Queue   queue.HealthSummary
	Stages  []stage.Health
	LastErr string
}

// Status reports executor state, queue counts, and per-stage readiness.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	summary, err := m.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}

	healths := make([]stage.Health, 0, len(m.stages))
	for _, handler := range m.stages {
		healths = append(healths, handler.HealthCheck(ctx))
	}

	status := Status{
		Running: m.Running(),
		Workers: m.cfg.Workflow.Workers,
		Queue:   summary,
		Stages:  healths,
	}
	if err := m.LastError(); err != nil {
		status.LastErr = err.Error()
	}
	return status, nil
}

// Healthy reports whether every stage is ready.
func (s Status) Healthy() bool {
	for _, health := range s.Stages {
		if !health.Ready {
			return false
		}
	}
	return true
}
