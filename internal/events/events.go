package events

import (
	"sync"
	"time"
)

// Event types published by the job manager and pipeline executor.
const (
	TypeJobQueued      = "job_queued"
	TypeStageStarted   = "stage_started"
	TypeStageCompleted = "stage_completed"
	TypeStageRetrying  = "stage_retrying"
	TypeStageFailed    = "stage_failed"
	TypeJobDone        = "job_done"
	TypeJobFailed      = "job_failed"
	TypeJobCanceled    = "job_canceled"
)

// Event is a progress notification. Seq is assigned by the bus and increases
// monotonically across all jobs.
type Event struct {
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	JobID     string    `json:"jobId"`
	Stage     string    `json:"stage,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus is an in-memory event fanout with a bounded replay buffer. Publishing
// never blocks: slow subscribers drop events rather than stalling the
// pipeline, and late readers catch up through Since.
type Bus struct {
	mu          sync.Mutex
	seq         int64
	buffer      []Event
	capacity    int
	subscribers map[chan Event]struct{}
}

const defaultCapacity = 1024

// NewBus creates a bus retaining up to capacity recent events for replay.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Bus{
		capacity:    capacity,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish assigns the next sequence number and timestamp, appends the event
// to the replay buffer, and fans it out to live subscribers.
func (b *Bus) Publish(evt Event) Event {
	b.mu.Lock()
	b.seq++
	evt.Seq = b.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.buffer = append(b.buffer, evt)
	if len(b.buffer) > b.capacity {
		b.buffer = b.buffer[len(b.buffer)-b.capacity:]
	}
	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
	return evt
}

// Since returns buffered events with a sequence number greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, evt := range b.buffer {
		if evt.Seq > seq {
			out = append(out, evt)
		}
	}
	return out
}

// JobEvents returns buffered events for one job after seq.
func (b *Bus) JobEvents(jobID string, seq int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, evt := range b.buffer {
		if evt.JobID == jobID && evt.Seq > seq {
			out = append(out, evt)
		}
	}
	return out
}

// LastSeq returns the most recently assigned sequence number.
func (b *Bus) LastSeq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Subscribe registers a live listener. The returned cancel function must be
// called to release the channel; after cancel the channel is closed.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
