package events_test

import (
	"testing"
	"time"

	"overdub/internal/events"
)

func TestPublishAssignsMonotonicSeq(t *testing.T) {
	bus := events.NewBus(16)
	first := bus.Publish(events.Event{Type: events.TypeJobQueued, JobID: "a"})
	second := bus.Publish(events.Event{Type: events.TypeStageStarted, JobID: "a", Stage: "extract"})
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1,2 got %d,%d", first.Seq, second.Seq)
	}
	if first.Timestamp.IsZero() {
		t.Fatal("publish should stamp a timestamp")
	}
}

func TestSinceReturnsOnlyNewer(t *testing.T) {
	bus := events.NewBus(16)
	bus.Publish(events.Event{Type: events.TypeJobQueued, JobID: "a"})
	mark := bus.LastSeq()
	bus.Publish(events.Event{Type: events.TypeStageStarted, JobID: "a", Stage: "extract"})
	bus.Publish(events.Event{Type: events.TypeStageCompleted, JobID: "a", Stage: "extract"})

	got := bus.Since(mark)
	if len(got) != 2 {
		t.Fatalf("expected 2 events after mark, got %d", len(got))
	}
	if got[0].Seq <= mark || got[1].Seq <= got[0].Seq {
		t.Fatalf("events out of order: %+v", got)
	}
}

func TestJobEventsFiltersByJob(t *testing.T) {
	bus := events.NewBus(16)
	bus.Publish(events.Event{Type: events.TypeJobQueued, JobID: "a"})
	bus.Publish(events.Event{Type: events.TypeJobQueued, JobID: "b"})
	bus.Publish(events.Event{Type: events.TypeJobDone, JobID: "a"})

	got := bus.JobEvents("a", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 events for job a, got %d", len(got))
	}
	for _, evt := range got {
		if evt.JobID != "a" {
			t.Fatalf("wrong job in result: %+v", evt)
		}
	}
}

func TestReplayBufferIsBounded(t *testing.T) {
	bus := events.NewBus(4)
	for i := 0; i < 10; i++ {
		bus.Publish(events.Event{Type: events.TypeStageStarted, JobID: "a"})
	}
	got := bus.Since(0)
	if len(got) != 4 {
		t.Fatalf("expected buffer capped at 4, got %d", len(got))
	}
	if got[0].Seq != 7 {
		t.Fatalf("expected oldest retained seq 7, got %d", got[0].Seq)
	}
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	bus := events.NewBus(16)
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	published := bus.Publish(events.Event{Type: events.TypeJobDone, JobID: "a"})
	select {
	case got := <-ch:
		if got.Seq != published.Seq || got.Type != events.TypeJobDone {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := events.NewBus(16)
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(events.Event{Type: events.TypeStageStarted, JobID: "a"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	bus := events.NewBus(16)
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // double cancel is safe

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	bus.Publish(events.Event{Type: events.TypeJobQueued, JobID: "a"})
}
