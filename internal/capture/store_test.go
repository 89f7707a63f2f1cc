package capture

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mqtap/mqtap/internal/config"
	"github.com/mqtap/mqtap/internal/logger"
)

func newTestStore(capacity int) *Store {
	log := &logger.Logger{Logger: zap.NewNop()}
	return New(config.CaptureConfig{MaxEvents: capacity}, log)
}

func makeEvent(i int) Event {
	return Event{
		ID:         fmt.Sprintf("event-%d", i),
		Source:     "test-stream",
		MessageID:  fmt.Sprintf("%d-0", i),
		Body:       fmt.Sprintf(`{"n":%d}`, i),
		IsJSON:     true,
		ReceivedAt: time.Now(),
	}
}

// TestStore tests the ring buffer event store
func TestStore(t *testing.T) {
	t.Run("RecentNewestFirst", func(t *testing.T) {
		store := newTestStore(10)
		for i := 0; i < 3; i++ {
			store.Add(makeEvent(i))
		}

		events := store.Recent(0)
		if len(events) != 3 {
			t.Fatalf("Expected 3 events, got %d", len(events))
		}
		for i, want := range []string{"event-2", "event-1", "event-0"} {
			if events[i].ID != want {
				t.Errorf("Recent[%d].ID = %q, want %q", i, events[i].ID, want)
			}
		}
	})

	t.Run("RecentHonorsLimit", func(t *testing.T) {
		store := newTestStore(10)
		for i := 0; i < 5; i++ {
			store.Add(makeEvent(i))
		}

		events := store.Recent(2)
		if len(events) != 2 {
			t.Fatalf("Expected 2 events, got %d", len(events))
		}
		if events[0].ID != "event-4" || events[1].ID != "event-3" {
			t.Errorf("Unexpected order: %s, %s", events[0].ID, events[1].ID)
		}
	})

	t.Run("EvictsOldestAtCapacity", func(t *testing.T) {
		store := newTestStore(3)
		for i := 0; i < 5; i++ {
			store.Add(makeEvent(i))
		}

		if store.Len() != 3 {
			t.Fatalf("Expected 3 buffered events, got %d", store.Len())
		}

		events := store.Recent(0)
		for i, want := range []string{"event-4", "event-3", "event-2"} {
			if events[i].ID != want {
				t.Errorf("Recent[%d].ID = %q, want %q", i, events[i].ID, want)
			}
		}

		if _, ok := store.Get("event-0"); ok {
			t.Error("Evicted event should not be retrievable")
		}

		if got := store.GetStats().Dropped; got != 2 {
			t.Errorf("Dropped = %d, want 2", got)
		}
	})

	t.Run("GetByID", func(t *testing.T) {
		store := newTestStore(10)
		store.Add(makeEvent(1))
		store.Add(makeEvent(2))

		event, ok := store.Get("event-1")
		if !ok {
			t.Fatal("Expected to find event-1")
		}
		if event.Body != `{"n":1}` {
			t.Errorf("Unexpected body: %s", event.Body)
		}

		if _, ok := store.Get("nope"); ok {
			t.Error("Unknown ID should not resolve")
		}
	})

	t.Run("ClearKeepsCounters", func(t *testing.T) {
		store := newTestStore(10)
		for i := 0; i < 4; i++ {
			store.Add(makeEvent(i))
		}

		store.Clear()

		if store.Len() != 0 {
			t.Errorf("Expected empty store after Clear, got %d", store.Len())
		}
		if len(store.Recent(0)) != 0 {
			t.Error("Recent should be empty after Clear")
		}

		stats := store.GetStats()
		if stats.TotalEvents != 4 {
			t.Errorf("Lifetime total should survive Clear, got %d", stats.TotalEvents)
		}
		if stats.Buffered != 0 {
			t.Errorf("Buffered should be 0 after Clear, got %d", stats.Buffered)
		}
	})

	t.Run("StatsCounters", func(t *testing.T) {
		store := newTestStore(10)

		jsonEvent := makeEvent(1)
		jsonEvent.Applied = []string{"UserId → {user_id}", "Email → {email}"}
		store.Add(jsonEvent)

		plainEvent := makeEvent(2)
		plainEvent.IsJSON = false
		store.Add(plainEvent)

		stats := store.GetStats()
		if stats.TotalEvents != 2 {
			t.Errorf("TotalEvents = %d, want 2", stats.TotalEvents)
		}
		if stats.TotalReplacements != 2 {
			t.Errorf("TotalReplacements = %d, want 2", stats.TotalReplacements)
		}
		if stats.JSONEvents != 1 {
			t.Errorf("JSONEvents = %d, want 1", stats.JSONEvents)
		}
		if stats.Capacity != 10 {
			t.Errorf("Capacity = %d, want 10", stats.Capacity)
		}
		if stats.Buffered != 2 {
			t.Errorf("Buffered = %d, want 2", stats.Buffered)
		}
	})
}
