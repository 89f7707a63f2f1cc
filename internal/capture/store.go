package capture

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mqtap/mqtap/internal/config"
	"github.com/mqtap/mqtap/internal/logger"
)

// Event is one captured broker message after processing
type Event struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	MessageID   string    `json:"message_id"`
	Body        string    `json:"body"`
	RawBody     string    `json:"raw_body"`
	IsJSON      bool      `json:"is_json"`
	Applied     []string  `json:"applied"`
	Redelivered bool      `json:"redelivered"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Stats tracks store counters since startup
type Stats struct {
	TotalEvents       int64     `json:"total_events"`
	TotalReplacements int64     `json:"total_replacements"`
	JSONEvents        int64     `json:"json_events"`
	Dropped           int64     `json:"dropped"`
	Buffered          int       `json:"buffered"`
	Capacity          int       `json:"capacity"`
	StartedAt         time.Time `json:"started_at"`
	LastEventTime     time.Time `json:"last_event_time"`
}

// Store keeps the most recent events in a fixed-size ring buffer
type Store struct {
	mu       sync.RWMutex
	events   []Event
	head     int
	size     int
	capacity int
	stats    Stats
	logger   *logger.Logger
}

// New creates an event store with the configured capacity
func New(cfg config.CaptureConfig, log *logger.Logger) *Store {
	capacity := cfg.MaxEvents
	if capacity <= 0 {
		capacity = 500
	}

	store := &Store{
		events:   make([]Event, capacity),
		capacity: capacity,
		stats:    Stats{Capacity: capacity, StartedAt: time.Now()},
		logger:   log,
	}

	log.Info("Event store initialized", zap.Int("capacity", capacity))
	return store
}

// Add appends an event, evicting the oldest once the buffer is full
func (s *Store) Add(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[s.head] = event
	s.head = (s.head + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	} else {
		s.stats.Dropped++
	}

	s.stats.TotalEvents++
	s.stats.TotalReplacements += int64(len(event.Applied))
	if event.IsJSON {
		s.stats.JSONEvents++
	}
	s.stats.LastEventTime = event.ReceivedAt
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns everything buffered
func (s *Store) Recent(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.size {
		limit = s.size
	}

	events := make([]Event, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - 1 - i + 2*s.capacity) % s.capacity
		events = append(events, s.events[idx])
	}
	return events
}

// Get looks up a buffered event by its ID
func (s *Store) Get(id string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < s.size; i++ {
		idx := (s.head - 1 - i + 2*s.capacity) % s.capacity
		if s.events[idx].ID == id {
			return s.events[idx], true
		}
	}
	return Event{}, false
}

// Clear drops all buffered events, leaving the lifetime counters intact
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]Event, s.capacity)
	s.head = 0
	s.size = 0

	s.logger.Info("Event store cleared")
}

// Len returns the number of buffered events
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// GetStats returns a snapshot of the store counters
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Buffered = s.size
	return stats
}
