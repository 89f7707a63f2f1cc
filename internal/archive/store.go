package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mqtap/mqtap/internal/capture"
	"github.com/mqtap/mqtap/internal/config"
)

// Store persists processed events to PostgreSQL
type Store struct {
	db        *sqlx.DB
	logger    *zap.Logger
	batchSize int

	mu      sync.Mutex
	pending []capture.Event
}

// Stats summarizes the archived event table
type Stats struct {
	TotalEvents int64     `json:"total_events"`
	LatestEvent time.Time `json:"latest_event"`
}

// eventRow mirrors one mqtap_events record
type eventRow struct {
	ID          string         `db:"id"`
	Source      string         `db:"source"`
	MessageID   string         `db:"message_id"`
	Body        string         `db:"body"`
	RawBody     string         `db:"raw_body"`
	IsJSON      bool           `db:"is_json"`
	Applied     pq.StringArray `db:"applied"`
	Redelivered bool           `db:"redelivered"`
	ReceivedAt  time.Time      `db:"received_at"`
}

// NewStore creates an archive store and ensures its schema exists
func NewStore(cfg config.ArchiveConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	store := &Store{
		db:        db,
		logger:    logger,
		batchSize: batchSize,
		pending:   make([]capture.Event, 0, batchSize),
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}

	logger.Info("Event archive initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("batch_size", batchSize),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return store, nil
}

// initialize checks the database connection and ensures the events table
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS mqtap_events (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			message_id  TEXT NOT NULL,
			body        TEXT NOT NULL,
			raw_body    TEXT NOT NULL,
			is_json     BOOLEAN NOT NULL DEFAULT FALSE,
			applied     TEXT[] NOT NULL DEFAULT '{}',
			redelivered BOOLEAN NOT NULL DEFAULT FALSE,
			received_at TIMESTAMPTZ NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure events table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS idx_mqtap_events_received_at ON mqtap_events (received_at DESC)`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to ensure received_at index: %w", err)
	}

	return nil
}

// Add buffers an event and flushes the buffer once it reaches the batch size
func (s *Store) Add(ctx context.Context, event capture.Event) error {
	s.mu.Lock()
	s.pending = append(s.pending, event)
	if len(s.pending) < s.batchSize {
		s.mu.Unlock()
		return nil
	}

	batch := s.pending
	s.pending = make([]capture.Event, 0, s.batchSize)
	s.mu.Unlock()

	return s.BatchInsert(ctx, batch)
}

// Flush writes out any buffered events
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = make([]capture.Event, 0, s.batchSize)
	s.mu.Unlock()

	return s.BatchInsert(ctx, batch)
}

// BatchInsert adds multiple events in one statement, skipping duplicate IDs
func (s *Store) BatchInsert(ctx context.Context, events []capture.Event) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()

	valueStrings := make([]string, 0, len(events))
	valueArgs := make([]interface{}, 0, len(events)*9)

	for i, event := range events {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			i*9+1, i*9+2, i*9+3, i*9+4, i*9+5, i*9+6, i*9+7, i*9+8, i*9+9))
		valueArgs = append(valueArgs,
			event.ID,
			event.Source,
			event.MessageID,
			event.Body,
			event.RawBody,
			event.IsJSON,
			pq.Array(event.Applied),
			event.Redelivered,
			event.ReceivedAt,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO mqtap_events (id, source, message_id, body, raw_body, is_json, applied, redelivered, received_at)
		VALUES %s
		ON CONFLICT (id) DO NOTHING`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		s.logger.Error("Batch insert failed", zap.Error(err), zap.Int("events", len(events)))
		return fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		inserted = int64(len(events))
	}

	s.logger.Debug("Events archived",
		zap.Int64("inserted", inserted),
		zap.Int64("duplicates_skipped", int64(len(events))-inserted),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// Recent returns the most recently archived events, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]capture.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, source, message_id, body, raw_body, is_json, applied, redelivered, received_at
		FROM mqtap_events
		ORDER BY received_at DESC
		LIMIT $1`

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query archived events: %w", err)
	}

	events := make([]capture.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, capture.Event{
			ID:          row.ID,
			Source:      row.Source,
			MessageID:   row.MessageID,
			Body:        row.Body,
			RawBody:     row.RawBody,
			IsJSON:      row.IsJSON,
			Applied:     []string(row.Applied),
			Redelivered: row.Redelivered,
			ReceivedAt:  row.ReceivedAt,
		})
	}

	return events, nil
}

// CountSince counts archived events received at or after the given time
func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM mqtap_events WHERE received_at >= $1`
	if err := s.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("failed to count archived events: %w", err)
	}
	return count, nil
}

// GetStats returns archive table statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `SELECT COUNT(*), COALESCE(MAX(received_at), 'epoch'::timestamptz) FROM mqtap_events`
	err := s.db.QueryRowContext(ctx, query).Scan(&stats.TotalEvents, &stats.LatestEvent)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get archive stats: %w", err)
	}

	return stats, nil
}

// Close flushes buffered events and closes the database connection
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Flush(ctx); err != nil {
		s.logger.Warn("Failed to flush pending events on close", zap.Error(err))
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	// Simple masking - replace password with ***
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
