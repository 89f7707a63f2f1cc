package export

import (
	"strings"
	"time"

	"github.com/mqtap/mqtap/internal/capture"
)

// Record represents a single exported event row
type Record struct {
	ID           string `csv:"id" parquet:"id" json:"id"`
	Source       string `csv:"source" parquet:"source" json:"source"`
	MessageID    string `csv:"message_id" parquet:"message_id" json:"message_id"`
	Body         string `csv:"body" parquet:"body" json:"body"`
	RawBody      string `csv:"raw_body" parquet:"raw_body" json:"raw_body"`
	IsJSON       bool   `csv:"is_json" parquet:"is_json" json:"is_json"`
	Redelivered  bool   `csv:"redelivered" parquet:"redelivered" json:"redelivered"`
	Replacements int    `csv:"replacements" parquet:"replacements" json:"replacements"`
	ReceivedAt   string `csv:"received_at" parquet:"received_at" json:"received_at"`
}

// Result represents the outcome of one export run
type Result struct {
	Path     string        `json:"path"`
	Format   FileFormat    `json:"format"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case strings.HasSuffix(filename, ".csv"):
		return FormatCSV
	case strings.HasSuffix(filename, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(filename, ".json") || strings.HasSuffix(filename, ".jsonl"):
		return FormatJSON
	default:
		return FormatCSV // Default to CSV
	}
}

// FromEvents converts captured events into export records
func FromEvents(events []capture.Event) []Record {
	records := make([]Record, 0, len(events))
	for _, event := range events {
		records = append(records, Record{
			ID:           event.ID,
			Source:       event.Source,
			MessageID:    event.MessageID,
			Body:         event.Body,
			RawBody:      event.RawBody,
			IsJSON:       event.IsJSON,
			Redelivered:  event.Redelivered,
			Replacements: len(event.Applied),
			ReceivedAt:   event.ReceivedAt.Format(time.RFC3339Nano),
		})
	}
	return records
}

// ToEvents converts exported records back into capture events. Exports
// keep only the replacement count, so Applied comes back empty
func ToEvents(records []Record) []capture.Event {
	events := make([]capture.Event, 0, len(records))
	for _, record := range records {
		receivedAt, _ := time.Parse(time.RFC3339Nano, record.ReceivedAt)
		events = append(events, capture.Event{
			ID:          record.ID,
			Source:      record.Source,
			MessageID:   record.MessageID,
			Body:        record.Body,
			RawBody:     record.RawBody,
			IsJSON:      record.IsJSON,
			Redelivered: record.Redelivered,
			ReceivedAt:  receivedAt,
		})
	}
	return events
}
