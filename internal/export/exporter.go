package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Exporter writes captured events to dataset files
type Exporter struct {
	logger *zap.Logger
}

// New creates a new exporter
func New(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// Export writes records to path in the format implied by its extension
func (e *Exporter) Export(path string, records []Record) (*Result, error) {
	start := time.Now()
	format := DetectFileFormat(path)

	e.logger.Info("Starting export",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("records", len(records)))

	var err error
	switch format {
	case FormatCSV:
		err = e.exportCSV(path, records)
	case FormatParquet:
		err = e.exportParquet(path, records)
	case FormatJSON:
		err = e.exportJSON(path, records)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{
		Path:     path,
		Format:   format,
		Records:  len(records),
		Duration: time.Since(start),
	}

	e.logger.Info("Export completed",
		zap.String("path", path),
		zap.Int("records", result.Records),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// exportCSV writes records as a CSV file with a header row
func (e *Exporter) exportCSV(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "source", "message_id", "body", "raw_body", "is_json", "redelivered", "replacements", "received_at"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.ID,
			record.Source,
			record.MessageID,
			record.Body,
			record.RawBody,
			strconv.FormatBool(record.IsJSON),
			strconv.FormatBool(record.Redelivered),
			strconv.Itoa(record.Replacements),
			record.ReceivedAt,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	return nil
}

// exportJSON writes records as one JSON object per line
func (e *Exporter) exportJSON(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to write JSON record: %w", err)
		}
	}

	return nil
}

// exportParquet writes records as a Parquet file
func (e *Exporter) exportParquet(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create Parquet file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewWriter(file, parquet.SchemaOf(Record{}))
	for _, record := range records {
		if err := writer.Write(&record); err != nil {
			return fmt.Errorf("failed to write Parquet record: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize Parquet file: %w", err)
	}

	return nil
}

// Read loads exported records back from a dataset file (CSV, Parquet, or JSON)
func (e *Exporter) Read(path string) ([]Record, error) {
	format := DetectFileFormat(path)

	switch format {
	case FormatCSV:
		return e.readCSV(path)
	case FormatParquet:
		return e.readParquet(path)
	case FormatJSON:
		return e.readJSON(path)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// readCSV reads records from a CSV export
func (e *Exporter) readCSV(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 9

	// Read header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			e.logger.Warn("Failed to read CSV record", zap.Error(err))
			continue
		}

		isJSON, _ := strconv.ParseBool(row[5])
		redelivered, _ := strconv.ParseBool(row[6])
		replacements, _ := strconv.Atoi(row[7])

		records = append(records, Record{
			ID:           row[0],
			Source:       row[1],
			MessageID:    row[2],
			Body:         row[3],
			RawBody:      row[4],
			IsJSON:       isJSON,
			Redelivered:  redelivered,
			Replacements: replacements,
			ReceivedAt:   row[8],
		})
	}

	return records, nil
}

// readJSON reads records from a JSON-lines export
func (e *Exporter) readJSON(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	var records []Record
	for {
		var record Record
		err := decoder.Decode(&record)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON record: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// readParquet reads records from a Parquet export
func (e *Exporter) readParquet(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var records []Record
	for {
		var record Record
		err := reader.Read(&record)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Parquet record: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}
