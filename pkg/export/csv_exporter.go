package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
)

// Section is one titled table of a report.
type Section struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Report is a multi-section tabular document.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Sections    []Section
}

func (r Report) validate() error {
	if len(r.Sections) == 0 {
		return fmt.Errorf("report has no sections")
	}
	for _, section := range r.Sections {
		if len(section.Headers) == 0 {
			return fmt.Errorf("section %q has no headers", section.Title)
		}
	}
	return nil
}

// CSVExporter renders reports as CSV. Sections are separated by a blank record
// and introduced by a single-cell title record.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV bytes for the report.
func (e *CSVExporter) Render(report Report) ([]byte, error) {
	if err := report.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	for i, section := range report.Sections {
		if i > 0 {
			if err := writer.Write([]string{""}); err != nil {
				return nil, fmt.Errorf("write csv separator: %w", err)
			}
		}
		if section.Title != "" {
			if err := writer.Write([]string{section.Title}); err != nil {
				return nil, fmt.Errorf("write csv title: %w", err)
			}
		}
		if err := writer.Write(section.Headers); err != nil {
			return nil, fmt.Errorf("write csv headers: %w", err)
		}
		for _, row := range section.Rows {
			record := make([]string, len(section.Headers))
			copy(record, row)
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
