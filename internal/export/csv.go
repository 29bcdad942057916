package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/datanex/staycohort/internal/cohort"
)

// utf8BOM lets spreadsheet tools detect the encoding.
const utf8BOM = "\ufeff"

// CSVWriter writes records as CSV and the yearly summary to a sibling file.
type CSVWriter struct {
	path         string
	nationalCode string
	file         *os.File
	writer       *csv.Writer
	records      []cohort.Record
}

// NewCSVWriter creates the file at path and writes the header row.
func NewCSVWriter(path, nationalCode string) (*CSVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create csv file: %w", err)
	}

	w := &CSVWriter{
		path:         path,
		nationalCode: nationalCode,
		file:         file,
		writer:       csv.NewWriter(file),
	}
	if _, err := file.WriteString(utf8BOM); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := w.writer.Write(header()); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	return w, nil
}

// Write appends records.
func (w *CSVWriter) Write(records []cohort.Record) error {
	row := make([]string, len(columns))
	for i := range records {
		for j, c := range columns {
			row[j] = formatCell(c.value(&records[i]))
		}
		if err := w.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	w.records = append(w.records, records...)
	return nil
}

// Close flushes the records file and writes the summary file.
func (w *CSVWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close csv file: %w", err)
	}
	return writeSummaryCSV(summaryPath(w.path), cohort.Summarize(w.records, w.nationalCode))
}

func writeSummaryCSV(path string, s cohort.Summary) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	if _, err := file.WriteString(utf8BOM); err != nil {
		file.Close()
		return fmt.Errorf("failed to write summary: %w", err)
	}

	w := csv.NewWriter(file)
	if err := w.WriteAll(summaryTable(s)); err != nil {
		file.Close()
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return file.Close()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.Format(timeLayout)
	default:
		return fmt.Sprint(x)
	}
}
