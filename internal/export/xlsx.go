package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/datanex/staycohort/internal/cohort"
)

const (
	cohortSheet  = "Cohort"
	summarySheet = "Summary"
)

// XLSXWriter writes records to a workbook with a cohort sheet and a yearly
// summary sheet. The workbook is saved on Close.
type XLSXWriter struct {
	path         string
	nationalCode string
	file         *excelize.File
	headerStyle  int
	dateStyle    int
	row          int
	records      []cohort.Record
}

// NewXLSXWriter creates the workbook and writes the cohort header.
func NewXLSXWriter(path, nationalCode string) (*XLSXWriter, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(cohortSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	dateFormat := "yyyy-mm-dd hh:mm"
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFormat})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create date style: %w", err)
	}

	w := &XLSXWriter{
		path:         path,
		nationalCode: nationalCode,
		file:         f,
		headerStyle:  headerStyle,
		dateStyle:    dateStyle,
		row:          1,
	}
	if err := w.writeHeader(cohortSheet, header()); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends records to the cohort sheet.
func (w *XLSXWriter) Write(records []cohort.Record) error {
	values := make([]any, len(columns))
	for i := range records {
		w.row++
		for j, c := range columns {
			values[j] = c.value(&records[i])
		}
		cell, err := excelize.CoordinatesToCellName(1, w.row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := w.file.SetSheetRow(cohortSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", w.row, err)
		}
	}
	w.records = append(w.records, records...)
	return nil
}

// Close writes the summary sheet, freezes the headers and saves the workbook.
func (w *XLSXWriter) Close() error {
	defer w.file.Close()

	if err := w.styleDates(); err != nil {
		return err
	}
	if err := w.writeSummary(cohort.Summarize(w.records, w.nationalCode)); err != nil {
		return err
	}
	for _, sheet := range []string{cohortSheet, summarySheet} {
		if err := w.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze panes: %w", err)
		}
	}

	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (w *XLSXWriter) writeHeader(sheet string, names []string) error {
	for col, name := range names {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := w.file.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := w.file.SetCellStyle(sheet, cell, cell, w.headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	last, err := excelize.ColumnNumberToName(len(names))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}
	return w.file.SetColWidth(sheet, "A", last, 18)
}

// styleDates applies the date format to the timestamp columns.
func (w *XLSXWriter) styleDates() error {
	if w.row < 2 {
		return nil
	}
	for i, c := range columns {
		switch c.name {
		case "admission", "discharge", "effective_discharge", "exitus_date", "next_admission":
		default:
			continue
		}
		top, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		bottom, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := w.file.SetCellStyle(cohortSheet, top, bottom, w.dateStyle); err != nil {
			return fmt.Errorf("failed to set date style: %w", err)
		}
	}
	return nil
}

func (w *XLSXWriter) writeSummary(s cohort.Summary) error {
	if _, err := w.file.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	table := summaryTable(s)
	if err := w.writeHeader(summarySheet, table[0]); err != nil {
		return err
	}
	if err := w.file.SetColWidth(summarySheet, "A", "A", 40); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	for i, line := range table[1:] {
		values := make([]any, len(line))
		for j, v := range line {
			values[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := w.file.SetSheetRow(summarySheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	return nil
}
