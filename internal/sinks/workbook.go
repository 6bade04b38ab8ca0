package sinks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"callscore-go/internal/store"
	"callscore-go/internal/types"
)

const reportSheet = "Scores"

// WorkbookHeader is the column layout of local reports.
func WorkbookHeader() []string {
	h := []string{"№", "Менеджер", "Телефон", "Дата", "Тип звонка", "Ссылка на заказ"}
	for _, c := range types.Criteria {
		h = append(h, string(c))
	}
	return append(h, "Запись", "Транскрипт")
}

// WorkbookSink appends rows to a local XLSX report, creating it with a
// header row on first use.
type WorkbookSink struct {
	Path string
}

func NewWorkbookSink(path string) *WorkbookSink {
	return &WorkbookSink{Path: path}
}

func (w *WorkbookSink) Submit(_ context.Context, row Row) error {
	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(reportSheet)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	values := []interface{}{row.Number, row.Manager, row.Phone, row.Date, row.CallType, row.OrderLink}
	for _, c := range types.Criteria {
		values = append(values, row.Scores[c])
	}
	values = append(values, row.RecordingURL, row.Transcript)
	if err := f.SetSheetRow(reportSheet, cell, &values); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	if err := f.SaveAs(w.Path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// Rows counts the data rows already in the report. A missing report has
// none.
func (w *WorkbookSink) Rows() (int, error) {
	if !store.Exists(w.Path) {
		return 0, nil
	}
	f, err := excelize.OpenFile(w.Path)
	if err != nil {
		return 0, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(reportSheet)
	if err != nil {
		return 0, fmt.Errorf("read report: %w", err)
	}
	if len(rows) <= 1 {
		return 0, nil
	}
	return len(rows) - 1, nil
}

func (w *WorkbookSink) open() (*excelize.File, error) {
	if store.Exists(w.Path) {
		f, err := excelize.OpenFile(w.Path)
		if err != nil {
			return nil, fmt.Errorf("open report: %w", err)
		}
		return f, nil
	}
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		f.Close()
		return nil, err
	}
	header := make([]interface{}, 0, len(WorkbookHeader()))
	for _, h := range WorkbookHeader() {
		header = append(header, h)
	}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
