package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"

	"tonebar/internal/model"
)

const lengthSheet = "Lengths"

var lengthHeader = []string{"Note", "Target (Hz)", "Length (mm)", "Computed (Hz)", "Error (cents)", "Iterations"}

// WriteLengthTable saves length search results as an xlsx workbook with one
// row per note.
func WriteLengthTable(path string, results []model.LengthResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", lengthSheet); err != nil {
		return err
	}
	header := make([]any, len(lengthHeader))
	for i, h := range lengthHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(lengthSheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(lengthSheet, 1, 1, bold); err != nil {
		return err
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.Note,
			round(r.Target, 3),
			round(r.Length*1000, 3),
			round(r.ComputedFreq, 3),
			round(r.ErrorCents, 3),
			r.Iterations,
		}
		if err := f.SetSheetRow(lengthSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(lengthSheet, "A", "F", 15); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save length table %s: %w", path, err)
	}
	return nil
}

// ReadLengthTable loads a workbook written by WriteLengthTable.
func ReadLengthTable(path string) ([]model.LengthResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(lengthSheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("length table %s has no header", path)
	}
	out := make([]model.LengthResult, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < len(lengthHeader) {
			return nil, fmt.Errorf("length table row %d: want %d columns, got %d", i+2, len(lengthHeader), len(row))
		}
		var (
			r   model.LengthResult
			mm  float64
			err error
		)
		r.Note = row[0]
		if r.Target, err = strconv.ParseFloat(row[1], 64); err != nil {
			return nil, fmt.Errorf("length table row %d: %w", i+2, err)
		}
		if mm, err = strconv.ParseFloat(row[2], 64); err != nil {
			return nil, fmt.Errorf("length table row %d: %w", i+2, err)
		}
		r.Length = mm / 1000
		if r.ComputedFreq, err = strconv.ParseFloat(row[3], 64); err != nil {
			return nil, fmt.Errorf("length table row %d: %w", i+2, err)
		}
		if r.ErrorCents, err = strconv.ParseFloat(row[4], 64); err != nil {
			return nil, fmt.Errorf("length table row %d: %w", i+2, err)
		}
		if r.Iterations, err = strconv.Atoi(row[5]); err != nil {
			return nil, fmt.Errorf("length table row %d: %w", i+2, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// WriteLengthTableCSV writes the same columns as WriteLengthTable.
func WriteLengthTableCSV(w io.Writer, results []model.LengthResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(lengthHeader); err != nil {
		return err
	}
	for _, r := range results {
		if err := writer.Write([]string{
			r.Note,
			strconv.FormatFloat(r.Target, 'f', 3, 64),
			strconv.FormatFloat(r.Length*1000, 'f', 3, 64),
			strconv.FormatFloat(r.ComputedFreq, 'f', 3, 64),
			strconv.FormatFloat(r.ErrorCents, 'f', 3, 64),
			strconv.Itoa(r.Iterations),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
