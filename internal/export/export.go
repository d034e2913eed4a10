// Package export writes chart datasets as CSV or XLSX downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"datastory/internal/pipeline"
)

// Formats accepted by the chart endpoints.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ContentTypes maps download formats to their media type.
var ContentTypes = map[string]string{
	FormatCSV:  "text/csv; charset=utf-8",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Sheet is one tabular dataset. Cells hold ints or strings.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// FromDashboard returns the dataset behind one chart.
func FromDashboard(kind string, d pipeline.Dashboard) (Sheet, bool) {
	switch kind {
	case pipeline.KindYearly:
		s := Sheet{Name: "Yearly", Header: []string{"year", "total", "male", "female", "unknown"}}
		for _, y := range d.Yearly.Years {
			s.Rows = append(s.Rows, []any{y.Year, y.Total, y.Male, y.Female, y.Unknown})
		}
		return s, true
	case pipeline.KindSubstances:
		s := Sheet{Name: "Substances", Header: []string{"year", "substance", "deaths"}}
		for _, c := range d.Substances {
			s.Rows = append(s.Rows, []any{c.Year, c.Substance, c.Count})
		}
		return s, true
	case pipeline.KindCombinations:
		s := Sheet{Name: "Combinations", Header: []string{"rank", "combination", "deaths"}}
		for i, c := range d.Combinations.Top {
			s.Rows = append(s.Rows, []any{i + 1, c.Signature, c.Count})
		}
		if d.Combinations.Other.Count > 0 {
			s.Rows = append(s.Rows, []any{"", fmt.Sprintf("%s (%d)", d.Combinations.Other.Signature, d.Combinations.Other.Distinct), d.Combinations.Other.Count})
		}
		if d.Combinations.NoSubstance > 0 {
			s.Rows = append(s.Rows, []any{"", "No substance recorded", d.Combinations.NoSubstance})
		}
		return s, true
	case pipeline.KindZIPs:
		s := Sheet{Name: "ZIP codes", Header: []string{"zip", "deaths"}}
		for _, c := range d.ZIPs.Counts {
			s.Rows = append(s.Rows, []any{c.ZIP, c.Count})
		}
		if d.ZIPs.Missing > 0 {
			s.Rows = append(s.Rows, []any{"missing", d.ZIPs.Missing})
		}
		if d.ZIPs.Unmapped > 0 {
			s.Rows = append(s.Rows, []any{"unmapped", d.ZIPs.Unmapped})
		}
		return s, true
	}
	return Sheet{}, false
}

// WriteCSV writes the sheet with its header row.
func WriteCSV(w io.Writer, s Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header); err != nil {
		return err
	}
	line := make([]string, len(s.Header))
	for _, row := range s.Rows {
		for i := range line {
			line[i] = ""
			if i < len(row) {
				line[i] = cell(row[i])
			}
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}

// WriteXLSX writes every sheet into one workbook with a bold header row.
func WriteXLSX(w io.Writer, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("xlsx: no sheets")
	}
	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()
	bold, err := wb.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	for i, s := range sheets {
		if i == 0 {
			if err := wb.SetSheetName(wb.GetSheetName(0), s.Name); err != nil {
				return fmt.Errorf("xlsx rename sheet: %w", err)
			}
		} else if _, err := wb.NewSheet(s.Name); err != nil {
			return fmt.Errorf("xlsx new sheet %s: %w", s.Name, err)
		}
		if err := writeSheet(wb, s, bold); err != nil {
			return err
		}
	}
	return wb.Write(w)
}

func writeSheet(wb *excelize.File, s Sheet, headerStyle int) error {
	for col, h := range s.Header {
		axis, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := wb.SetCellValue(s.Name, axis, h); err != nil {
			return fmt.Errorf("xlsx %s %s: %w", s.Name, axis, err)
		}
	}
	if len(s.Header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(s.Header), 1)
		if err := wb.SetCellStyle(s.Name, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("xlsx header style: %w", err)
		}
	}
	for r, row := range s.Rows {
		for col, v := range row {
			axis, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return err
			}
			if err := wb.SetCellValue(s.Name, axis, v); err != nil {
				return fmt.Errorf("xlsx %s %s: %w", s.Name, axis, err)
			}
		}
	}
	return nil
}
