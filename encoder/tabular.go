package encoder

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"transmute/failures"
)

const sheetName = "Sheet1"

func readCSV(op, path string) ([][]string, error) {
	text, err := readText(op, path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, failures.New(failures.KindDecode, op, fmt.Errorf("parse csv: %w", err))
	}
	return records, nil
}

// cellValue stores plain decimal cells as numbers. Values with a leading
// zero (zip codes, ids) stay text, as do NaN and infinities.
func cellValue(s string) any {
	t := strings.TrimSpace(s)
	if t == "" || !isDecimal(t) {
		return s
	}
	if len(t) > 1 && t[0] == '0' && t[1] != '.' {
		return s
	}
	n, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return s
	}
	return n
}

func isDecimal(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune("0123456789+-.eE", r)
	}) < 0
}

func csvToXLSX(_ context.Context, in, out string, _ Params) (string, error) {
	const op = string(OpCSVToXLSX)
	records, err := readCSV(op, in)
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return "", failures.New(failures.KindInternal, op, err)
		}
		row := make([]any, len(record))
		for j, v := range record {
			row[j] = cellValue(v)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return "", failures.New(failures.KindInternal, op, err)
		}
	}

	if err := f.SaveAs(out); err != nil {
		return "", ioErr(op, fmt.Errorf("save xlsx: %w", err))
	}
	return out, nil
}

// csvToPDF renders the rows as a bordered table, header row in bold.
func csvToPDF(_ context.Context, in, out string, _ Params) (string, error) {
	const op = string(OpCSVToPDF)
	records, err := readCSV(op, in)
	if err != nil {
		return "", err
	}

	cols := 0
	for _, r := range records {
		cols = max(cols, len(r))
	}
	orientation := "P"
	if cols > 6 {
		orientation = "L"
	}

	pdf := fpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFillColor(230, 230, 230)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if cols > 0 {
		pageW, _ := pdf.GetPageSize()
		left, _, right, _ := pdf.GetMargins()
		colW := (pageW - left - right) / float64(cols)

		for i, record := range records {
			if i == 0 {
				pdf.SetFont("Helvetica", "B", 9)
			} else {
				pdf.SetFont("Helvetica", "", 9)
			}
			for c := 0; c < cols; c++ {
				v := ""
				if c < len(record) {
					v = fitCell(pdf, tr(record[c]), colW-2)
				}
				pdf.CellFormat(colW, 6, v, "1", 0, "L", i == 0, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", ioErr(op, fmt.Errorf("write pdf: %w", err))
	}
	return out, nil
}

// fitCell truncates s so it fits in width, marking the cut with "..".
func fitCell(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"..") > width {
		s = s[:len(s)-1]
	}
	return s + ".."
}
