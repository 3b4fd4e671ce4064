package tools

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultMaxSheetRows bounds the rows rendered per sheet.
const DefaultMaxSheetRows = 500

// Sheet is one table read from a spreadsheet file.
type Sheet struct {
	Name string
	Rows [][]string
	// Truncated is set when rows beyond the limit were dropped.
	Truncated bool
}

// ReadSpreadsheet reads an xlsx, xlsm, csv or tsv file. When sheet is
// non-empty only that worksheet is returned.
func ReadSpreadsheet(path, sheet string, maxRows int) ([]Sheet, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxSheetRows
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm", ".xltx":
		return readWorkbook(path, sheet, maxRows)
	case ".csv", ".tsv":
		return readDelimited(path, ext, maxRows)
	case ".xls":
		return nil, fmt.Errorf("legacy .xls workbooks are not supported; convert %s to .xlsx or csv", filepath.Base(path))
	default:
		return nil, fmt.Errorf("unsupported spreadsheet type %q", ext)
	}
}

func readWorkbook(path, only string, maxRows int) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		if only != "" && !strings.EqualFold(name, only) {
			continue
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		s := Sheet{Name: name, Rows: rows}
		if len(s.Rows) > maxRows {
			s.Rows = s.Rows[:maxRows]
			s.Truncated = true
		}
		sheets = append(sheets, s)
	}
	if only != "" && len(sheets) == 0 {
		return nil, fmt.Errorf("sheet %q not found (have %s)", only, strings.Join(f.GetSheetList(), ", "))
	}
	return sheets, nil
}

func readDelimited(path, ext string, maxRows int) ([]Sheet, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if ext == ".tsv" {
		r.Comma = '\t'
	}

	s := Sheet{Name: filepath.Base(path)}
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		if len(s.Rows) == maxRows {
			s.Truncated = true
			break
		}
		s.Rows = append(s.Rows, rec)
	}
	return []Sheet{s}, nil
}

// Markdown renders the sheet as a markdown table with the first row as
// the header. Short rows are padded so every row has the same width.
func (s Sheet) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", s.Name)
	if len(s.Rows) == 0 {
		sb.WriteString("(empty)\n")
		return sb.String()
	}

	width := 0
	for _, row := range s.Rows {
		width = max(width, len(row))
	}

	writeRow := func(row []string) {
		cells := make([]string, width)
		for i := range cells {
			if i < len(row) {
				cells[i] = strings.ReplaceAll(strings.TrimSpace(row[i]), "|", `\|`)
			}
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	writeRow(s.Rows[0])
	sb.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, row := range s.Rows[1:] {
		writeRow(row)
	}
	if s.Truncated {
		fmt.Fprintf(&sb, "\n(truncated to %d rows)\n", len(s.Rows))
	}
	return sb.String()
}

func (r *Registry) registerSpreadsheetTools() {
	r.Register(&Tool{
		Name: "read_spreadsheet",
		Description: "Read an Excel workbook (.xlsx) or a CSV/TSV file and return every sheet as a markdown table. " +
			"The first row of each sheet is treated as the header.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Local path of the spreadsheet",
				},
				"sheet": map[string]any{
					"type":        "string",
					"description": "Only read this worksheet (default: all sheets)",
				},
				"max_rows": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum rows per sheet (default %d)", DefaultMaxSheetRows),
				},
			},
			"required": []string{"file_path"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "file_path")
			if path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			sheets, err := ReadSpreadsheet(path, stringArg(args, "sheet"), intArg(args, "max_rows", 0))
			if err != nil {
				return "", err
			}
			parts := make([]string, 0, len(sheets))
			for _, s := range sheets {
				parts = append(parts, s.Markdown())
			}
			return strings.Join(parts, "\n"), nil
		},
	})
}
