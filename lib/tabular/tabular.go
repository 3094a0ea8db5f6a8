// Package tabular loads delimited text into tables of string columns.
//
// Upstream CSVs frequently carry leading "banner" lines (titles, vintage
// notes, source attribution) before the real header row; Parse detects and
// skips them before handing the remainder to the csv reader.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"
)

type Row map[string]string

// Table is an ordered sequence of rows keyed by column name. An empty Table
// is a valid value and means "present but no matching data"; absence of a
// table entirely is expressed with optional.Option at adapter boundaries.
type Table struct {
	Columns []string
	Rows    []Row
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse table: %s", e.Err)
	}
	return fmt.Sprintf("parse table %s: %s", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var bannerKeywords = []string{"vintage", "note", "source", "#"}

// countBannerLines scans from the top of the file and returns how many
// leading lines are banners. A line is a banner when its first comma cell,
// after trimming whitespace and surrounding quotes, does not begin with a
// digit and starts (case-insensitively) with a known banner keyword. The
// scan stops at the first line whose first cell is empty or digit-leading:
// that line and everything after it is header+data.
func countBannerLines(lines []string) int {
	skip := 0
	for _, line := range lines {
		first, _, _ := strings.Cut(line, ",")
		first = strings.Trim(strings.TrimSpace(first), `"`)

		if first == "" || unicode.IsDigit(rune(first[0])) {
			break
		}

		isBanner := false
		lower := strings.ToLower(first)
		for _, kw := range bannerKeywords {
			if strings.HasPrefix(lower, kw) {
				isBanner = true
				break
			}
		}
		if !isBanner {
			break
		}
		skip++
	}
	return skip
}

// Parse reads delimited text into a Table, skipping leading banner lines.
// The first non-banner line is the header.
func Parse(content string) (*Table, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	skip := countBannerLines(lines)
	if skip > 0 {
		slog.Info("skipping banner rows", "count", skip)
	}

	r := csv.NewReader(strings.NewReader(strings.Join(lines[skip:], "\n")))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	return FromRecords(records)
}

// FromRecords builds a Table from a header row followed by data rows, the
// shape Census responses arrive in after JSON decoding.
func FromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, &ParseError{Err: fmt.Errorf("no header row")}
	}

	header := records[0]
	table := &Table{Columns: header}
	for _, record := range records[1:] {
		row := Row{}
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// ReadCSV loads a delimited file from disk, skipping banner lines.
func ReadCSV(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	table, err := Parse(string(data))
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
			return nil, perr
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	return table, nil
}

// Encode renders the table back to CSV, header first, columns in order.
func (t *Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			record[i] = row[col]
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}
