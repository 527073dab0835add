// Package report loads the per-dataset reports written by Brunnhilde:
// the siegfried identification CSV, the format summary CSV and the optional
// DFXML file-metadata document.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Report locations relative to a dataset directory.
const (
	SiegfriedFile     = "siegfried.csv"
	FormatSummaryFile = "csv_reports/formats.csv"
	DFXMLFile         = "dfxml.xml"
)

// table is a parsed CSV with a header index. Only the first occurrence of a
// duplicated header name is addressable.
type table struct {
	source  string
	columns map[string]int
	rows    [][]string
}

func readTable(source string, r io.Reader, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("report: %s: empty file", source)
		}
		return nil, fmt.Errorf("report: %s: read header: %w", source, err)
	}

	t := &table{source: source, columns: make(map[string]int, len(header))}
	for i, name := range header {
		key := normalizeHeader(name)
		if _, dup := t.columns[key]; !dup {
			t.columns[key] = i
		}
	}
	for _, col := range required {
		if _, ok := t.columns[normalizeHeader(col)]; !ok {
			return nil, fmt.Errorf("report: %s: missing required column %q", source, col)
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("report: %s: %w", source, err)
		}
		if isBlank(rec) {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// get returns the trimmed value of col in row, or "" when the row is short.
func (t *table) get(row []string, col string) string {
	i := t.columns[normalizeHeader(col)]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(strings.TrimSpace(s))
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
