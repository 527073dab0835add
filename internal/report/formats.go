package report

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/starford/bc2as/internal/models"
	"github.com/starford/bc2as/internal/storage"
)

// LoadFormatSummary reads csv_reports/formats.csv for the dataset. A missing
// file is not an error: ok is false and rows is nil.
func LoadFormatSummary(store storage.Provider, datasetDir string) (rows []models.FormatCount, ok bool, err error) {
	p := path.Join(datasetDir, FormatSummaryFile)
	exists, err := store.Exists(p)
	if err != nil || !exists {
		return nil, false, err
	}
	rc, err := store.Open(p)
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	t, err := readTable(p, rc, "Format", "Count")
	if err != nil {
		return nil, false, err
	}

	rows = make([]models.FormatCount, 0, len(t.rows))
	for i, rec := range t.rows {
		count, err := parseCount(t.get(rec, "Count"))
		if err != nil {
			return nil, false, fmt.Errorf("report: %s: row %d: %w", p, i+2, err)
		}
		rows = append(rows, models.FormatCount{
			Format: t.get(rec, "Format"),
			Count:  count,
		})
	}
	return rows, true, nil
}

// parseCount accepts integers and integral floats such as "3.0", which
// spreadsheet round-trips tend to produce.
func parseCount(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative count %q", s)
		}
		return n, nil
	}
	if whole, frac, found := strings.Cut(s, "."); found && strings.Trim(frac, "0") == "" {
		return parseCount(whole)
	}
	return 0, fmt.Errorf("invalid count %q", s)
}
