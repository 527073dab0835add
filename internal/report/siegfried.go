package report

import (
	"fmt"
	"path"
	"strconv"

	"github.com/starford/bc2as/internal/storage"
)

// IdentificationRow is one file entry from siegfried.csv.
type IdentificationRow struct {
	Filename string
	Modified string // raw timestamp as written by siegfried
	Filesize int64
}

// LoadIdentificationReport reads siegfried.csv for the dataset. The file is
// mandatory; when it is missing the storage NotFoundError is returned.
func LoadIdentificationReport(store storage.Provider, datasetDir string) ([]IdentificationRow, error) {
	p := path.Join(datasetDir, SiegfriedFile)
	rc, err := store.Open(p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := readTable(p, rc, "modified", "filesize")
	if err != nil {
		return nil, err
	}

	out := make([]IdentificationRow, 0, len(t.rows))
	for i, rec := range t.rows {
		raw := t.get(rec, "filesize")
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("report: %s: row %d: invalid filesize %q", p, i+2, raw)
		}
		row := IdentificationRow{
			Modified: t.get(rec, "modified"),
			Filesize: size,
		}
		if _, ok := t.columns["filename"]; ok {
			row.Filename = t.get(rec, "filename")
		}
		out = append(out, row)
	}
	return out, nil
}

// TotalSize sums the filesize column.
func TotalSize(rows []IdentificationRow) int64 {
	var total int64
	for _, r := range rows {
		total += r.Filesize
	}
	return total
}
