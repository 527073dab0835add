// Package testutil provides shared test helpers for building triage trees.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/bc2as/internal/models"
)

// FileEntry is one siegfried.csv row.
type FileEntry struct {
	Name     string
	Size     int64
	Modified string
}

// Dataset describes the reports to write into one dataset directory.
// Empty strings mean the report is absent.
type Dataset struct {
	Siegfried string
	Formats   string
	DFXML     string
}

// SiegfriedCSV renders entries in siegfried's CSV layout.
func SiegfriedCSV(entries ...FileEntry) string {
	var b strings.Builder
	b.WriteString("filename,filesize,modified,errors,namespace,id,format,version,mime,basis,warning\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s,%d,%s,,pronom,fmt/18,Acrobat PDF 1.4,1.4,application/pdf,,\n", e.Name, e.Size, e.Modified)
	}
	return b.String()
}

// FormatsCSV renders a Brunnhilde format summary. An empty Format becomes an
// empty cell.
func FormatsCSV(rows ...models.FormatCount) string {
	var b strings.Builder
	b.WriteString("Format,Count\n")
	for _, r := range rows {
		format := r.Format
		if strings.Contains(format, ",") {
			format = `"` + format + `"`
		}
		fmt.Fprintf(&b, "%s,%d\n", format, r.Count)
	}
	return b.String()
}

// DFXML renders a DFXML document with one fileobject per mtime. An empty
// mtime produces a fileobject without an mtime element. When volume is true
// the fileobjects are wrapped in a volume element, as for disk images.
func DFXML(volume bool, mtimes ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<dfxml xmlns="http://www.forensicswiki.org/wiki/Category:Digital_Forensics_XML" version="1.0">` + "\n")
	if volume {
		b.WriteString("<volume offset=\"0\">\n")
	}
	for i, m := range mtimes {
		fmt.Fprintf(&b, "<fileobject><filename>file%d</filename>", i)
		if m != "" {
			if i%2 == 0 {
				fmt.Fprintf(&b, `<mtime prec="100">%s</mtime>`, m)
			} else {
				fmt.Fprintf(&b, "<mtime>%s</mtime>", m)
			}
		}
		b.WriteString("</fileobject>\n")
	}
	if volume {
		b.WriteString("</volume>\n")
	}
	b.WriteString("</dfxml>\n")
	return b.String()
}

// WriteDataset creates root/project/dataset with the given reports and
// returns the dataset path relative to root.
func WriteDataset(t *testing.T, root, project, dataset string, d Dataset) string {
	t.Helper()
	rel := filepath.Join(project, dataset)
	dir := filepath.Join(root, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(name, content string) {
		if content == "" {
			return
		}
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("siegfried.csv", d.Siegfried)
	write(filepath.Join("csv_reports", "formats.csv"), d.Formats)
	write("dfxml.xml", d.DFXML)
	// Brunnhilde always leaves a report.html; keeps report-less datasets non-empty.
	write("report.html", "<html></html>")
	return filepath.ToSlash(rel)
}
