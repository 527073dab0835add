// Package derive computes the descriptive facts for one dataset directory
// from its Brunnhilde reports.
package derive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/bc2as/internal/apperr"
	"github.com/starford/bc2as/internal/models"
	"github.com/starford/bc2as/internal/prompt"
	"github.com/starford/bc2as/internal/report"
	"github.com/starford/bc2as/internal/storage"
)

// ErrSkip is returned by Derive when the operator declined to process a
// dataset. It is an outcome, not a failure.
var ErrSkip = errors.New("dataset skipped")

// FallbackQuestion is asked when no DFXML timestamps are available.
const FallbackQuestion = "Continue processing this dataset using Siegfried timestamps?"

const bytesPerMegabyte = 1048576

var dateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Engine derives DatasetFacts. It is safe to reuse across datasets but not
// concurrently, since confirm may block on a terminal.
type Engine struct {
	store   storage.Provider
	confirm prompt.Confirmer
	logger  *slog.Logger
}

// NewEngine creates an Engine reading reports from store and asking confirm
// whenever it would have to fall back to siegfried timestamps.
func NewEngine(store storage.Provider, confirm prompt.Confirmer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, confirm: confirm, logger: logger}
}

// Derive computes the facts for the dataset at datasetDir (relative to the
// store root). It returns ErrSkip when the operator declines the siegfried
// fallback.
func (e *Engine) Derive(ctx context.Context, datasetDir string) (*models.DatasetFacts, error) {
	name := path.Base(datasetDir)
	log := e.logger.With(slog.String("dataset", datasetDir))

	ident, err := report.LoadIdentificationReport(e.store, datasetDir)
	if err != nil {
		return nil, err
	}

	facts := &models.DatasetFacts{
		Identifier:     Identifier(name),
		Directory:      name,
		TotalSizeBytes: report.TotalSize(ident),
		DateSource:     models.DateSourceSummary,
	}

	objects, hasDFXML, err := report.LoadDetailedMetadata(e.store, datasetDir)
	if err != nil {
		return nil, err
	}

	// Siegfried dates are only parsed when they are actually used.
	detailed := detailedStamps(path.Join(datasetDir, report.DFXMLFile), objects)
	var stamps []stamp
	switch {
	case !hasDFXML:
		log.Warn("no dfxml.xml found for dataset")
		if err := e.confirmFallback(ctx, log); err != nil {
			return nil, err
		}
		stamps = summaryStamps(path.Join(datasetDir, report.SiegfriedFile), ident)
	case len(detailed) == 0:
		log.Warn("no modified times found in dfxml for dataset")
		if err := e.confirmFallback(ctx, log); err != nil {
			return nil, err
		}
		stamps = summaryStamps(path.Join(datasetDir, report.SiegfriedFile), ident)
	default:
		stamps = detailed
		facts.DateSource = models.DateSourceDetailed
	}

	dates, err := extractDates(stamps)
	if err != nil {
		return nil, err
	}

	if len(dates) == 0 {
		return nil, fmt.Errorf("derive: %s: %w", datasetDir, apperr.ErrNoTimestamps)
	}
	facts.Begin, facts.End = minMax(dates)
	facts.DateExpression = DateExpression(facts.Begin, facts.End)

	formats, _, err := report.LoadFormatSummary(e.store, datasetDir)
	if err != nil {
		return nil, err
	}
	facts.Formats = formats
	facts.Notes = FormatNotes(formats)

	log.Debug("derived dataset facts",
		slog.String("identifier", facts.Identifier),
		slog.String("begin", facts.BeginDate()),
		slog.String("end", facts.EndDate()),
		slog.String("date_source", string(facts.DateSource)),
		slog.Int64("size_bytes", facts.TotalSizeBytes))
	return facts, nil
}

func (e *Engine) confirmFallback(ctx context.Context, log *slog.Logger) error {
	ok, err := e.confirm.Confirm(ctx, FallbackQuestion)
	if err != nil {
		return fmt.Errorf("derive: confirm fallback: %w", err)
	}
	if !ok {
		log.Info("skipping dataset")
		return ErrSkip
	}
	log.Info("continuing with siegfried timestamps")
	return nil
}

// Identifier returns the dataset identifier: the directory name up to the
// first underscore.
func Identifier(dirName string) string {
	id, _, _ := strings.Cut(dirName, "_")
	return id
}

// ExtractDate returns the calendar date embedded in a raw timestamp.
func ExtractDate(raw string) (time.Time, error) {
	m := dateRe.FindString(raw)
	if m == "" {
		return time.Time{}, &apperr.MalformedTimestampError{Value: raw}
	}
	d, err := time.Parse(models.DateLayout, m)
	if err != nil {
		return time.Time{}, &apperr.MalformedTimestampError{Value: raw}
	}
	return d, nil
}

// stamp is one raw timestamp and where it came from.
type stamp struct {
	source string
	file   string
	raw    string
}

func summaryStamps(source string, rows []report.IdentificationRow) []stamp {
	out := make([]stamp, len(rows))
	for i, r := range rows {
		out[i] = stamp{source: source, file: r.Filename, raw: r.Modified}
	}
	return out
}

func detailedStamps(source string, objects []report.FileObject) []stamp {
	var out []stamp
	for _, o := range objects {
		if o.MTime != "" {
			out = append(out, stamp{source: source, file: o.Filename, raw: o.MTime})
		}
	}
	return out
}

func extractDates(stamps []stamp) ([]time.Time, error) {
	out := make([]time.Time, 0, len(stamps))
	for _, s := range stamps {
		d, err := ExtractDate(s.raw)
		if err != nil {
			var mte *apperr.MalformedTimestampError
			if errors.As(err, &mte) {
				mte.Source, mte.File = s.source, s.file
			}
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func minMax(dates []time.Time) (lo, hi time.Time) {
	lo, hi = dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(lo) {
			lo = d
		}
		if d.After(hi) {
			hi = d
		}
	}
	return lo, hi
}

// DateExpression renders the human-readable range: "YYYY-MM–YYYY-MM" when
// begin falls in an earlier month than end, otherwise the year of begin.
func DateExpression(begin, end time.Time) string {
	b, e := begin.Format("2006-01"), end.Format("2006-01")
	if b < e {
		return b + "–" + e
	}
	return begin.Format("2006")
}

// FormatNotes renders one note per format summary row, in row order.
func FormatNotes(rows []models.FormatCount) []string {
	notes := make([]string, 0, len(rows))
	for _, r := range rows {
		label := r.Format
		if label == "" {
			label = "unidentified files"
		}
		notes = append(notes, fmt.Sprintf("Number of %s: %d", label, r.Count))
	}
	return notes
}

// Megabytes renders size in MiB rounded to two decimal places.
func Megabytes(size int64) string {
	return decimal.NewFromInt(size).
		Div(decimal.NewFromInt(bytesPerMegabyte)).
		Round(2).
		String()
}
