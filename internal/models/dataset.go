// Package models defines the domain types for bc2as.
package models

import "time"

// DateSource records which report the dataset's date range was taken from.
type DateSource string

const (
	// DateSourceDetailed means the range came from DFXML file mtimes.
	DateSourceDetailed DateSource = "PRIMARY_DETAILED"
	// DateSourceSummary means the range came from the siegfried identification report.
	DateSourceSummary DateSource = "FALLBACK_SUMMARY"
)

// DateLayout is the calendar-date layout used for begin/end dates on the wire.
const DateLayout = "2006-01-02"

// FormatCount is one row of a dataset's format summary.
// An empty Format means the files could not be identified.
type FormatCount struct {
	Format string `json:"format"`
	Count  int    `json:"count"`
}

// DatasetFacts is everything derived locally for one dataset directory.
type DatasetFacts struct {
	Identifier     string        `json:"identifier"`
	Directory      string        `json:"directory"`
	Formats        []FormatCount `json:"formats"`
	TotalSizeBytes int64         `json:"total_size_bytes"`
	Begin          time.Time     `json:"begin"`
	End            time.Time     `json:"end"`
	DateSource     DateSource    `json:"date_source"`
	DateExpression string        `json:"date_expression"`
	Notes          []string      `json:"notes"`
}

// BeginDate returns Begin formatted as YYYY-MM-DD.
func (f *DatasetFacts) BeginDate() string { return f.Begin.Format(DateLayout) }

// EndDate returns End formatted as YYYY-MM-DD.
func (f *DatasetFacts) EndDate() string { return f.End.Format(DateLayout) }
