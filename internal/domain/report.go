package domain

import (
	"fmt"
	"strconv"
	"time"
)

const archiveLabel = "archive"

// Scope is the dataset boundary of one analysis pass: a single year, or the
// whole archive when Year is zero.
type Scope struct {
	Year int
}

// YearScope returns the scope of a single year.
func YearScope(year int) Scope { return Scope{Year: year} }

// ArchiveScope returns the scope covering every configured year.
func ArchiveScope() Scope { return Scope{} }

// IsArchive reports whether s covers the whole archive.
func (s Scope) IsArchive() bool { return s.Year == 0 }

func (s Scope) String() string {
	if s.IsArchive() {
		return archiveLabel
	}
	return strconv.Itoa(s.Year)
}

func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(b []byte) error {
	if string(b) == archiveLabel {
		*s = ArchiveScope()
		return nil
	}
	y, err := strconv.Atoi(string(b))
	if err != nil || y <= 0 {
		return fmt.Errorf("invalid scope %q", b)
	}
	*s = YearScope(y)
	return nil
}

// RecordCounts tallies the lines seen by a scope.
type RecordCounts struct {
	Lines    int64 `json:"lines"`
	Kept     int64 `json:"kept"`
	Rejected int64 `json:"rejected"` // removed by the quality filter
}

// Add returns the element-wise sum of two counts.
func (c RecordCounts) Add(o RecordCounts) RecordCounts {
	return RecordCounts{
		Lines:    c.Lines + o.Lines,
		Kept:     c.Kept + o.Kept,
		Rejected: c.Rejected + o.Rejected,
	}
}

// Unavailable records a metric that could not be computed for a scope.
type Unavailable struct {
	Element Element `json:"element"`
	Metric  Metric  `json:"metric"`
	Reason  string  `json:"reason"`
}

// ScopeReport is the complete, read-only result of one scope.
//
// For a year scope Hottest and Coldest rank stations; for the archive scope
// they rank station-days.
type ScopeReport struct {
	Scope       Scope             `json:"scope"`
	Years       []int             `json:"years"`
	Aggregates  []AggregateResult `json:"aggregates"`
	Hottest     []Extremum        `json:"hottest"`
	Coldest     []Extremum        `json:"coldest"`
	Unavailable []Unavailable     `json:"unavailable,omitempty"`
	Records     RecordCounts      `json:"records"`
	Shards      int               `json:"shards"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Lookup returns the value of a computed metric.
func (r ScopeReport) Lookup(el Element, m Metric) (float64, bool) {
	for _, a := range r.Aggregates {
		if a.Element == el && a.Metric == m {
			return a.Value, true
		}
	}
	return 0, false
}

// Missing returns the reason a metric is unavailable, if it is.
func (r ScopeReport) Missing(el Element, m Metric) (string, bool) {
	for _, u := range r.Unavailable {
		if u.Element == el && u.Metric == m {
			return u.Reason, true
		}
	}
	return "", false
}
