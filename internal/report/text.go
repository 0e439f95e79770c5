// Package report renders scope reports as human-readable text.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// TextWriter prints each scope report as it arrives.
// It implements pipeline.ReportLoader.
type TextWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextWriter creates a renderer writing to w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

func (t *TextWriter) LoadReport(_ context.Context, r domain.ScopeReport) error {
	var b strings.Builder
	if r.Scope.IsArchive() {
		renderArchive(&b, r)
	} else {
		renderYear(&b, r)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		return fmt.Errorf("write %s report: %w", r.Scope, err)
	}
	return nil
}

func renderYear(b *strings.Builder, r domain.ScopeReport) {
	fmt.Fprintf(b, "\n%s\n----\n\n", r.Scope)
	metricLine(b, r, "Average TMIN", domain.TMIN, domain.MetricMean)
	metricLine(b, r, "Average TMAX", domain.TMAX, domain.MetricMean)
	metricLine(b, r, "Min TMIN", domain.TMIN, domain.MetricMin)
	metricLine(b, r, "Max TMIN", domain.TMIN, domain.MetricMax)
	metricLine(b, r, "Max TMAX", domain.TMAX, domain.MetricMax)

	fmt.Fprintf(b, "%d Hottest stations :\n", len(r.Hottest))
	for _, e := range r.Hottest {
		fmt.Fprintf(b, "\t%s : %f\n", e.Key.Station, float64(e.Value))
	}
	fmt.Fprintf(b, "%d Coldest stations :\n", len(r.Coldest))
	for _, e := range r.Coldest {
		fmt.Fprintf(b, "\t%s : %f\n", e.Key.Station, float64(e.Value))
	}

	metricLine(b, r, "Median TMIN", domain.TMIN, domain.MetricMedian)
	metricLine(b, r, "Median TMAX", domain.TMAX, domain.MetricMedian)
}

func renderArchive(b *strings.Builder, r domain.ScopeReport) {
	b.WriteString("\n-------------------------\n\n")
	extremeLines(b, "Coldest", r.Coldest)
	extremeLines(b, "Hottest", r.Hottest)
	metricLine(b, r, "Median TMIN for the entire dataset", domain.TMIN, domain.MetricMedian)
	metricLine(b, r, "Median TMAX for the entire dataset", domain.TMAX, domain.MetricMedian)
}

func extremeLines(b *strings.Builder, label string, list []domain.Extremum) {
	if len(list) == 0 {
		fmt.Fprintf(b, "%s station-day : unavailable (no data)\n", label)
		return
	}
	for _, e := range list {
		fmt.Fprintf(b, "%s station was %s on %s: %f\n", label, e.Key.Station, e.Key.Date, float64(e.Value))
	}
}

func metricLine(b *strings.Builder, r domain.ScopeReport, label string, el domain.Element, m domain.Metric) {
	if v, ok := r.Lookup(el, m); ok {
		fmt.Fprintf(b, "%s : %f\n", label, v)
		return
	}
	reason, ok := r.Missing(el, m)
	if !ok {
		reason = "not computed"
	}
	fmt.Fprintf(b, "%s : unavailable (%s)\n", label, reason)
}
