// Package stats implements the mergeable statistics behind every scope:
// sum/count/min/max summaries, bounded top-k selection and approximate
// quantile sketches.
//
// Every partial type merges associatively and commutatively, so a scope can
// be split into any number of shards and folded back together without
// changing the answer (exactly for summaries and top-k, within the sketch's
// rank error for quantiles).
package stats

import (
	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// Summary accumulates count, sum, min and max of integer values. The sum is
// kept as an int64 so merged shards reproduce it exactly.
type Summary struct {
	Count int64 `json:"count"`
	Sum   int64 `json:"sum"`
	Min   int   `json:"min"`
	Max   int   `json:"max"`
}

// Add folds one value into the summary.
func (s *Summary) Add(v int) {
	if s.Count == 0 {
		s.Min, s.Max = v, v
	} else {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	s.Sum += int64(v)
	s.Count++
}

// Merge returns the summary of both inputs combined.
func (s Summary) Merge(o Summary) Summary {
	switch {
	case o.Count == 0:
		return s
	case s.Count == 0:
		return o
	}
	return Summary{
		Count: s.Count + o.Count,
		Sum:   s.Sum + o.Sum,
		Min:   min(s.Min, o.Min),
		Max:   max(s.Max, o.Max),
	}
}

// Value returns the requested metric, or false when the summary is empty or
// the metric is not one a summary can answer.
func (s Summary) Value(m domain.Metric) (float64, bool) {
	if s.Count == 0 {
		return 0, false
	}
	switch m {
	case domain.MetricMean:
		return float64(s.Sum) / float64(s.Count), true
	case domain.MetricMin:
		return float64(s.Min), true
	case domain.MetricMax:
		return float64(s.Max), true
	default:
		return 0, false
	}
}

// Result wraps Value into an AggregateResult, failing with a
// *domain.NoDataError when the summary is empty.
func (s Summary) Result(el domain.Element, m domain.Metric) (domain.AggregateResult, error) {
	v, ok := s.Value(m)
	if !ok {
		return domain.AggregateResult{}, &domain.NoDataError{Element: el, Metric: m}
	}
	return domain.AggregateResult{Element: el, Metric: m, Value: v}, nil
}

// Summarize builds the summary of the quality-passed observations of one
// element.
func Summarize(obs []domain.Observation, el domain.Element) Summary {
	var s Summary
	for _, o := range obs {
		if o.Element == el && domain.Keep(o) {
			s.Add(o.Value)
		}
	}
	return s
}

// Aggregate computes mean, min or max of one element over a dataset.
func Aggregate(obs []domain.Observation, el domain.Element, m domain.Metric) (domain.AggregateResult, error) {
	return Summarize(obs, el).Result(el, m)
}
