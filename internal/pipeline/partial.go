package pipeline

import (
	"fmt"

	"github.com/couchcryptid/weather-archive-stats/internal/domain"
	"github.com/couchcryptid/weather-archive-stats/internal/stats"
)

// tracked lists the analysed elements with the direction of their extremes:
// the coldest TMIN and the hottest TMAX.
var tracked = []struct {
	el  domain.Element
	dir stats.Direction
}{
	{domain.TMIN, stats.Lowest},
	{domain.TMAX, stats.Highest},
}

// ElementPartial is the mergeable state of one element over some shards.
type ElementPartial struct {
	Summary  stats.Summary
	Sketch   stats.Sketch
	Stations []domain.Extremum // top-k by station
	Days     []domain.Extremum // top-k by station and date
}

// Partial is the immutable result of summarising one or more shards. Partials
// combine with Merger.Merge, which is associative and commutative.
type Partial struct {
	Records  domain.RecordCounts
	Shards   int
	Elements map[domain.Element]ElementPartial
}

// Merger builds and combines partials with fixed top-k sizes and sketch kind.
type Merger struct {
	stationK  int
	dayK      int
	newSketch stats.SketchFactory
}

// NewMerger returns a Merger keeping stationK groups per station list and
// dayK groups per station-day list.
func NewMerger(stationK, dayK int, newSketch stats.SketchFactory) *Merger {
	return &Merger{stationK: stationK, dayK: dayK, newSketch: newSketch}
}

// Empty returns the identity partial.
func (m *Merger) Empty() Partial {
	p := Partial{Elements: make(map[domain.Element]ElementPartial, len(tracked))}
	for _, t := range tracked {
		p.Elements[t.el] = ElementPartial{
			Sketch:   m.newSketch(),
			Stations: []domain.Extremum{},
			Days:     []domain.Extremum{},
		}
	}
	return p
}

// Merge combines two partials without modifying either.
func (m *Merger) Merge(a, b Partial) (Partial, error) {
	out := Partial{
		Records:  a.Records.Add(b.Records),
		Shards:   a.Shards + b.Shards,
		Elements: make(map[domain.Element]ElementPartial, len(tracked)),
	}
	for _, t := range tracked {
		ea, eb := a.Elements[t.el], b.Elements[t.el]
		sk, err := ea.Sketch.Merge(eb.Sketch)
		if err != nil {
			return Partial{}, fmt.Errorf("merge %s sketch: %w", t.el, err)
		}
		out.Elements[t.el] = ElementPartial{
			Summary:  ea.Summary.Merge(eb.Summary),
			Sketch:   sk,
			Stations: stats.MergeTopK(m.stationK, t.dir, ea.Stations, eb.Stations),
			Days:     stats.MergeTopK(m.dayK, t.dir, ea.Days, eb.Days),
		}
	}
	return out, nil
}

// MergeAll folds partials in slice order.
func (m *Merger) MergeAll(parts []Partial) (Partial, error) {
	acc := m.Empty()
	for _, p := range parts {
		var err error
		if acc, err = m.Merge(acc, p); err != nil {
			return Partial{}, err
		}
	}
	return acc, nil
}

// builder accumulates one shard's observations.
type builder struct {
	records  domain.RecordCounts
	elements map[domain.Element]*elementBuilder
}

type elementBuilder struct {
	summary  stats.Summary
	sketch   stats.Sketch
	stations *stats.TopK
	days     *stats.TopK
}

func (m *Merger) newBuilder() *builder {
	b := &builder{elements: make(map[domain.Element]*elementBuilder, len(tracked))}
	for _, t := range tracked {
		b.elements[t.el] = &elementBuilder{
			sketch:   m.newSketch(),
			stations: stats.NewTopK(m.stationK, t.dir),
			days:     stats.NewTopK(m.dayK, t.dir),
		}
	}
	return b
}

// add feeds one parsed observation through the quality filter and into every
// tracked statistic.
func (b *builder) add(o domain.Observation) {
	if !domain.Keep(o) {
		b.records.Rejected++
		return
	}
	b.records.Kept++

	e, ok := b.elements[o.Element]
	if !ok {
		return
	}
	e.summary.Add(o.Value)
	e.sketch.Insert(float64(o.Value))
	e.stations.Offer(domain.StationKey(o), o.Value)
	e.days.Offer(domain.StationDayKey(o), o.Value)
}

func (b *builder) partial(lines int64) Partial {
	p := Partial{
		Records:  b.records,
		Shards:   1,
		Elements: make(map[domain.Element]ElementPartial, len(b.elements)),
	}
	p.Records.Lines = lines
	for el, e := range b.elements {
		p.Elements[el] = ElementPartial{
			Summary:  e.summary,
			Sketch:   e.sketch,
			Stations: e.stations.Result(),
			Days:     e.days.Result(),
		}
	}
	return p
}
