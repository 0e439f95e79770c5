package stats

import (
	"github.com/influxdata/tdigest"
)

// DefaultCompression is the default t-digest compression.
const DefaultCompression = 100

// TDigestSketch adapts an influxdata t-digest to the Sketch interface.
// Estimates interpolate between centroids and carry no hard rank bound.
type TDigestSketch struct {
	compression float64
	td          *tdigest.TDigest
	n           int64
}

// NewTDigestFactory returns a factory of t-digest sketches.
func NewTDigestFactory(compression float64) SketchFactory {
	return func() Sketch { return NewTDigestSketch(compression) }
}

// NewTDigestSketch returns an empty t-digest sketch.
func NewTDigestSketch(compression float64) *TDigestSketch {
	if compression <= 0 {
		compression = DefaultCompression
	}
	return &TDigestSketch{
		compression: compression,
		td:          tdigest.NewWithCompression(compression),
	}
}

func (s *TDigestSketch) Insert(v float64) {
	s.td.Add(v, 1)
	s.n++
}

func (s *TDigestSketch) Count() int64 { return s.n }

func (s *TDigestSketch) Quantile(phi float64) (float64, error) {
	if s.n == 0 {
		return 0, ErrEmptySketch
	}
	return s.td.Quantile(phi), nil
}

// Merge folds both digests into a fresh one.
func (s *TDigestSketch) Merge(other Sketch) (Sketch, error) {
	o, ok := other.(*TDigestSketch)
	if !ok {
		return nil, ErrSketchMismatch
	}
	out := NewTDigestSketch(max(s.compression, o.compression))
	if s.n > 0 {
		out.td.AddCentroidList(s.td.Centroids())
	}
	if o.n > 0 {
		out.td.AddCentroidList(o.td.Centroids())
	}
	out.n = s.n + o.n
	return out, nil
}
