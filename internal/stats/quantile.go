package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// DefaultEpsilon is the default relative rank error of quantile estimates.
const DefaultEpsilon = 0.25

var (
	// ErrEmptySketch is returned when querying a sketch with no values.
	ErrEmptySketch = errors.New("quantile sketch is empty")
	// ErrSketchMismatch is returned when merging sketches of different kinds.
	ErrSketchMismatch = errors.New("cannot merge sketches of different kinds")
)

// Sketch is a mergeable quantile summary. Merge never mutates either input.
type Sketch interface {
	Insert(v float64)
	Count() int64
	Quantile(phi float64) (float64, error)
	Merge(other Sketch) (Sketch, error)
}

// SketchFactory creates an empty sketch.
type SketchFactory func() Sketch

// NewGKFactory returns a factory of Greenwald-Khanna sketches.
func NewGKFactory(eps float64) SketchFactory {
	return func() Sketch { return NewGKSketch(eps) }
}

// gkTuple covers g values ending at v; the rank of v lies within
// [rmin, rmin+delta] where rmin is the running sum of g.
type gkTuple struct {
	v     float64
	g     int64
	delta int64
}

// GKSketch is a Greenwald-Khanna summary answering any quantile within
// eps*n ranks of the exact answer while holding O((1/eps) log(eps*n))
// tuples.
type GKSketch struct {
	eps      float64
	n        int64
	tuples   []gkTuple
	inserted int
}

// NewGKSketch returns an empty sketch with relative rank error eps, which
// must lie in (0, 1).
func NewGKSketch(eps float64) *GKSketch {
	if eps <= 0 || eps >= 1 || math.IsNaN(eps) {
		panic(fmt.Sprintf("stats: GK epsilon must be in (0, 1), got %v", eps))
	}
	return &GKSketch{eps: eps}
}

// Count returns the number of inserted values.
func (s *GKSketch) Count() int64 { return s.n }

// Size returns the number of stored tuples.
func (s *GKSketch) Size() int { return len(s.tuples) }

func (s *GKSketch) threshold() int64 {
	return int64(math.Floor(2 * s.eps * float64(s.n)))
}

func (s *GKSketch) compressEvery() int {
	return max(1, int(math.Floor(1/(2*s.eps))))
}

// Insert adds one value.
func (s *GKSketch) Insert(v float64) {
	i := sort.Search(len(s.tuples), func(i int) bool { return s.tuples[i].v > v })

	var delta int64
	if i > 0 && i < len(s.tuples) {
		// The new value ranks no higher than its successor's upper bound.
		delta = s.tuples[i].g + s.tuples[i].delta - 1
	}

	s.tuples = append(s.tuples, gkTuple{})
	copy(s.tuples[i+1:], s.tuples[i:])
	s.tuples[i] = gkTuple{v: v, g: 1, delta: delta}
	s.n++

	s.inserted++
	if s.inserted >= s.compressEvery() {
		s.compress()
		s.inserted = 0
	}
}

// compress folds tuples into their successors while g+delta stays within
// 2*eps*n. The first and last tuples (exact min and max) are kept.
func (s *GKSketch) compress() {
	if len(s.tuples) < 3 {
		return
	}
	thr := s.threshold()
	last := len(s.tuples) - 1

	rev := make([]gkTuple, 0, len(s.tuples))
	rev = append(rev, s.tuples[last])
	for i := last - 1; i >= 1; i-- {
		head := &rev[len(rev)-1]
		t := s.tuples[i]
		if t.g+head.g+head.delta <= thr {
			head.g += t.g
			continue
		}
		rev = append(rev, t)
	}
	rev = append(rev, s.tuples[0])

	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	s.tuples = rev
}

// bounds returns the rank bounds of every stored tuple.
func (s *GKSketch) bounds() (rmin, rmax []int64) {
	rmin = make([]int64, len(s.tuples))
	rmax = make([]int64, len(s.tuples))
	var acc int64
	for i, t := range s.tuples {
		acc += t.g
		rmin[i] = acc
		rmax[i] = acc + t.delta
	}
	return rmin, rmax
}

// Quantile returns the stored value whose rank bounds sit closest to
// ceil(phi*n).
func (s *GKSketch) Quantile(phi float64) (float64, error) {
	if s.n == 0 {
		return 0, ErrEmptySketch
	}
	i, _, _ := s.pick(phi)
	return s.tuples[i].v, nil
}

// RankBounds returns the guaranteed rank interval of the value Quantile
// would return for phi.
func (s *GKSketch) RankBounds(phi float64) (lo, hi int64, err error) {
	if s.n == 0 {
		return 0, 0, ErrEmptySketch
	}
	_, lo, hi = s.pick(phi)
	return lo, hi, nil
}

// pick scans the summary once for the tuple minimising the distance between
// its rank bounds and the target rank.
func (s *GKSketch) pick(phi float64) (idx int, lo, hi int64) {
	target := targetRank(phi, s.n)
	rmin, rmax := s.bounds()

	bestErr := int64(math.MaxInt64)
	for i := range s.tuples {
		e := max(target-rmin[i], rmax[i]-target)
		if e < bestErr {
			idx, bestErr = i, e
		}
	}
	return idx, rmin[idx], rmax[idx]
}

func targetRank(phi float64, n int64) int64 {
	r := int64(math.Ceil(phi * float64(n)))
	return min(max(r, 1), n)
}

// Merge combines two GK sketches. Every tuple's rank bounds are recomputed
// against the other summary, which keeps g+delta within 2*eps*(n1+n2).
func (s *GKSketch) Merge(other Sketch) (Sketch, error) {
	o, ok := other.(*GKSketch)
	if !ok {
		return nil, ErrSketchMismatch
	}

	out := &GKSketch{eps: max(s.eps, o.eps), n: s.n + o.n}
	if s.n == 0 || o.n == 0 {
		src := s
		if s.n == 0 {
			src = o
		}
		out.tuples = append([]gkTuple(nil), src.tuples...)
		return out, nil
	}

	aMin, aMax := s.bounds()
	bMin, bMax := o.bounds()
	a, b := s.tuples, o.tuples

	out.tuples = make([]gkTuple, 0, len(a)+len(b))
	var prev int64
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var v float64
		var rmin, rmax int64
		if j >= len(b) || (i < len(a) && a[i].v <= b[j].v) {
			v, rmin, rmax = a[i].v, aMin[i], aMax[i]
			if j > 0 {
				rmin += bMin[j-1]
			}
			if j < len(b) {
				rmax += bMax[j] - 1
			} else {
				rmax += o.n
			}
			i++
		} else {
			v, rmin, rmax = b[j].v, bMin[j], bMax[j]
			if i > 0 {
				rmin += aMin[i-1]
			}
			if i < len(a) {
				rmax += aMax[i] - 1
			} else {
				rmax += s.n
			}
			j++
		}
		out.tuples = append(out.tuples, gkTuple{v: v, g: rmin - prev, delta: rmax - rmin})
		prev = rmin
	}

	out.compress()
	return out, nil
}

// Median estimates the median of one element's quality-passed observations.
func Median(obs []domain.Observation, el domain.Element, newSketch SketchFactory) (domain.AggregateResult, error) {
	sk := newSketch()
	for _, o := range obs {
		if o.Element == el && domain.Keep(o) {
			sk.Insert(float64(o.Value))
		}
	}
	return MedianResult(sk, el)
}

// MedianResult queries a sketch for the median, failing with a
// *domain.NoDataError when it is empty.
func MedianResult(sk Sketch, el domain.Element) (domain.AggregateResult, error) {
	v, err := sk.Quantile(0.5)
	if errors.Is(err, ErrEmptySketch) {
		return domain.AggregateResult{}, &domain.NoDataError{Element: el, Metric: domain.MetricMedian}
	}
	if err != nil {
		return domain.AggregateResult{}, err
	}
	return domain.AggregateResult{Element: el, Metric: domain.MetricMedian, Value: v}, nil
}
