package stats

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

func keptValues(obs []domain.Observation, el domain.Element) []float64 {
	var out []float64
	for _, o := range obs {
		if o.Element == el && domain.Keep(o) {
			out = append(out, float64(o.Value))
		}
	}
	slices.Sort(out)
	return out
}

// assertWithinRankBound checks that est could be the value at some rank in
// [r - floor(eps*n), r + floor(eps*n)] of sorted, with r = ceil(phi*n).
func assertWithinRankBound(t *testing.T, sorted []float64, phi, eps, est float64) {
	t.Helper()
	n := int64(len(sorted))
	require.Positive(t, n)

	r := targetRank(phi, n)
	slack := int64(math.Floor(eps * float64(n)))
	lo := max(r-slack, 1)
	hi := min(r+slack, n)

	assert.GreaterOrEqual(t, est, sorted[lo-1], "phi=%v n=%d", phi, n)
	assert.LessOrEqual(t, est, sorted[hi-1], "phi=%v n=%d", phi, n)

	// The exact empirical quantile sits inside the same window.
	exact := stat.Quantile(phi, stat.Empirical, sorted, nil)
	assert.GreaterOrEqual(t, exact, sorted[lo-1])
	assert.LessOrEqual(t, exact, sorted[hi-1])
}

func TestMedian_Example(t *testing.T) {
	for _, flagged := range []bool{false, true} {
		obs := exampleObservations(t, flagged)

		res, err := Median(obs, domain.TMIN, NewGKFactory(DefaultEpsilon))
		require.NoError(t, err)
		assert.Equal(t, domain.TMIN, res.Element)
		assert.Equal(t, domain.MetricMedian, res.Metric)
		assert.Contains(t, []float64{-100, -50}, res.Value)
	}
}

func TestMedian_EmptyGroup(t *testing.T) {
	obs := exampleObservations(t, true)

	for name, factory := range map[string]SketchFactory{
		"gk":      NewGKFactory(DefaultEpsilon),
		"tdigest": NewTDigestFactory(DefaultCompression),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Median(obs, domain.TMAX, factory)
			var nd *domain.NoDataError
			require.True(t, errors.As(err, &nd))
			assert.Equal(t, domain.MetricMedian, nd.Metric)
			assert.Equal(t, domain.TMAX, nd.Element)
		})
	}
}

func TestGKSketch_EmptyQuery(t *testing.T) {
	sk := NewGKSketch(0.1)
	_, err := sk.Quantile(0.5)
	assert.ErrorIs(t, err, ErrEmptySketch)

	_, _, err = sk.RankBounds(0.5)
	assert.ErrorIs(t, err, ErrEmptySketch)
}

func TestNewGKSketch_RejectsEpsilon(t *testing.T) {
	for _, eps := range []float64{0, -0.1, 1, 2, math.NaN()} {
		assert.Panics(t, func() { NewGKSketch(eps) }, "eps=%v", eps)
	}
}

func TestGKSketch_RankBound(t *testing.T) {
	phis := []float64{0.01, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99, 1}

	for _, eps := range []float64{0.25, 0.1, 0.01} {
		for seed := uint64(1); seed <= 5; seed++ {
			obs := randomObservations(seed, 4000, 50)
			sorted := keptValues(obs, domain.TMIN)

			sk := NewGKSketch(eps)
			for _, o := range obs {
				if o.Element == domain.TMIN && domain.Keep(o) {
					sk.Insert(float64(o.Value))
				}
			}
			require.Equal(t, int64(len(sorted)), sk.Count())

			for _, phi := range phis {
				est, err := sk.Quantile(phi)
				require.NoError(t, err)
				assertWithinRankBound(t, sorted, phi, eps, est)

				lo, hi, err := sk.RankBounds(phi)
				require.NoError(t, err)
				r := targetRank(phi, sk.Count())
				slack := int64(math.Floor(eps * float64(sk.Count())))
				assert.GreaterOrEqual(t, lo, r-slack)
				assert.LessOrEqual(t, hi, r+slack)
			}
		}
	}
}

func TestGKSketch_ExtremesAreExact(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 5))
	sk := NewGKSketch(0.25)
	lo, hi := math.Inf(1), math.Inf(-1)
	for range 10000 {
		v := r.NormFloat64() * 100
		lo, hi = min(lo, v), max(hi, v)
		sk.Insert(v)
	}

	first, err := sk.Quantile(0)
	require.NoError(t, err)
	last, err := sk.Quantile(1)
	require.NoError(t, err)
	assert.Equal(t, lo, first)
	assert.Equal(t, hi, last)
}

func TestGKSketch_SpaceIsSublinear(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	const n = 50000

	coarse := NewGKSketch(0.25)
	fine := NewGKSketch(0.05)
	for range n {
		v := r.Float64() * 1000
		coarse.Insert(v)
		fine.Insert(v)
	}

	assert.Less(t, coarse.Size(), 1000)
	assert.Less(t, fine.Size(), n/4)
	assert.LessOrEqual(t, coarse.Size(), fine.Size())
}

func TestGKSketch_MergeMatchesRankBound(t *testing.T) {
	r := rand.New(rand.NewPCG(13, 17))
	obs := randomObservations(99, 6000, 80)
	sorted := keptValues(obs, domain.TMAX)

	for _, eps := range []float64{0.25, 0.05} {
		for shards := 1; shards <= 10; shards++ {
			parts := shard(r, obs, shards)
			sketches := make([]Sketch, len(parts))
			for i, p := range parts {
				sk := NewGKSketch(eps)
				for _, o := range p {
					if o.Element == domain.TMAX && domain.Keep(o) {
						sk.Insert(float64(o.Value))
					}
				}
				sketches[i] = sk
			}
			r.Shuffle(len(sketches), func(i, j int) {
				sketches[i], sketches[j] = sketches[j], sketches[i]
			})

			var merged Sketch = NewGKSketch(eps)
			for _, sk := range sketches {
				var err error
				merged, err = merged.Merge(sk)
				require.NoError(t, err)
			}
			require.Equal(t, int64(len(sorted)), merged.Count())

			for _, phi := range []float64{0.1, 0.5, 0.9} {
				est, err := merged.Quantile(phi)
				require.NoError(t, err)
				assertWithinRankBound(t, sorted, phi, eps, est)
			}
		}
	}
}

func TestGKSketch_MergeLeavesInputsUntouched(t *testing.T) {
	a, b := NewGKSketch(0.1), NewGKSketch(0.1)
	for i := range 500 {
		a.Insert(float64(i))
		b.Insert(float64(1000 - i))
	}
	aSize, bSize := a.Size(), b.Size()
	aMed, _ := a.Quantile(0.5)

	merged, err := a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), merged.Count())

	assert.Equal(t, aSize, a.Size())
	assert.Equal(t, bSize, b.Size())
	assert.Equal(t, int64(500), a.Count())
	again, _ := a.Quantile(0.5)
	assert.Equal(t, aMed, again)
}

func TestSketch_MergeMismatch(t *testing.T) {
	gk := NewGKSketch(0.1)
	td := NewTDigestSketch(DefaultCompression)

	_, err := gk.Merge(td)
	assert.ErrorIs(t, err, ErrSketchMismatch)
	_, err = td.Merge(gk)
	assert.ErrorIs(t, err, ErrSketchMismatch)
}

func TestTDigestSketch_Median(t *testing.T) {
	obs := randomObservations(21, 20000, 100)
	sorted := keptValues(obs, domain.TMAX)
	n := float64(len(sorted))

	r := rand.New(rand.NewPCG(8, 8))
	parts := shard(r, obs, 6)
	var merged Sketch = NewTDigestSketch(DefaultCompression)
	for _, p := range parts {
		sk := NewTDigestSketch(DefaultCompression)
		for _, o := range p {
			if o.Element == domain.TMAX && domain.Keep(o) {
				sk.Insert(float64(o.Value))
			}
		}
		var err error
		merged, err = merged.Merge(sk)
		require.NoError(t, err)
	}
	require.Equal(t, int64(len(sorted)), merged.Count())

	res, err := MedianResult(merged, domain.TMAX)
	require.NoError(t, err)

	// The estimate's rank interval must overlap [0.45n, 0.55n].
	below := float64(sort.SearchFloat64s(sorted, res.Value))
	atOrBelow := float64(sort.Search(len(sorted), func(i int) bool { return sorted[i] > res.Value }))
	assert.LessOrEqual(t, below, 0.55*n)
	assert.GreaterOrEqual(t, atOrBelow, 0.45*n)
}
