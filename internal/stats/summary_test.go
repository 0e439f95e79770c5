package stats

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// exampleObservations is the two-station TMIN example plus a flagged record
// that must not influence any statistic.
func exampleObservations(t *testing.T, withFlagged bool) []domain.Observation {
	t.Helper()
	lines := []string{
		"A,20000101,TMIN,-50,,,,0600",
		"B,20000101,TMIN,-100,,,,0600",
	}
	if withFlagged {
		lines = append(lines, "C,20000101,TMIN,-9999,,BAD,,0600")
	}
	out := make([]domain.Observation, 0, len(lines))
	for _, l := range lines {
		obs, err := domain.ParseLine(l)
		require.NoError(t, err)
		out = append(out, obs)
	}
	return out
}

// randomObservations generates n observations across stations S00..S(stations-1)
// with a mix of elements and roughly 5% quality-flagged records.
func randomObservations(seed uint64, n, stations int) []domain.Observation {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]domain.Observation, n)
	for i := range out {
		el := domain.TMIN
		switch r.IntN(5) {
		case 0, 1:
			el = domain.TMAX
		case 2:
			el = "PRCP"
		}
		qflag := ""
		if r.IntN(20) == 0 {
			qflag = "I"
		}
		out[i] = domain.Observation{
			Station: stationName(r.IntN(stations)),
			Date:    dateName(r.IntN(28)),
			Element: el,
			Value:   r.IntN(800) - 400,
			QFlag:   qflag,
		}
	}
	return out
}

func stationName(i int) string {
	return "S" + string(rune('A'+i/26)) + string(rune('A'+i%26))
}

func dateName(day int) string {
	return "200002" + string(rune('0'+(day+1)/10)) + string(rune('0'+(day+1)%10))
}

// shard splits obs into n contiguous, disjoint slices at random cut points.
func shard(r *rand.Rand, obs []domain.Observation, n int) [][]domain.Observation {
	cuts := make([]int, 0, n+1)
	cuts = append(cuts, 0)
	for i := 1; i < n; i++ {
		cuts = append(cuts, r.IntN(len(obs)+1))
	}
	cuts = append(cuts, len(obs))
	slices.Sort(cuts)

	out := make([][]domain.Observation, 0, n)
	for i := 1; i < len(cuts); i++ {
		out = append(out, obs[cuts[i-1]:cuts[i]])
	}
	return out
}

func TestAggregate_Example(t *testing.T) {
	for _, flagged := range []bool{false, true} {
		obs := exampleObservations(t, flagged)

		mean, err := Aggregate(obs, domain.TMIN, domain.MetricMean)
		require.NoError(t, err)
		assert.Equal(t, domain.AggregateResult{Element: domain.TMIN, Metric: domain.MetricMean, Value: -75}, mean)

		lo, err := Aggregate(obs, domain.TMIN, domain.MetricMin)
		require.NoError(t, err)
		assert.Equal(t, -100.0, lo.Value)

		hi, err := Aggregate(obs, domain.TMIN, domain.MetricMax)
		require.NoError(t, err)
		assert.Equal(t, -50.0, hi.Value)
	}
}

func TestAggregate_EmptyGroup(t *testing.T) {
	obs := exampleObservations(t, true)

	for _, m := range []domain.Metric{domain.MetricMean, domain.MetricMin, domain.MetricMax} {
		t.Run(string(m), func(t *testing.T) {
			res, err := Aggregate(obs, domain.TMAX, m)
			require.Error(t, err)

			var nd *domain.NoDataError
			require.True(t, errors.As(err, &nd))
			assert.Equal(t, domain.TMAX, nd.Element)
			assert.Equal(t, m, nd.Metric)
			assert.Equal(t, domain.AggregateResult{}, res)
		})
	}

	_, err := Aggregate(nil, domain.TMIN, domain.MetricMean)
	assert.Equal(t, domain.KindNoData, domain.Classify(err))
}

func TestAggregate_OnlyFlaggedRecords(t *testing.T) {
	obs := []domain.Observation{{Station: "C", Element: domain.TMIN, Value: -9999, QFlag: "BAD"}}

	_, err := Aggregate(obs, domain.TMIN, domain.MetricMean)
	var nd *domain.NoDataError
	assert.True(t, errors.As(err, &nd))
}

func TestSummary_MinMeanMaxOrdering(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		obs := randomObservations(seed, 500, 30)
		for _, el := range []domain.Element{domain.TMIN, domain.TMAX} {
			s := Summarize(obs, el)
			require.Positive(t, s.Count)

			mean, _ := s.Value(domain.MetricMean)
			lo, _ := s.Value(domain.MetricMin)
			hi, _ := s.Value(domain.MetricMax)
			assert.LessOrEqual(t, lo, mean)
			assert.LessOrEqual(t, mean, hi)
		}
	}
}

func TestSummary_MergeMatchesWhole(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))
	obs := randomObservations(42, 2000, 40)
	whole := Summarize(obs, domain.TMAX)

	for shards := 1; shards <= 16; shards++ {
		parts := shard(r, obs, shards)

		var forward, backward Summary
		for i := range parts {
			forward = forward.Merge(Summarize(parts[i], domain.TMAX))
			backward = Summarize(parts[len(parts)-1-i], domain.TMAX).Merge(backward)
		}
		assert.Equal(t, whole, forward, "shards=%d", shards)
		assert.Equal(t, whole, backward, "shards=%d", shards)
	}
}

func TestSummary_Value(t *testing.T) {
	var s Summary
	_, ok := s.Value(domain.MetricMean)
	assert.False(t, ok)

	s.Add(3)
	s.Add(-4)
	s.Add(10)

	mean, ok := s.Value(domain.MetricMean)
	assert.True(t, ok)
	assert.InDelta(t, 3.0, mean, 1e-12)

	_, ok = s.Value(domain.MetricMedian)
	assert.False(t, ok, "summaries do not answer medians")

	assert.Equal(t, Summary{Count: 3, Sum: 9, Min: -4, Max: 10}, s)
}
