// Command validate recomputes every statistic of an archive exactly, by
// loading all records into memory and sorting them, and checks the
// streaming analysis against it: mean, min, max and the extremal lists must
// match exactly, medians must fall within the sketch's rank error.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -pattern 'data/mock/{year}.csv' \
//	  -years 2000-2002 \
//	  -eps 0.01
package main

import (
	"bufio"
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/weather-archive-stats/internal/adapter/archive"
	"github.com/couchcryptid/weather-archive-stats/internal/config"
	"github.com/couchcryptid/weather-archive-stats/internal/domain"
	"github.com/couchcryptid/weather-archive-stats/internal/observability"
	"github.com/couchcryptid/weather-archive-stats/internal/pipeline"
	"github.com/couchcryptid/weather-archive-stats/internal/stats"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	pattern     string
	years       []int
	eps         float64
	topK        int
	archiveTopK int
	shardSize   int64
}

// exactScope holds the kept observations of one scope.
type exactScope struct {
	values map[domain.Element][]int
	obs    []domain.Observation
}

// memLoader keeps every report the driver produces.
type memLoader struct {
	mu      sync.Mutex
	reports map[domain.Scope]domain.ScopeReport
}

func (m *memLoader) LoadReport(_ context.Context, r domain.ScopeReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.Scope] = r
	return nil
}

func main() {
	pattern := flag.String("pattern", "data/mock/{year}.csv", "archive path pattern with a {year} placeholder")
	yearSpec := flag.String("years", "2000-2002", "years to validate: list or inclusive range")
	eps := flag.Float64("eps", stats.DefaultEpsilon, "quantile sketch rank error")
	topK := flag.Int("topk", 5, "stations per year list")
	archiveTopK := flag.Int("archive-topk", 1, "station-days per archive list")
	shardSize := flag.Int64("shard-size", 0, "byte-range shard size, 0 for whole files")
	flag.Parse()

	years, err := config.ParseYears(*yearSpec)
	if err != nil || !strings.Contains(*pattern, archive.YearPlaceholder) || *eps <= 0 || *eps >= 1 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(options{
		pattern:     *pattern,
		years:       years,
		eps:         *eps,
		topK:        *topK,
		archiveTopK: *archiveTopK,
		shardSize:   *shardSize,
	}))
}

func run(opts options) int {
	fmt.Println("=== Weather Archive Statistics Validation ===")
	fmt.Println()

	// ── Exact recompute ──
	perYear := make(map[int]*exactScope, len(opts.years))
	all := &exactScope{values: map[domain.Element][]int{}}
	var lines int
	for _, y := range opts.years {
		es, n, err := loadYear(opts.pattern, y)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %d: %v\n", y, err)
			return 1
		}
		perYear[y] = es
		lines += n
		all.obs = append(all.obs, es.obs...)
		for el, vs := range es.values {
			all.values[el] = append(all.values[el], vs...)
		}
	}
	for _, es := range perYear {
		es.sort()
	}
	all.sort()

	// ── Streaming analysis ──
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := &memLoader{reports: map[domain.Scope]domain.ScopeReport{}}
	d := pipeline.New(archive.NewSource(opts.pattern, opts.shardSize, logger), []pipeline.ReportLoader{loader},
		logger, observability.NewMetricsForTesting(), pipeline.Options{
			Years:       opts.years,
			TopK:        opts.topK,
			ArchiveTopK: opts.archiveTopK,
			Workers:     4,
			NewSketch:   stats.NewGKFactory(opts.eps),
		})
	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: analysis: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	var phases []*phase
	for _, y := range opts.years {
		r := loader.reports[domain.YearScope(y)]
		es := perYear[y]
		phases = append(phases,
			validateAggregates(fmt.Sprintf("%d aggregates", y), r, es),
			validateExtremes(fmt.Sprintf("%d extremal stations", y), r, es, domain.StationKey, opts.topK),
			validateMedians(fmt.Sprintf("%d medians", y), r, es, opts.eps),
		)
	}
	arch := loader.reports[domain.ArchiveScope()]
	phases = append(phases,
		validateExtremes("archive extremal station-days", arch, all, domain.StationDayKey, opts.archiveTopK),
		validateMedians("archive medians", arch, all, opts.eps),
	)

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d lines, %d kept TMIN/TMAX across %d years\n",
		lines, len(all.obs), len(opts.years))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("\033[31mVALIDATION FAILED\033[0m")
		return 1
	}
	fmt.Println("\033[32mALL PHASES PASSED\033[0m")
	return 0
}

// loadYear reads every file matching the year's pattern with a plain
// line scanner, independent of the sharded reader under test.
func loadYear(pattern string, year int) (*exactScope, int, error) {
	glob := strings.ReplaceAll(pattern, archive.YearPlaceholder, fmt.Sprint(year))
	paths, err := filepath.Glob(glob)
	if err != nil {
		return nil, 0, err
	}
	if len(paths) == 0 {
		return nil, 0, fmt.Errorf("no files match %s", glob)
	}

	es := &exactScope{values: map[domain.Element][]int{}}
	var lines int
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			lines++
			o, err := domain.ParseLine(sc.Text())
			if err != nil {
				f.Close()
				return nil, 0, fmt.Errorf("%s:%d: %w", path, lines, err)
			}
			if !domain.Keep(o) || (o.Element != domain.TMIN && o.Element != domain.TMAX) {
				continue
			}
			es.obs = append(es.obs, o)
			es.values[o.Element] = append(es.values[o.Element], o.Value)
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return es, lines, nil
}

func (es *exactScope) sort() {
	for _, vs := range es.values {
		slices.Sort(vs)
	}
}

func validateAggregates(name string, r domain.ScopeReport, es *exactScope) *phase {
	p := &phase{name: name}
	for _, el := range []domain.Element{domain.TMIN, domain.TMAX} {
		vs := es.values[el]
		if len(vs) == 0 {
			if _, ok := r.Missing(el, domain.MetricMean); !ok {
				p.errorf("%s: no data but mean not reported unavailable", el)
			}
			continue
		}
		var sum int64
		for _, v := range vs {
			sum += int64(v)
		}
		want := map[domain.Metric]float64{
			domain.MetricMean: float64(sum) / float64(len(vs)),
			domain.MetricMin:  float64(vs[0]),
			domain.MetricMax:  float64(vs[len(vs)-1]),
		}
		for m, w := range want {
			got, ok := r.Lookup(el, m)
			if !ok {
				p.errorf("%s %s: missing from report", el, m)
				continue
			}
			if got != w {
				p.errorf("%s %s: got %v, want %v", el, m, got, w)
			}
		}
	}
	return p
}

func validateExtremes(name string, r domain.ScopeReport, es *exactScope, key domain.KeyFunc, k int) *phase {
	p := &phase{name: name}
	compare := func(label string, got, want []domain.Extremum) {
		if len(got) != len(want) {
			p.errorf("%s: got %d entries, want %d", label, len(got), len(want))
			return
		}
		for i := range want {
			if got[i] != want[i] {
				p.errorf("%s[%d]: got %s %s=%d, want %s %s=%d", label, i,
					got[i].Key.Station, got[i].Key.Date, got[i].Value,
					want[i].Key.Station, want[i].Key.Date, want[i].Value)
			}
		}
	}
	compare("hottest", r.Hottest, exactTopK(es.obs, domain.TMAX, key, true, k))
	compare("coldest", r.Coldest, exactTopK(es.obs, domain.TMIN, key, false, k))
	return p
}

// exactTopK builds the full group table, sorts it and cuts it to k.
func exactTopK(obs []domain.Observation, el domain.Element, key domain.KeyFunc, highest bool, k int) []domain.Extremum {
	best := map[domain.GroupKey]int{}
	for _, o := range obs {
		if o.Element != el {
			continue
		}
		g := key(o)
		v, seen := best[g]
		if !seen || (highest && o.Value > v) || (!highest && o.Value < v) {
			best[g] = o.Value
		}
	}
	list := make([]domain.Extremum, 0, len(best))
	for g, v := range best {
		list = append(list, domain.Extremum{Key: g, Value: v})
	}
	slices.SortFunc(list, func(a, b domain.Extremum) int {
		if a.Value != b.Value {
			if highest {
				return cmp.Compare(b.Value, a.Value)
			}
			return cmp.Compare(a.Value, b.Value)
		}
		if a.Key.Less(b.Key) {
			return -1
		}
		if b.Key.Less(a.Key) {
			return 1
		}
		return 0
	})
	return list[:min(k, len(list))]
}

func validateMedians(name string, r domain.ScopeReport, es *exactScope, eps float64) *phase {
	p := &phase{name: name}
	for _, el := range []domain.Element{domain.TMIN, domain.TMAX} {
		vs := es.values[el]
		got, ok := r.Lookup(el, domain.MetricMedian)
		if len(vs) == 0 {
			if ok {
				p.errorf("%s median: reported %v for an empty group", el, got)
			}
			continue
		}
		if !ok {
			p.errorf("%s median: missing from report", el)
			continue
		}

		sorted := make([]float64, len(vs))
		for i, v := range vs {
			sorted[i] = float64(v)
		}
		exact := stat.Quantile(0.5, stat.Empirical, sorted, nil)

		// The estimate occupies ranks lo..hi; one of them must lie within
		// eps*n of the target rank.
		n := len(sorted)
		target := int(math.Ceil(0.5 * float64(n)))
		slack := int(math.Floor(eps * float64(n)))
		lo := sortSearch(sorted, got, false) + 1
		hi := sortSearch(sorted, got, true)
		if hi < lo {
			// Value absent from the data: it sits between ranks hi and lo.
			hi, lo = lo, hi
		}
		if hi < target-slack || lo > target+slack {
			p.errorf("%s median: got %v (ranks %d..%d), exact %v (rank %d), allowed error %d",
				el, got, lo, hi, exact, target, slack)
		}
	}
	return p
}

// sortSearch returns the number of values below v, or at most v when
// inclusive is set.
func sortSearch(sorted []float64, v float64, inclusive bool) int {
	i, found := slices.BinarySearch(sorted, v)
	if !inclusive || !found {
		return i
	}
	for i < len(sorted) && sorted[i] == v {
		i++
	}
	return i
}
