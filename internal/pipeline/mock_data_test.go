package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// memSource serves shards from memory. Each year maps to a list of shards,
// each shard to its raw lines.
type memSource struct {
	years map[int][][]string
	reads atomic.Int64
}

func newMemSource() *memSource {
	return &memSource{years: make(map[int][][]string)}
}

// addYear splits lines into n contiguous shards of near-equal size.
func (m *memSource) addYear(year int, lines []string, n int) {
	size := max(1, (len(lines)+n-1)/n)
	var shards [][]string
	for start := 0; start < len(lines); start += size {
		shards = append(shards, lines[start:min(start+size, len(lines))])
	}
	if len(shards) == 0 {
		shards = [][]string{nil}
	}
	m.years[year] = shards
}

func (m *memSource) Shards(year int) ([]domain.Shard, error) {
	shards, ok := m.years[year]
	if !ok {
		return nil, &domain.DataSourceError{Source: fmt.Sprintf("mem/%d", year), Err: errors.New("no such year")}
	}
	out := make([]domain.Shard, len(shards))
	for i, lines := range shards {
		out[i] = domain.Shard{Source: fmt.Sprintf("mem/%d/%d", year, i), Length: int64(len(lines))}
	}
	return out, nil
}

func (m *memSource) ReadShard(ctx context.Context, sh domain.Shard, fn func(domain.Observation)) (int64, error) {
	m.reads.Add(1)
	var year, idx int
	if _, err := fmt.Sscanf(sh.Source, "mem/%d/%d", &year, &idx); err != nil {
		return 0, &domain.DataSourceError{Source: sh.Source, Err: err}
	}

	var lines int64
	for i, line := range m.years[year][idx] {
		if err := ctx.Err(); err != nil {
			return lines, err
		}
		lines++
		obs, err := domain.ParseLine(line)
		if err != nil {
			var pe *domain.ParseError
			if errors.As(err, &pe) {
				pe.Source = sh.Source
				pe.Offset = int64(i)
			}
			return lines, err
		}
		fn(obs)
	}
	return lines, nil
}

// collectLoader records every report it receives.
type collectLoader struct {
	mu      sync.Mutex
	reports []domain.ScopeReport
	err     error
}

func (c *collectLoader) LoadReport(_ context.Context, r domain.ScopeReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.reports = append(c.reports, r)
	return nil
}

func (c *collectLoader) scopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.reports))
	for i, r := range c.reports {
		out[i] = r.Scope.String()
	}
	return out
}

func (c *collectLoader) find(scope domain.Scope) (domain.ScopeReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.reports {
		if r.Scope == scope {
			return r, true
		}
	}
	return domain.ScopeReport{}, false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// generateYear builds n synthetic archive lines for one year with a mix of
// elements, roughly 2% quality-flagged records and a narrow value range so
// ties are common.
func generateYear(seed uint64, year, n, stations int) []string {
	r := rand.New(rand.NewPCG(seed, uint64(year)))
	elements := []string{"TMIN", "TMAX", "TMAX", "PRCP", "SNOW"}
	out := make([]string, n)
	for i := range out {
		qflag := ""
		if r.IntN(50) == 0 {
			qflag = "X"
		}
		out[i] = fmt.Sprintf("ST%03d,%04d%02d%02d,%s,%d,,%s,,0700",
			r.IntN(stations), year, r.IntN(12)+1, r.IntN(28)+1,
			elements[r.IntN(len(elements))], r.IntN(120)-60, qflag)
	}
	return out
}
