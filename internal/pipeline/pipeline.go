package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/weather-archive-stats/internal/domain"
	"github.com/couchcryptid/weather-archive-stats/internal/observability"
	"github.com/couchcryptid/weather-archive-stats/internal/stats"
)

// ShardSource locates the shards of a year and streams their observations.
type ShardSource interface {
	Shards(year int) ([]domain.Shard, error)
	ReadShard(ctx context.Context, sh domain.Shard, fn func(domain.Observation)) (int64, error)
}

// ReportLoader receives every completed scope report.
type ReportLoader interface {
	LoadReport(ctx context.Context, report domain.ScopeReport) error
}

// Options is the immutable analysis configuration of a Driver.
type Options struct {
	Years        []int // years reported one by one
	ArchiveYears []int // years of the archive scope; Years when empty
	TopK         int   // stations per year list
	ArchiveTopK  int   // station-days per archive list
	Workers      int
	CacheSize    int
	NewSketch    stats.SketchFactory
}

// Driver runs the per-year passes and then the archive pass, fanning each
// scope out over its shards and merging the shard partials.
type Driver struct {
	source  ShardSource
	loaders []ReportLoader
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
	merger  *Merger
	cache   *shardCache
	ready   atomic.Bool
}

// New creates a Driver reading from src and handing reports to loaders in order.
func New(src ShardSource, loaders []ReportLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Driver {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if len(opts.ArchiveYears) == 0 {
		opts.ArchiveYears = opts.Years
	}
	if opts.NewSketch == nil {
		opts.NewSketch = stats.NewGKFactory(stats.DefaultEpsilon)
	}
	return &Driver{
		source:  src,
		loaders: loaders,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
		merger:  NewMerger(opts.TopK, opts.ArchiveTopK, opts.NewSketch),
		cache:   newShardCache(opts.CacheSize),
	}
}

// CheckReadiness returns nil once at least one scope has completed,
// or an error describing why the service is not yet ready.
func (d *Driver) CheckReadiness(_ context.Context) error {
	if !d.ready.Load() {
		return errors.New("no scope has completed yet")
	}
	return nil
}

// Run analyses every configured year, then the whole archive. A failed
// scope does not stop the others; the returned error joins every
// *domain.ScopeError and loader failure.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("analysis started", "years", len(d.opts.Years), "workers", d.opts.Workers)
	d.metrics.DriverRunning.Set(1)
	defer d.metrics.DriverRunning.Set(0)

	scopes := make([]domain.Scope, 0, len(d.opts.Years)+1)
	for _, y := range d.opts.Years {
		scopes = append(scopes, domain.YearScope(y))
	}
	scopes = append(scopes, domain.ArchiveScope())

	var errs []error
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			d.logger.Info("analysis stopping", "reason", err)
			errs = append(errs, err)
			break
		}

		report, err := d.RunScope(ctx, scope)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.load(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}

	d.logger.Info("analysis finished", "scopes", len(scopes), "failed", len(errs))
	return errors.Join(errs...)
}

// RunScope computes the report of one scope. Any shard failure aborts the
// scope with a *domain.ScopeError; a metric with no input is listed as
// unavailable instead.
func (d *Driver) RunScope(ctx context.Context, scope domain.Scope) (domain.ScopeReport, error) {
	start := domain.Now()
	years := d.opts.ArchiveYears
	if !scope.IsArchive() {
		years = []int{scope.Year}
	}

	shards, err := d.resolve(years)
	if err != nil {
		return domain.ScopeReport{}, d.fail(ctx, scope, err)
	}

	part, err := d.summarise(ctx, shards)
	if err != nil {
		return domain.ScopeReport{}, d.fail(ctx, scope, err)
	}

	report, err := d.report(scope, years, part)
	if err != nil {
		return domain.ScopeReport{}, d.fail(ctx, scope, err)
	}

	elapsed := domain.Since(start)
	d.metrics.ScopeDuration.WithLabelValues(scopeKind(scope)).Observe(elapsed.Seconds())
	d.ready.Store(true)
	d.logger.Info("scope complete",
		"scope", scope,
		"shards", part.Shards,
		"lines", part.Records.Lines,
		"kept", part.Records.Kept,
		"rejected", part.Records.Rejected,
		"unavailable", len(report.Unavailable),
		"duration", elapsed,
	)
	return report, nil
}

// resolve lists the shards of the given years, dropping duplicates that
// overlapping patterns may produce.
func (d *Driver) resolve(years []int) ([]domain.Shard, error) {
	var out []domain.Shard
	seen := make(map[string]bool)
	for _, y := range years {
		shards, err := d.source.Shards(y)
		if err != nil {
			return nil, fmt.Errorf("resolve year %d: %w", y, err)
		}
		for _, sh := range shards {
			if seen[sh.Key()] {
				continue
			}
			seen[sh.Key()] = true
			out = append(out, sh)
		}
	}
	return out, nil
}

// summarise processes the shards on a bounded worker group and merges the
// partials in shard order. The first failure cancels the remaining shards.
func (d *Driver) summarise(ctx context.Context, shards []domain.Shard) (Partial, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)

	parts := make([]Partial, len(shards))
	for i, sh := range shards {
		g.Go(func() error {
			p, err := d.shardPartial(gctx, sh)
			if err != nil {
				return err
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Partial{}, err
	}
	return d.merger.MergeAll(parts)
}

// shardPartial returns the cached partial of a shard or reads it.
func (d *Driver) shardPartial(ctx context.Context, sh domain.Shard) (Partial, error) {
	if p, ok := d.cache.get(sh); ok {
		d.metrics.ShardCache.WithLabelValues("hit").Inc()
		return p, nil
	}
	d.metrics.ShardCache.WithLabelValues("miss").Inc()

	if err := ctx.Err(); err != nil {
		return Partial{}, err
	}

	start := domain.Now()
	b := d.merger.newBuilder()
	lines, err := d.source.ReadShard(ctx, sh, b.add)
	d.metrics.LinesRead.Add(float64(lines))
	if err != nil {
		if domain.Classify(err) == domain.KindParse {
			d.metrics.ParseErrors.Inc()
		}
		return Partial{}, fmt.Errorf("read shard %s: %w", sh, err)
	}

	p := b.partial(lines)
	d.metrics.RecordsKept.Add(float64(p.Records.Kept))
	d.metrics.RecordsRejected.Add(float64(p.Records.Rejected))
	d.metrics.ShardsProcessed.Inc()
	d.metrics.ShardDuration.Observe(domain.Since(start).Seconds())

	d.cache.put(sh, p)
	d.logger.Debug("shard complete", "shard", sh, "lines", lines, "kept", p.Records.Kept)
	return p, nil
}

// report turns a merged partial into the scope's result. Year scopes rank
// stations and carry mean/min/max; the archive ranks station-days.
func (d *Driver) report(scope domain.Scope, years []int, part Partial) (domain.ScopeReport, error) {
	r := domain.ScopeReport{
		Scope:       scope,
		Years:       years,
		Aggregates:  []domain.AggregateResult{},
		Records:     part.Records,
		Shards:      part.Shards,
		GeneratedAt: domain.Now(),
	}

	for _, t := range tracked {
		ep := part.Elements[t.el]

		if !scope.IsArchive() {
			for _, m := range []domain.Metric{domain.MetricMean, domain.MetricMin, domain.MetricMax} {
				res, err := ep.Summary.Result(t.el, m)
				if err := d.collect(&r, res, err); err != nil {
					return domain.ScopeReport{}, err
				}
			}
		}
		res, err := stats.MedianResult(ep.Sketch, t.el)
		if err := d.collect(&r, res, err); err != nil {
			return domain.ScopeReport{}, err
		}

		ranked := ep.Stations
		if scope.IsArchive() {
			ranked = ep.Days
		}
		if t.dir == stats.Highest {
			r.Hottest = ranked
		} else {
			r.Coldest = ranked
		}
	}
	return r, nil
}

// collect records a computed metric, or marks it unavailable when its input
// was empty. Any other failure is returned.
func (d *Driver) collect(r *domain.ScopeReport, res domain.AggregateResult, err error) error {
	if err == nil {
		r.Aggregates = append(r.Aggregates, res)
		return nil
	}

	var nd *domain.NoDataError
	if !errors.As(err, &nd) {
		return fmt.Errorf("compute metric: %w", err)
	}
	nd.Scope = r.Scope.String()
	d.logger.Warn("metric unavailable",
		"scope", r.Scope,
		"element", nd.Element,
		"metric", nd.Metric,
		"kind", domain.KindNoData,
	)
	r.Unavailable = append(r.Unavailable, domain.Unavailable{
		Element: nd.Element,
		Metric:  nd.Metric,
		Reason:  nd.Error(),
	})
	return nil
}

// fail classifies and logs a scope abort.
func (d *Driver) fail(ctx context.Context, scope domain.Scope, err error) error {
	serr := &domain.ScopeError{Scope: scope, Err: err}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		d.logger.Info("scope cancelled", "scope", scope)
		return serr
	}

	kind := domain.Classify(err)
	d.metrics.ScopeFailures.WithLabelValues(string(kind)).Inc()
	d.logger.Error("scope aborted", "scope", scope, "kind", kind, "error", err)
	return serr
}

// load hands a report to every loader, continuing past failures.
func (d *Driver) load(ctx context.Context, report domain.ScopeReport) error {
	var errs []error
	for _, l := range d.loaders {
		if err := l.LoadReport(ctx, report); err != nil {
			d.metrics.ReportsPublished.WithLabelValues("error").Inc()
			d.logger.Error("load report failed", "scope", report.Scope, "error", err)
			errs = append(errs, fmt.Errorf("load report %s: %w", report.Scope, err))
			continue
		}
		d.metrics.ReportsPublished.WithLabelValues("success").Inc()
	}
	return errors.Join(errs...)
}

func scopeKind(s domain.Scope) string {
	if s.IsArchive() {
		return "archive"
	}
	return "year"
}
