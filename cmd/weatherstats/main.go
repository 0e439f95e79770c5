// Command weatherstats summarises a daily weather archive: per-year
// temperature statistics and extremal stations, then archive-wide
// station-day extremes and medians.
//
// Usage:
//
//	weatherstats [YEARS...]
//
// Each argument is a year, a comma list or an inclusive range such as
// 2000-2005. Without arguments the YEARS setting is used.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/weather-archive-stats/internal/adapter/archive"
	httpadapter "github.com/couchcryptid/weather-archive-stats/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-archive-stats/internal/adapter/kafka"
	"github.com/couchcryptid/weather-archive-stats/internal/config"
	"github.com/couchcryptid/weather-archive-stats/internal/observability"
	"github.com/couchcryptid/weather-archive-stats/internal/pipeline"
	"github.com/couchcryptid/weather-archive-stats/internal/report"
	"github.com/couchcryptid/weather-archive-stats/internal/stats"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	// Arguments narrow the per-year reports only; the archive pass always
	// covers the configured YEARS.
	yearly := cfg.Years
	if len(args) > 0 {
		years, err := config.ParseYears(strings.Join(args, ","))
		if err != nil {
			fmt.Fprintf(os.Stderr, "usage: weatherstats [YEARS...]: %v\n", err)
			return 1
		}
		override := *cfg
		override.Years = years
		if err := override.Validate(); err != nil {
			slog.Error("invalid years", "error", err)
			return 1
		}
		yearly = years
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	newSketch := stats.NewGKFactory(cfg.QuantileError)
	if cfg.QuantileSketch == config.SketchTDigest {
		newSketch = stats.NewTDigestFactory(cfg.TDigestCompression)
	}

	loaders := []pipeline.ReportLoader{report.NewTextWriter(os.Stdout)}
	if cfg.PublishReports() {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		loaders = append(loaders, writer)
		logger.Info("report publishing enabled", "topic", cfg.ReportTopic, "brokers", cfg.KafkaBrokers)
	}

	src := archive.NewSource(cfg.DataPattern, cfg.ShardSize, logger)
	d := pipeline.New(src, loaders, logger, metrics, pipeline.Options{
		Years:        yearly,
		ArchiveYears: cfg.Years,
		TopK:         cfg.TopK,
		ArchiveTopK:  cfg.ArchiveTopK,
		Workers:      cfg.Workers,
		CacheSize:    cfg.ShardCacheSize,
		NewSketch:    newSketch,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, d, nil, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	runErr := d.Run(ctx)
	if runErr != nil {
		logger.Error("analysis failed", "error", runErr)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	if runErr != nil {
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}
