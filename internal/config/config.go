package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
)

// Sketch kinds accepted by QUANTILE_SKETCH.
const (
	SketchGK      = "gk"
	SketchTDigest = "tdigest"
)

// Config holds all settings, populated from environment variables.
type Config struct {
	DataPattern string `env:"DATA_PATTERN" validate:"required,contains={year}"`
	Years       []int  `env:"YEARS" validate:"required,dive,min=1,max=9999"`

	QuantileError      float64 `env:"QUANTILE_ERROR" validate:"gt=0,lt=1"`
	QuantileSketch     string  `env:"QUANTILE_SKETCH" validate:"oneof=gk tdigest"`
	TDigestCompression float64 `env:"TDIGEST_COMPRESSION" validate:"gt=0"`
	TopK               int     `env:"TOP_K" validate:"min=1"`
	ArchiveTopK        int     `env:"ARCHIVE_TOP_K" validate:"min=1"`

	Workers        int   `env:"WORKERS" validate:"min=1"`
	ShardSize      int64 `env:"SHARD_SIZE" validate:"min=0"`
	ShardCacheSize int   `env:"SHARD_CACHE_SIZE" validate:"min=0"`

	HTTPAddr        string        `env:"HTTP_ADDR"`
	LogLevel        string        `env:"LOG_LEVEL"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=text json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	// Optional report publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" validate:"required_with=ReportTopic"`
	ReportTopic  string   `env:"REPORT_TOPIC"`
}

// PublishReports reports whether scope reports go to Kafka.
func (c *Config) PublishReports() bool {
	return c.ReportTopic != "" && len(c.KafkaBrokers) > 0
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Name fields after their environment variable in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	years, err := ParseYears(sharedcfg.EnvOrDefault("YEARS", "2000-2019"))
	if err != nil {
		return nil, fmt.Errorf("invalid YEARS: %w", err)
	}

	quantileError, err := parseFloat("QUANTILE_ERROR", "0.25")
	if err != nil {
		return nil, err
	}
	compression, err := parseFloat("TDIGEST_COMPRESSION", "100")
	if err != nil {
		return nil, err
	}

	topK, err := parseInt("TOP_K", 5)
	if err != nil {
		return nil, err
	}
	archiveTopK, err := parseInt("ARCHIVE_TOP_K", 1)
	if err != nil {
		return nil, err
	}
	workers, err := parseInt("WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("SHARD_CACHE_SIZE", 4096)
	if err != nil {
		return nil, err
	}

	shardSize, err := units.RAMInBytes(sharedcfg.EnvOrDefault("SHARD_SIZE", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHARD_SIZE: %w", err)
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		DataPattern:        sharedcfg.EnvOrDefault("DATA_PATTERN", "data/{year}.csv"),
		Years:              years,
		QuantileError:      quantileError,
		QuantileSketch:     strings.ToLower(sharedcfg.EnvOrDefault("QUANTILE_SKETCH", SketchGK)),
		TDigestCompression: compression,
		TopK:               topK,
		ArchiveTopK:        archiveTopK,
		Workers:            workers,
		ShardSize:          shardSize,
		ShardCacheSize:     cacheSize,
		HTTPAddr:           os.Getenv("HTTP_ADDR"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "text")),
		ShutdownTimeout:    shutdownTimeout,
		KafkaBrokers:       brokers,
		ReportTopic:        os.Getenv("REPORT_TOPIC"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every range constraint and names the first offending
// variable.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		if fe.Param() != "" {
			return fmt.Errorf("invalid %s: failed %s=%s", field, fe.Tag(), fe.Param())
		}
		return fmt.Errorf("invalid %s: failed %s", field, fe.Tag())
	}
	return fmt.Errorf("validate config: %w", err)
}

// ParseYears parses a year list: single years, comma-separated lists and
// inclusive ranges such as "2000-2005", in any combination. The result is
// sorted and free of duplicates.
func ParseYears(s string) ([]int, error) {
	var years []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("year %q is not a number", part)
		}
		to := from
		if isRange {
			to, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("year %q is not a number", part)
			}
		}
		if from <= 0 || to < from {
			return nil, fmt.Errorf("invalid year range %q", part)
		}
		for y := from; y <= to; y++ {
			years = append(years, y)
		}
	}
	if len(years) == 0 {
		return nil, errors.New("no years given")
	}
	slices.Sort(years)
	return slices.Compact(years), nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
