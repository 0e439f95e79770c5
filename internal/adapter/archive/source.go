// Package archive locates yearly archive files on disk, splits them into
// shards and streams their records.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// YearPlaceholder is substituted with the four-digit year in a data pattern.
const YearPlaceholder = "{year}"

// cancelCheckEvery bounds how many lines are read between context checks.
const cancelCheckEvery = 4096

var errNoMatch = errors.New("pattern matched no files")

// Source resolves years to shards through a file pattern and reads them.
// It implements pipeline.ShardSource.
type Source struct {
	pattern   string
	shardSize int64
	logger    *slog.Logger
}

// NewSource creates a Source. A shardSize of zero or less makes every file
// a single shard.
func NewSource(pattern string, shardSize int64, logger *slog.Logger) *Source {
	return &Source{pattern: pattern, shardSize: shardSize, logger: logger}
}

// Pattern returns the glob pattern of one year.
func (s *Source) Pattern(year int) string {
	return strings.ReplaceAll(s.pattern, YearPlaceholder, strconv.Itoa(year))
}

// Shards lists the shards of one year in lexical file order. A pattern that
// matches no regular file fails with a *domain.DataSourceError.
func (s *Source) Shards(year int) ([]domain.Shard, error) {
	pattern := s.Pattern(year)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &domain.DataSourceError{Source: pattern, Err: fmt.Errorf("resolve pattern: %w", err)}
	}

	var shards []domain.Shard
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			return nil, &domain.DataSourceError{Source: path, Err: err}
		}
		if !info.Mode().IsRegular() {
			continue
		}
		shards = append(shards, Split(path, info.Size(), s.shardSize)...)
	}
	if len(shards) == 0 {
		return nil, &domain.DataSourceError{Source: pattern, Err: errNoMatch}
	}

	s.logger.Debug("resolved year", "year", year, "pattern", pattern, "files", len(matches), "shards", len(shards))
	return shards, nil
}

// Split cuts a file of the given size into byte ranges of at most
// shardSize bytes. Ranges need not fall on line boundaries; ReadShard
// assigns each line to the range holding its first byte.
func Split(path string, size, shardSize int64) []domain.Shard {
	if shardSize <= 0 || size <= shardSize {
		return []domain.Shard{{Source: path, Offset: 0, Length: size}}
	}
	out := make([]domain.Shard, 0, (size+shardSize-1)/shardSize)
	for ofs := int64(0); ofs < size; ofs += shardSize {
		out = append(out, domain.Shard{Source: path, Offset: ofs, Length: min(shardSize, size-ofs)})
	}
	return out
}

// ReadShard parses every line owned by the shard and hands the observation
// to fn. It returns the number of lines read. A malformed line stops the
// read with a *domain.ParseError carrying the file and byte offset; I/O
// failures are wrapped in a *domain.DataSourceError.
func (s *Source) ReadShard(ctx context.Context, sh domain.Shard, fn func(domain.Observation)) (int64, error) {
	f, err := os.Open(sh.Source)
	if err != nil {
		return 0, &domain.DataSourceError{Source: sh.Source, Err: err}
	}
	defer f.Close()

	pos := sh.Offset
	if pos > 0 {
		// Start one byte early so a line beginning exactly at Offset is not
		// mistaken for the tail of the previous range.
		pos--
	}
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return 0, &domain.DataSourceError{Source: sh.Source, Err: fmt.Errorf("seek: %w", err)}
	}
	r := bufio.NewReaderSize(f, 64*1024)

	if sh.Offset > 0 {
		skipped, err := r.ReadString('\n')
		pos += int64(len(skipped))
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		if err != nil {
			return 0, &domain.DataSourceError{Source: sh.Source, Err: fmt.Errorf("read: %w", err)}
		}
	}

	end := sh.Offset + sh.Length
	var lines int64
	for pos < end {
		if lines%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return lines, err
			}
		}

		raw, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return lines, &domain.DataSourceError{Source: sh.Source, Err: fmt.Errorf("read: %w", err)}
		}
		if raw == "" {
			break
		}

		start := pos
		pos += int64(len(raw))
		lines++

		obs, perr := domain.ParseLine(strings.TrimSuffix(raw, "\n"))
		if perr != nil {
			var pe *domain.ParseError
			if errors.As(perr, &pe) {
				pe.Source = sh.Source
				pe.Offset = start
			}
			return lines, perr
		}
		fn(obs)

		if err != nil {
			break
		}
	}
	return lines, nil
}
