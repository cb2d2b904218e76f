package logfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/adapter/metrics"
	"github.com/pscheid92/imupulse/internal/domain"
	"github.com/pscheid92/imupulse/internal/reading"
	"golang.org/x/sync/singleflight"
)

const initialTailWindow = 64 << 10

// TailQuery answers "last n readings" requests straight from a source's log
// file. It holds no live state and works whether or not ingestion is running.
type TailQuery struct {
	dir     string
	clock   clockwork.Clock
	metrics *metrics.PipelineMetrics
	group   singleflight.Group
}

// NewTailQuery creates a query service over the log files in dir.
func NewTailQuery(dir string, clock clockwork.Clock, m *metrics.PipelineMetrics) *TailQuery {
	return &TailQuery{dir: dir, clock: clock, metrics: m}
}

// Query returns up to n of the most recent readings of source, oldest first.
// n <= 0 returns every reading in the file. A missing log file yields
// domain.ErrSourceUnavailable. Readings are stamped with the query time since
// the log does not record arrival times.
func (q *TailQuery) Query(ctx context.Context, source string, n int) ([]domain.Reading, error) {
	path, err := SourcePath(q.dir, source)
	if err != nil {
		q.observe("invalid")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		q.observe("canceled")
		return nil, err
	}

	// Concurrent identical queries share one file read. The shared read is
	// detached from any single caller; each caller only stops waiting on its
	// own cancellation.
	key := path + ":" + strconv.Itoa(n)
	flightCtx := context.WithoutCancel(ctx)
	ch := q.group.DoChan(key, func() (any, error) {
		lines, err := TailLines(flightCtx, path, n)
		if err != nil {
			return nil, err
		}
		return reading.ParseLines(lines, q.clock.Now()), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		q.observe("canceled")
		return nil, ctx.Err()
	case res = <-ch:
	}

	v, err := res.Val, res.Err
	if errors.Is(err, domain.ErrSourceUnavailable) {
		q.observe("not_found")
		return nil, err
	}
	if err != nil {
		q.observe("error")
		return nil, err
	}

	q.observe("ok")
	return slices.Clone(v.([]domain.Reading)), nil
}

func (q *TailQuery) observe(outcome string) {
	if q.metrics != nil {
		q.metrics.TailQueries.WithLabelValues(outcome).Inc()
	}
}

// TailLines returns the last n non-blank lines of the file at path in file
// order, or all of them when n <= 0. For positive n only a suffix of the file
// is read; the window doubles until it holds n complete lines or reaches the
// start of the file.
func TailLines(ctx context.Context, path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceUnavailable, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrTransientIO, path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", domain.ErrTransientIO, path, err)
	}
	size := info.Size()

	if n <= 0 {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", domain.ErrTransientIO, path, err)
		}
		return nonBlankLines(data), nil
	}

	window := int64(initialTailWindow)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tail %s: %w", path, err)
		}

		start := max(size-window, 0)
		buf := make([]byte, size-start)
		read, err := f.ReadAt(buf, start)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: read %s: %w", domain.ErrTransientIO, path, err)
		}
		buf = buf[:read]

		if start > 0 {
			// The first line in the window may be cut; drop it.
			nl := bytes.IndexByte(buf, '\n')
			if nl < 0 {
				buf = nil
			} else {
				buf = buf[nl+1:]
			}
		}

		lines := nonBlankLines(buf)
		if len(lines) >= n {
			return lines[len(lines)-n:], nil
		}
		if start == 0 {
			return lines, nil
		}
		window *= 2
	}
}

func nonBlankLines(data []byte) []string {
	raw := strings.Split(string(data), "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		if reading.IsBlank(line) {
			continue
		}
		out = append(out, strings.TrimSuffix(line, "\r"))
	}
	return out
}
