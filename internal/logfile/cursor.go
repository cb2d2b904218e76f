package logfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pscheid92/imupulse/internal/domain"
)

const (
	// maxReadPerPoll bounds one poll; a larger backlog drains over several polls.
	maxReadPerPoll = 4 << 20
	// maxPartialLine bounds the unterminated tail carried between polls.
	maxPartialLine = 64 << 10
)

// Cursor reads the bytes appended to a log file since the previous poll.
//
// The offset only moves forward. An unterminated trailing line is held back
// and prefixed onto the next poll's bytes, so a record split across two polls
// is emitted once, whole.
type Cursor struct {
	path string

	mu      sync.Mutex
	offset  int64
	partial []byte
	// discarding is set after an oversized partial line was dropped; bytes
	// are skipped up to and including the next newline.
	discarding bool
}

// NewCursor starts a cursor at the current end of the file at path, so lines
// written before the cursor existed are not returned. A missing file starts at
// offset zero and is picked up once it appears.
func NewCursor(path string) (*Cursor, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewCursorAt(path, 0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", domain.ErrTransientIO, path, err)
	}
	return NewCursorAt(path, info.Size()), nil
}

// NewCursorAt starts a cursor at an explicit byte offset.
func NewCursorAt(path string, offset int64) *Cursor {
	return &Cursor{path: path, offset: offset}
}

// Path returns the watched file path.
func (c *Cursor) Path() string {
	return c.path
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Poll returns the complete lines appended since the last poll, in file order.
// Lines have their terminator (and a trailing '\r') removed; blank lines are
// returned as empty strings and left for the caller to discard.
func (c *Cursor) Poll() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrTransientIO, c.path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", domain.ErrTransientIO, c.path, err)
	}

	size := info.Size()
	if size < c.offset {
		slog.Warn("Log file shrank below cursor offset, ignoring until it grows past it",
			"path", c.path,
			"offset", c.offset,
			"size", size,
		)
		return nil, nil
	}
	if size == c.offset {
		return nil, nil
	}

	want := min(size-c.offset, maxReadPerPoll)
	buf := make([]byte, want)
	n, err := f.ReadAt(buf, c.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read %s at %d: %w", domain.ErrTransientIO, c.path, c.offset, err)
	}
	c.offset += int64(n)

	return c.split(buf[:n]), nil
}

// split joins the carried partial line with fresh bytes and returns the
// complete lines, keeping any unterminated remainder for the next poll.
func (c *Cursor) split(fresh []byte) []string {
	data := fresh
	if c.discarding {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			return nil
		}
		data = data[nl+1:]
		c.discarding = false
	}
	if len(c.partial) > 0 {
		data = append(c.partial, data...)
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		c.keepPartial(data)
		return nil
	}

	complete := string(data[:end])
	c.keepPartial(data[end+1:])

	lines := strings.Split(complete, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func (c *Cursor) keepPartial(rest []byte) {
	if len(rest) > maxPartialLine {
		slog.Warn("Discarding oversized unterminated line",
			"path", c.path,
			"bytes", len(rest),
			"limit", maxPartialLine,
		)
		c.partial = nil
		c.discarding = true
		return
	}
	if len(rest) == 0 {
		c.partial = nil
		return
	}
	c.partial = bytes.Clone(rest)
}
