package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pscheid92/imupulse/internal/domain"
)

// maxLineBytes bounds a single device line. Longer lines end the session.
const maxLineBytes = 64 << 10

// Device emits the lines read from a device path.
type Device struct {
	path string
	baud int
}

func NewDevice(path string, baud int) *Device {
	return &Device{path: path, baud: baud}
}

func (d *Device) Path() string { return d.path }

// Baud is informational; line discipline is left to the OS.
func (d *Device) Baud() int { return d.baud }

// Run opens the device and emits every line until ctx is cancelled or the
// device reaches EOF. A cancelled context is not an error.
func (d *Device) Run(ctx context.Context, emit func(line string)) error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("%w: open device %s: %w", domain.ErrSourceUnavailable, d.path, err)
	}

	// Closing the file unblocks a pending read once ctx is cancelled.
	var closeOnce sync.Once
	closeFile := func() { closeOnce.Do(func() { _ = f.Close() }) }
	defer closeFile()

	stop := context.AfterFunc(ctx, closeFile)
	defer stop()

	slog.InfoContext(ctx, "Device opened", "path", d.path, "baud", d.baud)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		emit(strings.TrimRight(scanner.Text(), "\r"))
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("%w: read device %s: %w", domain.ErrTransientIO, d.path, err)
	}
	slog.InfoContext(ctx, "Device reached end of input", "path", d.path)
	return nil
}
