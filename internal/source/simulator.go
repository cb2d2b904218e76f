package source

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// SimulatorID is the source id that selects the simulator.
const SimulatorID = "sim"

const standardGravity = 9.81

// Simulator emits synthetic "ax,ay,az" lines at a fixed sample rate. The
// signal is a slow rotation around the z axis with gravity on az, so
// consecutive samples differ and sample i is always the same value.
type Simulator struct {
	clock clockwork.Clock
	rate  int
}

func NewSimulator(clock clockwork.Clock, rate int) *Simulator {
	return &Simulator{clock: clock, rate: rate}
}

// Interval is the time between two samples.
func (s *Simulator) Interval() time.Duration {
	return time.Second / time.Duration(s.rate)
}

// Run emits one sample per Interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, emit func(line string)) error {
	ticker := s.clock.NewTicker(s.Interval())
	defer ticker.Stop()

	slog.InfoContext(ctx, "Simulator started", "rate", s.rate, "interval", s.Interval())

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			emit(Sample(i))
		}
	}
}

// Sample formats the i-th synthetic sample.
func Sample(i int) string {
	phase := float64(i) * math.Pi / 50
	ax := math.Sin(phase)
	ay := math.Cos(phase)
	az := standardGravity + 0.1*math.Sin(phase*3)
	return fmt.Sprintf("%.4f,%.4f,%.4f", ax, ay, az)
}
