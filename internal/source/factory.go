package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/domain"
)

// ErrInvalidRate is returned for a non-positive rate.
var ErrInvalidRate = errors.New("rate must be positive")

// MaxSimulatorRate caps the simulator's samples per second.
const MaxSimulatorRate = 1000

// Factory builds line producers from a source id and rate.
type Factory struct {
	clock clockwork.Clock
}

func NewFactory(clock clockwork.Clock) *Factory {
	return &Factory{clock: clock}
}

// New returns a Simulator for SimulatorID and a Device for anything else,
// treating the id as a device path. For a device, rate is the baud rate; for
// the simulator it is samples per second.
func (f *Factory) New(id string, rate int) (domain.LineProducer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty source", domain.ErrUnknownSource)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRate, rate)
	}

	if id == SimulatorID {
		if rate > MaxSimulatorRate {
			return nil, fmt.Errorf("%w: simulator rate %d exceeds %d", ErrInvalidRate, rate, MaxSimulatorRate)
		}
		return NewSimulator(f.clock, rate), nil
	}
	return NewDevice(id, rate), nil
}
