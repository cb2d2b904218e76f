package reading

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/imupulse/internal/domain"
)

const axisCount = 3

// IsBlank reports whether raw carries no content. Blank lines never produce a Reading.
func IsBlank(raw string) bool {
	return strings.TrimSpace(raw) == ""
}

// Parse converts raw into a Reading observed at observedAt.
func Parse(raw string, observedAt time.Time) domain.Reading {
	r, _ := ParseDetailed(raw, observedAt)
	return r
}

// ParseDetailed is Parse plus the number of axis fields that were missing,
// not numeric or not finite and therefore defaulted to zero.
func ParseDetailed(raw string, observedAt time.Time) (domain.Reading, int) {
	line := strings.TrimSpace(raw)
	fields := strings.Split(line, ",")

	var axes [axisCount]float64
	malformed := 0
	for i := range axisCount {
		if i >= len(fields) {
			malformed++
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		// Non-finite values cannot be encoded as JSON numbers.
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			malformed++
			continue
		}
		axes[i] = v
	}

	return domain.Reading{
		Ax:         axes[0],
		Ay:         axes[1],
		Az:         axes[2],
		Raw:        line,
		ObservedAt: observedAt,
	}, malformed
}

// ParseLines parses every non-blank line in order, stamping each with observedAt.
func ParseLines(lines []string, observedAt time.Time) []domain.Reading {
	out := make([]domain.Reading, 0, len(lines))
	for _, line := range lines {
		if IsBlank(line) {
			continue
		}
		out = append(out, Parse(line, observedAt))
	}
	return out
}
