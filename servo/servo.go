package servo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Channel addresses one of the two independently driven PWM outputs.
type Channel int

const (
	SHOULDER Channel = 0
	ELBOW    Channel = 1
)

var Channels = [...]Channel{SHOULDER, ELBOW}

func (c Channel) String() string {
	switch c {
	case SHOULDER:
		return "shoulder"
	case ELBOW:
		return "elbow"
	}
	return fmt.Sprintf("channel%d", int(c))
}

const PWM_PERIOD = 20 * time.Millisecond
const PWM_PERIOD_US = 20000

var ErrInvalidRange = errors.New("invalid actuation range")

// Range linearly maps [0, AngleSpanDeg] onto [PulseMinUS, PulseMaxUS].
type Range struct {
	PulseMinUS   int
	PulseMaxUS   int
	AngleSpanDeg float64
}

var DEFAULT_RANGE = Range{PulseMinUS: 1000, PulseMaxUS: 2000, AngleSpanDeg: 180}

func NewRange(pulseMinUS, pulseMaxUS int, angleSpanDeg float64) (Range, error) {
	if pulseMinUS < 0 || pulseMinUS >= pulseMaxUS {
		return Range{}, fmt.Errorf("%w: pulse [%d, %d] us", ErrInvalidRange, pulseMinUS, pulseMaxUS)
	}
	if !(angleSpanDeg > 0) || math.IsInf(angleSpanDeg, 0) {
		return Range{}, fmt.Errorf("%w: angle span %v deg", ErrInvalidRange, angleSpanDeg)
	}
	return Range{PulseMinUS: pulseMinUS, PulseMaxUS: pulseMaxUS, AngleSpanDeg: angleSpanDeg}, nil
}

func (r Range) ClampAngle(angleDeg float64) float64 {
	if math.IsNaN(angleDeg) || angleDeg < 0 {
		return 0
	}
	if angleDeg > r.AngleSpanDeg {
		return r.AngleSpanDeg
	}
	return angleDeg
}

// PulseWidth never fails: out of range angles are clamped to the span.
func (r Range) PulseWidth(angleDeg float64) int {
	angle := r.ClampAngle(angleDeg)
	return r.PulseMinUS + int(math.Round(angle/r.AngleSpanDeg*float64(r.PulseMaxUS-r.PulseMinUS)))
}

// Angle is the inverse of PulseWidth for backends reporting pulse widths.
func (r Range) Angle(pulseUS float64) float64 {
	span := float64(r.PulseMaxUS - r.PulseMinUS)
	frac := (pulseUS - float64(r.PulseMinUS)) / span
	return r.ClampAngle(frac * r.AngleSpanDeg)
}

func (r Range) Center() int {
	return r.PulseWidth(r.AngleSpanDeg / 2)
}
