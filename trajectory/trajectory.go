package trajectory

import (
	"errors"
	"fmt"
	"time"

	"planararm/kinematics"
)

var (
	ErrNoWaypoints   = errors.New("trajectory has no waypoints")
	ErrInvalidConfig = errors.New("invalid trajectory config")
)

type Config struct {
	StepsPerSegment int
	InterStepDelay  time.Duration
	Closed          bool
}

func (c Config) Validate() error {
	if c.StepsPerSegment < 1 {
		return fmt.Errorf("%w: steps per segment %d < 1", ErrInvalidConfig, c.StepsPerSegment)
	}
	if c.InterStepDelay < 0 {
		return fmt.Errorf("%w: negative inter step delay %v", ErrInvalidConfig, c.InterStepDelay)
	}
	return nil
}

type State int

const (
	STATE_IDLE State = iota
	STATE_INTERPOLATING
	STATE_DONE
)

func (s State) String() string {
	switch s {
	case STATE_IDLE:
		return "idle"
	case STATE_INTERPOLATING:
		return "interpolating"
	}
	return "done"
}

// Sample is one interpolated point; Step runs 0..StepsPerSegment inclusive,
// so consecutive segments both emit their shared corner.
type Sample struct {
	Point   kinematics.Point2D `json:"point"`
	Segment int                `json:"segment"`
	Step    int                `json:"step"`
	Cycle   int                `json:"cycle"`
}

// Generator walks straight lines between waypoints. It owns only a cursor;
// the waypoints are copied once and never change.
type Generator struct {
	waypoints []kinematics.Point2D
	config    Config
	state     State
	segment   int
	step      int
	cycle     int
}

func NewGenerator(waypoints []kinematics.Point2D, config Config) (*Generator, error) {
	if len(waypoints) == 0 {
		return nil, ErrNoWaypoints
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		waypoints: append([]kinematics.Point2D(nil), waypoints...),
		config:    config,
	}, nil
}

func (g *Generator) Config() Config {
	return g.config
}

func (g *Generator) State() State {
	return g.state
}

func (g *Generator) Waypoints() []kinematics.Point2D {
	return append([]kinematics.Point2D(nil), g.waypoints...)
}

func (g *Generator) Len() int {
	return len(g.waypoints)
}

// Segments is the number of straight lines in one pass. A lone waypoint
// is a single zero length segment.
func (g *Generator) Segments() int {
	n := len(g.waypoints)
	if n == 1 {
		return 1
	}
	if g.config.Closed {
		return n
	}
	return n - 1
}

func (g *Generator) SamplesPerCycle() int {
	return g.Segments() * (g.config.StepsPerSegment + 1)
}

func (g *Generator) Reset() {
	g.state = STATE_IDLE
	g.segment = 0
	g.step = 0
	g.cycle = 0
}

func (g *Generator) endpoints(segment int) (kinematics.Point2D, kinematics.Point2D) {
	from := g.waypoints[segment]
	if len(g.waypoints) == 1 {
		return from, from
	}
	return from, g.waypoints[(segment+1)%len(g.waypoints)]
}

// Next returns the next sample. It reports false only after an open
// trajectory emitted its last sample; closed ones never end.
func (g *Generator) Next() (Sample, bool) {
	if g.state == STATE_DONE {
		return Sample{}, false
	}
	g.state = STATE_INTERPOLATING

	from, to := g.endpoints(g.segment)
	t := float64(g.step) / float64(g.config.StepsPerSegment)
	sample := Sample{
		Point: kinematics.Point2D{
			X: from.X + t*(to.X-from.X),
			Y: from.Y + t*(to.Y-from.Y),
		},
		Segment: g.segment,
		Step:    g.step,
		Cycle:   g.cycle,
	}

	g.step++
	if g.step > g.config.StepsPerSegment {
		g.step = 0
		g.segment++
		if g.segment >= g.Segments() {
			g.segment = 0
			g.cycle++
			if !g.config.Closed {
				g.state = STATE_DONE
			}
		}
	}
	return sample, true
}
