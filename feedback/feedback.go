package feedback

import (
	"errors"
	"fmt"
	"math"
	"time"

	"planararm/servo"
)

const (
	DEFAULT_KP             = 1.0
	DEFAULT_KI             = 0.5
	DEFAULT_INTEGRAL_CLAMP = 50.0
	DEFAULT_PERIOD         = 20 * time.Millisecond

	MIN_COMMAND_DEG = 0.0
	MAX_COMMAND_DEG = 180.0
)

var ErrInvalidGains = errors.New("invalid feedback gains")

type Gains struct {
	Kp            float64
	Ki            float64
	IntegralClamp float64 // anti windup bound on the accumulated error, degree seconds
	Period        time.Duration
}

var DEFAULT_GAINS = Gains{
	Kp:            DEFAULT_KP,
	Ki:            DEFAULT_KI,
	IntegralClamp: DEFAULT_INTEGRAL_CLAMP,
	Period:        DEFAULT_PERIOD,
}

func (g Gains) Validate() error {
	switch {
	case g.Kp < 0 || math.IsNaN(g.Kp):
		return fmt.Errorf("%w: kp %v", ErrInvalidGains, g.Kp)
	case g.Ki < 0 || math.IsNaN(g.Ki):
		return fmt.Errorf("%w: ki %v", ErrInvalidGains, g.Ki)
	case !(g.IntegralClamp >= 0):
		return fmt.Errorf("%w: integral clamp %v", ErrInvalidGains, g.IntegralClamp)
	case g.Period <= 0:
		return fmt.Errorf("%w: period %v", ErrInvalidGains, g.Period)
	}
	return nil
}

type ControllerState struct {
	Integral [len(servo.Channels)]float64
}

// Controller is a per channel PI corrector. It is not safe for concurrent
// use; the control loop owns it.
type Controller struct {
	gains  Gains
	dt     float64
	mapper servo.Range
	state  ControllerState
}

func NewController(gains Gains, mapper servo.Range) (*Controller, error) {
	if err := gains.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		gains:  gains,
		dt:     gains.Period.Seconds(),
		mapper: mapper,
	}, nil
}

func (c *Controller) Gains() Gains {
	return c.gains
}

// Correct returns the corrected angle command for one channel and advances
// that channel's integral. A channel outside servo.Channels has no integral;
// its desired angle is passed through, clamped.
func (c *Controller) Correct(ch servo.Channel, desiredDeg, currentDeg float64) float64 {
	if ch < 0 || int(ch) >= len(c.state.Integral) {
		return math.Max(MIN_COMMAND_DEG, math.Min(MAX_COMMAND_DEG, desiredDeg))
	}
	err := desiredDeg - currentDeg
	integral := c.state.Integral[ch] + err*c.dt
	integral = math.Max(-c.gains.IntegralClamp, math.Min(c.gains.IntegralClamp, integral))
	c.state.Integral[ch] = integral

	command := currentDeg + c.gains.Kp*err + c.gains.Ki*integral
	return math.Max(MIN_COMMAND_DEG, math.Min(MAX_COMMAND_DEG, command))
}

// Command is Correct followed by the pulse mapping.
func (c *Controller) Command(ch servo.Channel, desiredDeg, currentDeg float64) int {
	return c.mapper.PulseWidth(c.Correct(ch, desiredDeg, currentDeg))
}

func (c *Controller) Reset() {
	c.state = ControllerState{}
}

func (c *Controller) State() ControllerState {
	return c.state
}
