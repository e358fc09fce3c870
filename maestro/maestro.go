package maestro

// Pololu Maestro USB servo controller, serial protocol.
// See: https://www.pololu.com/docs/pdf/0J40/maestro.pdf

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"planararm/logger"
	"planararm/servo"
)

const (
	cmdSetTarget       = 0x84
	cmdSetSpeed        = 0x87
	cmdSetAcceleration = 0x89
	cmdGetPosition     = 0x90
	cmdGetMovingState  = 0x93
	cmdGetErrors       = 0xa1
	cmdGoHome          = 0xa2
)

const (
	DEFAULT_BAUD         = 9600
	DEFAULT_DEVICE       = 12
	DEFAULT_READ_TIMEOUT = 100 * time.Millisecond
	// targets and positions are in quarter microseconds
	UNITS_PER_US = 4
)

// OpenPort opens the Maestro command port, e.g. /dev/ttyACM0.
func OpenPort(name string, baud int, readTimeout time.Duration) (*serial.Port, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout})
}

// GetError converts an error bitmap into an error, nil when no bit is set.
func GetError(val uint16) error {
	errorStrings := []string{
		"serial signal error",
		"serial overrun error",
		"serial buffer full",
		"serial crc error",
		"serial protocol error",
		"serial timeout",
		"script stack error",
		"script call stack error",
		"script program counter error",
	}
	s := []string{}
	for i, err := range errorStrings {
		if val&(1<<i) != 0 {
			s = append(s, err)
		}
	}
	if len(s) == 0 {
		return nil
	}
	return errors.New(strings.Join(s, ","))
}

func lo(x uint16) byte {
	return byte(x & 0x7f)
}

func hi(x uint16) byte {
	return byte((x >> 7) & 0x7f)
}

// Controller talks to one Maestro. Commands and their replies are serialised
// so a position query can run while the control loop is writing targets.
type Controller struct {
	mu      sync.Mutex
	port    io.ReadWriter
	device  uint8
	compact bool // single device on the line, no device number
}

func NewController(port io.ReadWriter, device uint8, compact bool) *Controller {
	return &Controller{
		port:    port,
		device:  device,
		compact: compact,
	}
}

func (c *Controller) frame(command uint8, args ...byte) []byte {
	var cmd []byte
	if c.compact {
		cmd = []byte{command}
	} else {
		cmd = []byte{0xaa, c.device, command & 0x7f}
	}
	return append(cmd, args...)
}

func (c *Controller) send(cmd []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.port.Write(cmd)
	return err
}

func (c *Controller) query(cmd []byte, replyLen int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.port.Write(cmd); err != nil {
		return nil, err
	}
	buf := make([]byte, replyLen)
	if _, err := io.ReadFull(c.port, buf); err != nil {
		return nil, fmt.Errorf("maestro reply: %w", err)
	}
	return buf, nil
}

// SetTarget moves a channel to target quarter microseconds, 0 stops pulses.
func (c *Controller) SetTarget(channel uint8, target uint16) error {
	return c.send(c.frame(cmdSetTarget, channel, lo(target), hi(target)))
}

// SetSpeed limits the target slew rate, 0 is no limit.
func (c *Controller) SetSpeed(channel uint8, speed uint16) error {
	return c.send(c.frame(cmdSetSpeed, channel, lo(speed), hi(speed)))
}

func (c *Controller) SetAcceleration(channel uint8, acceleration uint16) error {
	return c.send(c.frame(cmdSetAcceleration, channel, lo(acceleration), hi(acceleration)))
}

// GetPosition returns the position the channel is currently commanding, in
// quarter microseconds. With speed or acceleration limits it lags the target.
func (c *Controller) GetPosition(channel uint8) (uint16, error) {
	buf, err := c.query(c.frame(cmdGetPosition, channel), 2)
	if err != nil {
		return 0, err
	}
	return uint16(buf[0]) + uint16(buf[1])<<8, nil
}

func (c *Controller) GetMovingState() (bool, error) {
	buf, err := c.query(c.frame(cmdGetMovingState), 1)
	if err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// GetErrors reads and clears the controller error register.
func (c *Controller) GetErrors() error {
	buf, err := c.query(c.frame(cmdGetErrors), 2)
	if err != nil {
		return err
	}
	return GetError((uint16(buf[0]) & 0x7f) + (uint16(buf[1])&0x7f)<<8)
}

func (c *Controller) GoHome() error {
	return c.send(c.frame(cmdGoHome))
}

// Arm maps the two joints onto Maestro channels. It is both the actuation
// sink and, through position readback, an angle source.
type Arm struct {
	ctrl     *Controller
	channels [2]uint8
	mapper   servo.Range
}

func NewArm(ctrl *Controller, shoulder, elbow uint8, mapper servo.Range) *Arm {
	return &Arm{
		ctrl:     ctrl,
		channels: [2]uint8{shoulder, elbow},
		mapper:   mapper,
	}
}

// Configure applies per channel speed and acceleration limits.
func (a *Arm) Configure(speed, acceleration uint16) error {
	for _, ch := range servo.Channels {
		if err := a.ctrl.SetSpeed(a.channels[ch], speed); err != nil {
			return fmt.Errorf("%v speed: %w", ch, err)
		}
		if err := a.ctrl.SetAcceleration(a.channels[ch], acceleration); err != nil {
			return fmt.Errorf("%v acceleration: %w", ch, err)
		}
	}
	return a.ctrl.GetErrors()
}

func (a *Arm) WriteDuty(ch servo.Channel, pulseUS int) {
	if err := a.ctrl.SetTarget(a.channels[ch], uint16(pulseUS*UNITS_PER_US)); err != nil {
		logger.Errorf("maestro %v target %d us: %v", ch, pulseUS, err)
	}
}

func (a *Arm) ReadAngle(ch servo.Channel) float64 {
	position, err := a.ctrl.GetPosition(a.channels[ch])
	if err != nil {
		logger.Warnf("maestro %v position: %v", ch, err)
		return math.NaN()
	}
	if position == 0 {
		// channel is off
		return math.NaN()
	}
	return a.mapper.Angle(float64(position) / UNITS_PER_US)
}
