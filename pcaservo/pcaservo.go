package pcaservo

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"

	"planararm/logger"
	"planararm/servo"
)

const (
	ADDRESS_DEFAULT = pca9685.I2CAddr
	PWM_FREQUENCY   = 50 * physic.Hertz
	// 12-bit counter per period
	COUNTS_PER_PERIOD = 4096
)

// Controller is the part of *pca9685.Dev the board uses.
type Controller interface {
	SetPwmFreq(freqHz physic.Frequency) error
	SetPwm(channel int, on, off gpio.Duty) error
}

// Board drives the two joint servos from a PCA9685 16 channel PWM board.
type Board struct {
	mu       sync.Mutex
	dev      Controller
	bus      i2c.BusCloser
	channels [2]int
	prev     [2]int
}

// Open initialises the host drivers and opens the board on the named bus
// ("" picks the first one).
func Open(busName string, address uint16, shoulder, elbow int) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	dev, err := pca9685.NewI2C(bus, address)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("pca9685 at 0x%02x: %w", address, err)
	}
	board, err := New(dev, shoulder, elbow)
	if err != nil {
		bus.Close()
		return nil, err
	}
	board.bus = bus
	logger.Infof("pca9685 on %s at 0x%02x, shoulder ch%d, elbow ch%d", bus, address, shoulder, elbow)
	return board, nil
}

func New(dev Controller, shoulder, elbow int) (*Board, error) {
	if err := dev.SetPwmFreq(PWM_FREQUENCY); err != nil {
		return nil, fmt.Errorf("pca9685 frequency: %w", err)
	}
	return &Board{
		dev:      dev,
		channels: [2]int{shoulder, elbow},
		prev:     [2]int{-1, -1},
	}, nil
}

// Counts converts a pulse width into the off count of a pulse starting at 0.
func Counts(pulseUS int) gpio.Duty {
	return gpio.Duty(math.Round(float64(pulseUS) * COUNTS_PER_PERIOD / servo.PWM_PERIOD_US))
}

func (b *Board) WriteDuty(ch servo.Channel, pulseUS int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.prev[ch] == pulseUS {
		return
	}
	if err := b.dev.SetPwm(b.channels[ch], 0, Counts(pulseUS)); err != nil {
		logger.Errorf("pca9685 %v ch%d %d us: %v", ch, b.channels[ch], pulseUS, err)
		return
	}
	b.prev[ch] = pulseUS
}

// Close stops the pulses and releases the bus.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for _, ch := range servo.Channels {
		if e := b.dev.SetPwm(b.channels[ch], 0, 0); e != nil {
			err = multierr.Append(err, fmt.Errorf("pca9685 %v ch%d off: %w", ch, b.channels[ch], e))
		}
	}
	if b.bus != nil {
		err = multierr.Append(err, b.bus.Close())
	}
	return err
}
