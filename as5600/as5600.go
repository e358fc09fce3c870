package as5600

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// based on: ams AS5600 datasheet v1-06, 12-bit magnetic rotary position sensor

const (
	// zero position, two registers, high byte first (R/W)
	_REG_ZPOS uint8 = 0x01
	// maximum position (R/W)
	_REG_MPOS uint8 = 0x03
	// configuration (R/W)
	_REG_CONF uint8 = 0x07

	// STATUS REGISTER (R)
	_REG_STATUS uint8 = 0x0B
	// RAW ANGLE REGISTER, unscaled and unmodified (R)
	_REG_RAW_ANGLE uint8 = 0x0C
	// ANGLE REGISTER, scaled by ZPOS/MPOS (R)
	_REG_ANGLE uint8 = 0x0E

	// automatic gain control (R)
	_REG_AGC uint8 = 0x1A
	// CORDIC magnitude (R)
	_REG_MAGNITUDE uint8 = 0x1B
)

const ADDRESS_DEFAULT uint8 = 0x36

const (
	RESOLUTION = 4096
	ANGLE_MASK = 0x0FFF
)

// Joint angles are reported in [WRAP_LOW_DEG, WRAP_LOW_DEG+360), so a joint
// resting slightly below its zero reads as a small negative angle.
const WRAP_LOW_DEG = -90.0

var (
	ErrNoMagnet = errors.New("as5600: no magnet detected")
	ErrMagnet   = errors.New("as5600: magnet field out of range")
)

type Status uint8

const (
	STATUS_MAGNET_HIGH     Status = 0x08 // AGC minimum gain overflow, magnet too strong
	STATUS_MAGNET_LOW      Status = 0x10 // AGC maximum gain overflow, magnet too weak
	STATUS_MAGNET_DETECTED Status = 0x20
)

func (s Status) Detected() bool {
	return s&STATUS_MAGNET_DETECTED != 0
}

func (s Status) TooStrong() bool {
	return s&STATUS_MAGNET_HIGH != 0
}

func (s Status) TooWeak() bool {
	return s&STATUS_MAGNET_LOW != 0
}

func (s Status) String() string {
	var flags []string
	if s.Detected() {
		flags = append(flags, "detected")
	}
	if s.TooStrong() {
		flags = append(flags, "too strong")
	}
	if s.TooWeak() {
		flags = append(flags, "too weak")
	}
	if len(flags) == 0 {
		return "no magnet"
	}
	return strings.Join(flags, ", ")
}

// Bus is the register access the sensor needs. *i2c.Bus implements it.
type Bus interface {
	ReadByte(address uint8, offset uint8) (uint8, error)
	ReadWord(address uint8, offset uint8) (uint16, error)
}

type AS5600 struct {
	bus       Bus
	address   uint8
	offsetDeg float64
	inverted  bool
}

// New checks that a magnet sits in front of the sensor. A weak or strong
// field is accepted; readings are still valid, only noisier.
func New(bus Bus, address uint8) (*AS5600, error) {
	a := &AS5600{
		bus:     bus,
		address: address,
	}
	status, err := a.Status()
	if err != nil {
		return nil, err
	}
	if !status.Detected() {
		return nil, fmt.Errorf("%w at 0x%02x", ErrNoMagnet, address)
	}
	return a, nil
}

// SetZero makes the given raw sensor angle read as joint angle 0.
func (a *AS5600) SetZero(offsetDeg float64) {
	a.offsetDeg = offsetDeg
}

// SetInverted flips the direction of rotation, for sensors mounted facing
// the other way.
func (a *AS5600) SetInverted(inverted bool) {
	a.inverted = inverted
}

func (a *AS5600) Status() (Status, error) {
	value, err := a.bus.ReadByte(a.address, _REG_STATUS)
	if err != nil {
		return 0, err
	}
	return Status(value), nil
}

func (a *AS5600) ReadRawAngle() (uint16, error) {
	value, err := a.bus.ReadWord(a.address, _REG_RAW_ANGLE)
	if err != nil {
		return 0, err
	}
	return value & ANGLE_MASK, nil
}

func (a *AS5600) ReadMagnitude() (uint16, error) {
	value, err := a.bus.ReadWord(a.address, _REG_MAGNITUDE)
	if err != nil {
		return 0, err
	}
	return value & ANGLE_MASK, nil
}

func (a *AS5600) ReadAGC() (uint8, error) {
	return a.bus.ReadByte(a.address, _REG_AGC)
}

// ReadDegrees is the raw angle in degrees, [0, 360).
func (a *AS5600) ReadDegrees() (float64, error) {
	raw, err := a.ReadRawAngle()
	if err != nil {
		return 0, err
	}
	return float64(raw) * 360 / RESOLUTION, nil
}

// ReadJointAngle applies direction and zero offset to the raw angle.
func (a *AS5600) ReadJointAngle() (float64, error) {
	degrees, err := a.ReadDegrees()
	if err != nil {
		return 0, err
	}
	return JointAngle(degrees, a.offsetDeg, a.inverted), nil
}

func JointAngle(sensorDeg, offsetDeg float64, inverted bool) float64 {
	if inverted {
		sensorDeg = 360 - sensorDeg
	}
	angle := math.Mod(sensorDeg-offsetDeg-WRAP_LOW_DEG, 360)
	if angle < 0 {
		angle += 360
	}
	return angle + WRAP_LOW_DEG
}
