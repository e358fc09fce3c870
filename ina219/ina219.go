package ina219

import (
	"errors"
	"fmt"
	"math"
)

const (
	_REG_CONFIG       uint8 = 0x00
	_REG_SHUNTVOLTAGE uint8 = 0x01
	_REG_BUSVOLTAGE   uint8 = 0x02
	_REG_POWER        uint8 = 0x03
	_REG_CURRENT      uint8 = 0x04
	_REG_CALIBRATION  uint8 = 0x05
)

type BusVoltageRange uint16

const (
	RANGE_16V BusVoltageRange = 0x00
	RANGE_32V BusVoltageRange = 0x01
)

type Gain uint16

const (
	DIV_1_40MV  Gain = 0x00
	DIV_2_80MV  Gain = 0x01
	DIV_4_160MV Gain = 0x02
	DIV_8_320MV Gain = 0x03
)

type ADCResolution uint16

const (
	ADCRES_12BIT_1S  ADCResolution = 0x03 // 532us
	ADCRES_12BIT_8S  ADCResolution = 0x0B // 4.26ms
	ADCRES_12BIT_32S ADCResolution = 0x0D // 17.02ms
)

type Mode uint16

const (
	POWERDOWN            Mode = 0x00
	SANDBVOLT_CONTINUOUS Mode = 0x07
)

const (
	// 0x40 is taken by the PCA9685 servo board
	ADDRESS_DEFAULT uint8 = 0x41
	// Cal = trunc(0.04096 / (CurrentLSB * Rshunt))
	CALIBRATION_SCALE = 0.04096
	SHUNT_LSB_V       = 0.00001
	BUS_LSB_V         = 0.004
	POWER_LSB_FACTOR  = 20
)

var ErrInvalidShunt = errors.New("invalid shunt configuration")

type Bus interface {
	ReadWord(address uint8, offset uint8) (uint16, error)
	WriteWord(address uint8, offset uint8, data uint16) error
}

// Shunt describes the sense resistor and the current the supply is expected
// to carry.
type Shunt struct {
	Ohms       float64
	MaxCurrent float64
}

// Servo supplies are 5-7.4 V, so the 16 V range and a 0.1 ohm shunt up to 3 A.
var DEFAULT_SHUNT = Shunt{Ohms: 0.1, MaxCurrent: 3.0}

type INA219 struct {
	bus        Bus
	address    uint8
	config     uint16
	calValue   uint16
	currentLSB float64
	powerLSB   float64
}

type Calibration struct {
	Value      uint16
	CurrentLSB float64
	PowerLSB   float64
}

// Calibrate picks the smallest current LSB that covers MaxCurrent with the
// 15 bit current register.
func Calibrate(s Shunt) (Calibration, error) {
	if !(s.Ohms > 0) || !(s.MaxCurrent > 0) {
		return Calibration{}, fmt.Errorf("%w: %.4f ohm, %.3f A", ErrInvalidShunt, s.Ohms, s.MaxCurrent)
	}
	lsb := s.MaxCurrent / 32768
	cal := math.Trunc(CALIBRATION_SCALE / (lsb * s.Ohms))
	if cal > 0xFFFE {
		cal = 0xFFFE
	}
	if cal < 1 {
		return Calibration{}, fmt.Errorf("%w: %.4f ohm, %.3f A out of register range", ErrInvalidShunt, s.Ohms, s.MaxCurrent)
	}
	value := uint16(cal) &^ 1 // bit 0 is reserved
	lsb = CALIBRATION_SCALE / (float64(value) * s.Ohms)
	return Calibration{Value: value, CurrentLSB: lsb, PowerLSB: POWER_LSB_FACTOR * lsb}, nil
}

func gainFor(s Shunt) Gain {
	switch v := s.MaxCurrent * s.Ohms; {
	case v <= 0.04:
		return DIV_1_40MV
	case v <= 0.08:
		return DIV_2_80MV
	case v <= 0.16:
		return DIV_4_160MV
	}
	return DIV_8_320MV
}

func New(bus Bus, address uint8, shunt Shunt) (*INA219, error) {
	cal, err := Calibrate(shunt)
	if err != nil {
		return nil, err
	}
	i := &INA219{
		bus:        bus,
		address:    address,
		calValue:   cal.Value,
		currentLSB: cal.CurrentLSB,
		powerLSB:   cal.PowerLSB,
		config: uint16(RANGE_16V)<<13 |
			uint16(gainFor(shunt))<<11 |
			uint16(ADCRES_12BIT_8S)<<7 |
			uint16(ADCRES_12BIT_8S)<<3 |
			uint16(SANDBVOLT_CONTINUOUS),
	}
	if err := i.bus.WriteWord(i.address, _REG_CALIBRATION, i.calValue); err != nil {
		return nil, fmt.Errorf("ina219 calibration: %w", err)
	}
	if err := i.bus.WriteWord(i.address, _REG_CONFIG, i.config); err != nil {
		return nil, fmt.Errorf("ina219 config: %w", err)
	}
	return i, nil
}

func (i *INA219) Calibration() Calibration {
	return Calibration{Value: i.calValue, CurrentLSB: i.currentLSB, PowerLSB: i.powerLSB}
}

func (i *INA219) ReadShuntVoltage() (float64, error) {
	value, err := i.bus.ReadWord(i.address, _REG_SHUNTVOLTAGE)
	if err != nil {
		return 0, err
	}
	return float64(int16(value)) * SHUNT_LSB_V, nil
}

func (i *INA219) ReadBusVoltage() (float64, error) {
	value, err := i.bus.ReadWord(i.address, _REG_BUSVOLTAGE)
	if err != nil {
		return 0, err
	}
	return float64(value>>3) * BUS_LSB_V, nil
}

// ReadCurrent returns amps; a negative value means current flows back into the supply.
func (i *INA219) ReadCurrent() (float64, error) {
	// the calibration register is lost on a brownout
	if err := i.bus.WriteWord(i.address, _REG_CALIBRATION, i.calValue); err != nil {
		return 0, err
	}
	value, err := i.bus.ReadWord(i.address, _REG_CURRENT)
	if err != nil {
		return 0, err
	}
	return float64(int16(value)) * i.currentLSB, nil
}

func (i *INA219) ReadPower() (float64, error) {
	value, err := i.bus.ReadWord(i.address, _REG_POWER)
	if err != nil {
		return 0, err
	}
	return float64(value) * i.powerLSB, nil
}

func (i *INA219) PowerDown() error {
	return i.bus.WriteWord(i.address, _REG_CONFIG, i.config&^0x7|uint16(POWERDOWN))
}
