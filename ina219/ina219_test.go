package ina219

import (
	"errors"
	"math"
	"testing"
)

type write struct {
	offset uint8
	data   uint16
}

type fakeBus struct {
	regs   map[uint8]uint16
	writes []write
	err    error
}

func (b *fakeBus) ReadWord(address uint8, offset uint8) (uint16, error) {
	if b.err != nil {
		return 0, b.err
	}
	return b.regs[offset], nil
}

func (b *fakeBus) WriteWord(address uint8, offset uint8, data uint16) error {
	if b.err != nil {
		return b.err
	}
	b.writes = append(b.writes, write{offset, data})
	return nil
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func TestCalibrate(t *testing.T) {
	cal, err := Calibrate(DEFAULT_SHUNT)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if cal.Value != 4472 {
		t.Fatalf("calibration = %d, want 4472", cal.Value)
	}
	if !nearlyEqual(cal.CurrentLSB, 0.04096/447.2) || !nearlyEqual(cal.PowerLSB, 20*cal.CurrentLSB) {
		t.Fatalf("lsb = %v", cal)
	}
	for _, s := range []Shunt{{0, 1}, {0.1, 0}, {-1, 1}, {math.NaN(), 1}} {
		if _, err := Calibrate(s); !errors.Is(err, ErrInvalidShunt) {
			t.Fatalf("Calibrate(%v) err = %v", s, err)
		}
	}
}

func TestNewWritesCalibrationThenConfig(t *testing.T) {
	bus := &fakeBus{}
	if _, err := New(bus, ADDRESS_DEFAULT, DEFAULT_SHUNT); err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []write{{_REG_CALIBRATION, 4472}, {_REG_CONFIG, 0x1DDF}}
	if len(bus.writes) != len(want) {
		t.Fatalf("writes = %v", bus.writes)
	}
	for i := range want {
		if bus.writes[i] != want[i] {
			t.Fatalf("write %d = %+v, want %+v", i, bus.writes[i], want[i])
		}
	}

	if _, err := New(&fakeBus{err: errors.New("nack")}, ADDRESS_DEFAULT, DEFAULT_SHUNT); err == nil {
		t.Fatal("expected an error from a dead bus")
	}
}

func TestReadings(t *testing.T) {
	bus := &fakeBus{regs: map[uint8]uint16{
		_REG_BUSVOLTAGE:   1250 << 3,
		_REG_SHUNTVOLTAGE: 0xFF9C, // -100
		_REG_CURRENT:      1000,
		_REG_POWER:        500,
	}}
	dev, err := New(bus, ADDRESS_DEFAULT, DEFAULT_SHUNT)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lsb := dev.Calibration().CurrentLSB

	if v, err := dev.ReadBusVoltage(); err != nil || !nearlyEqual(v, 5.0) {
		t.Fatalf("bus voltage = %v, %v", v, err)
	}
	if v, err := dev.ReadShuntVoltage(); err != nil || !nearlyEqual(v, -0.001) {
		t.Fatalf("shunt voltage = %v, %v", v, err)
	}
	if v, err := dev.ReadCurrent(); err != nil || !nearlyEqual(v, 1000*lsb) {
		t.Fatalf("current = %v, %v", v, err)
	}
	if v, err := dev.ReadPower(); err != nil || !nearlyEqual(v, 500*20*lsb) {
		t.Fatalf("power = %v, %v", v, err)
	}

	bus.regs[_REG_CURRENT] = 0xFFFF
	if v, _ := dev.ReadCurrent(); !nearlyEqual(v, -lsb) {
		t.Fatalf("reverse current = %v", v)
	}
}
