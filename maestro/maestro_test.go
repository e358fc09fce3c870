package maestro

import (
	"bytes"
	"math"
	"testing"

	"planararm/servo"
)

type fakePort struct {
	written bytes.Buffer
	replies bytes.Buffer
}

func (p *fakePort) Write(b []byte) (int, error) {
	return p.written.Write(b)
}

func (p *fakePort) Read(b []byte) (int, error) {
	return p.replies.Read(b)
}

func TestSetTargetFrames(t *testing.T) {
	port := &fakePort{}
	arm := NewArm(NewController(port, DEFAULT_DEVICE, false), 0, 1, servo.DEFAULT_RANGE)
	arm.WriteDuty(servo.SHOULDER, 1500)
	want := []byte{0xaa, 0x0c, 0x04, 0x00, 0x70, 0x2e}
	if !bytes.Equal(port.written.Bytes(), want) {
		t.Fatalf("pololu frame % x, want % x", port.written.Bytes(), want)
	}

	port = &fakePort{}
	arm = NewArm(NewController(port, DEFAULT_DEVICE, true), 4, 5, servo.DEFAULT_RANGE)
	arm.WriteDuty(servo.ELBOW, 1000)
	// 4000 quarter us = 0x0fa0 -> 0x20, 0x1f
	want = []byte{0x84, 0x05, 0x20, 0x1f}
	if !bytes.Equal(port.written.Bytes(), want) {
		t.Fatalf("compact frame % x, want % x", port.written.Bytes(), want)
	}
}

func TestReadAngle(t *testing.T) {
	port := &fakePort{}
	arm := NewArm(NewController(port, DEFAULT_DEVICE, true), 0, 1, servo.DEFAULT_RANGE)
	port.replies.Write([]byte{0x70, 0x17}) // 6000 quarter us = 1500 us
	if got := arm.ReadAngle(servo.ELBOW); got != 90 {
		t.Fatalf("angle = %v, want 90", got)
	}
	if want := []byte{0x90, 0x01}; !bytes.Equal(port.written.Bytes(), want) {
		t.Fatalf("query % x, want % x", port.written.Bytes(), want)
	}

	port.replies.Write([]byte{0x00, 0x00})
	if got := arm.ReadAngle(servo.ELBOW); !math.IsNaN(got) {
		t.Fatalf("disabled channel angle = %v, want NaN", got)
	}

	port.replies.Write([]byte{0x70})
	if got := arm.ReadAngle(servo.SHOULDER); !math.IsNaN(got) {
		t.Fatalf("short reply angle = %v, want NaN", got)
	}
}

func TestConfigure(t *testing.T) {
	port := &fakePort{}
	arm := NewArm(NewController(port, DEFAULT_DEVICE, true), 0, 1, servo.DEFAULT_RANGE)
	port.replies.Write([]byte{0x00, 0x00})
	if err := arm.Configure(10, 3); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	want := []byte{
		0x87, 0x00, 10, 0, 0x89, 0x00, 3, 0,
		0x87, 0x01, 10, 0, 0x89, 0x01, 3, 0,
		0xa1,
	}
	if !bytes.Equal(port.written.Bytes(), want) {
		t.Fatalf("configure wrote % x, want % x", port.written.Bytes(), want)
	}

	port.replies.Write([]byte{0x10, 0x00})
	if err := arm.Configure(0, 0); err == nil || err.Error() != "serial protocol error" {
		t.Fatalf("err = %v, want serial protocol error", err)
	}
}

func TestGetError(t *testing.T) {
	if err := GetError(0); err != nil {
		t.Fatalf("GetError(0) = %v", err)
	}
	if err := GetError(0x0101); err == nil || err.Error() != "serial signal error,script program counter error" {
		t.Fatalf("GetError = %v", err)
	}
}
