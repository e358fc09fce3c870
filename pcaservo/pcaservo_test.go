package pcaservo

import (
	"errors"
	"testing"

	"go.uber.org/multierr"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"planararm/servo"
)

type pwmCall struct {
	channel int
	on, off gpio.Duty
}

type fakeController struct {
	freq  physic.Frequency
	calls  []pwmCall
	err    error
	pwmErr error
}

func (c *fakeController) SetPwmFreq(freq physic.Frequency) error {
	c.freq = freq
	return c.err
}

func (c *fakeController) SetPwm(channel int, on, off gpio.Duty) error {
	c.calls = append(c.calls, pwmCall{channel, on, off})
	return c.pwmErr
}

func TestCounts(t *testing.T) {
	cases := map[int]gpio.Duty{1000: 205, 1500: 307, 2000: 410, 0: 0, 20000: 4096}
	for pulse, want := range cases {
		if got := Counts(pulse); got != want {
			t.Errorf("Counts(%d) = %d, want %d", pulse, got, want)
		}
	}
}

func TestBoardWrites(t *testing.T) {
	dev := &fakeController{}
	board, err := New(dev, 3, 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if dev.freq != 50*physic.Hertz {
		t.Fatalf("frequency = %v", dev.freq)
	}
	board.WriteDuty(servo.SHOULDER, 1500)
	board.WriteDuty(servo.ELBOW, 2000)
	board.WriteDuty(servo.ELBOW, 2000)
	want := []pwmCall{{3, 0, 307}, {7, 0, 410}}
	if len(dev.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", dev.calls, want)
	}
	for i := range want {
		if dev.calls[i] != want[i] {
			t.Fatalf("call %d = %v, want %v", i, dev.calls[i], want[i])
		}
	}
	if err := board.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if last := dev.calls[len(dev.calls)-1]; last != (pwmCall{7, 0, 0}) {
		t.Fatalf("Close left %v", last)
	}
}

func TestNewFails(t *testing.T) {
	if _, err := New(&fakeController{err: errors.New("nack")}, 0, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestCloseReportsEveryChannel(t *testing.T) {
	dev := &fakeController{}
	board, err := New(dev, 3, 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	nack := errors.New("nack")
	dev.pwmErr = nack
	err = board.Close()
	if !errors.Is(err, nack) || len(multierr.Errors(err)) != 2 {
		t.Fatalf("Close = %v, want both channels reported", err)
	}
	if len(dev.calls) != 2 || dev.calls[0] != (pwmCall{3, 0, 0}) || dev.calls[1] != (pwmCall{7, 0, 0}) {
		t.Fatalf("calls = %v", dev.calls)
	}
}
