package pwm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Bus int

const (
	Bus0 Bus = 0
	Bus1 Bus = 1
	Bus2 Bus = 2
)

type Channel string

const (
	ChannelA Channel = "a"
	ChannelB Channel = "b"
)

type Polarity string

const (
	PolarityNormal   Polarity = "normal"
	PolarityInversed Polarity = "inversed"
)

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelA, ChannelB:
		return Channel(s), nil
	}
	return ChannelA, fmt.Errorf("unknown pwm channel %q", s)
}

// ParseOutput splits "<bus>/<channel>", e.g. "0/a".
func ParseOutput(s string) (Bus, Channel, error) {
	busPart, chPart, ok := strings.Cut(s, "/")
	if !ok {
		return Bus0, ChannelA, fmt.Errorf("pwm output %q is not <bus>/<channel>", s)
	}
	bus, err := strconv.Atoi(busPart)
	if err != nil || bus < 0 {
		return Bus0, ChannelA, fmt.Errorf("pwm output %q: bad bus", s)
	}
	ch, err := ParseChannel(chPart)
	if err != nil {
		return Bus0, ChannelA, err
	}
	return Bus(bus), ch, nil
}

func ParsePolarity(s string) (Polarity, error) {
	switch Polarity(s) {
	case "":
		return PolarityNormal, nil
	case PolarityNormal, PolarityInversed:
		return Polarity(s), nil
	}
	return PolarityNormal, fmt.Errorf("unknown pwm polarity %q", s)
}

// BeagleBone AI-64 symlinks, one directory per bus and channel
const DEFAULT_ROOT = "/dev/bone/pwm"

type PWM struct {
	name      string
	enable    string
	dutyCycle string
	period    string
	polarity  string
}

func NewPWM(bus Bus, channel Channel) *PWM {
	return NewPWMAt(DEFAULT_ROOT, bus, channel)
}

// NewPWMAt addresses <root>/<bus>/<channel>/{enable,duty_cycle,period,polarity}.
func NewPWMAt(root string, bus Bus, channel Channel) *PWM {
	dir := filepath.Join(root, fmt.Sprintf("%d", bus), string(channel))
	return &PWM{
		name:      fmt.Sprintf("pwm%d%s", bus, channel),
		enable:    filepath.Join(dir, "enable"),
		dutyCycle: filepath.Join(dir, "duty_cycle"),
		period:    filepath.Join(dir, "period"),
		polarity:  filepath.Join(dir, "polarity"),
	}
}

func (pwm *PWM) String() string {
	return pwm.name
}

func (pwm *PWM) Enable() error {
	return os.WriteFile(pwm.enable, []byte{'1'}, 0666)
}

func (pwm *PWM) Disable() error {
	return os.WriteFile(pwm.enable, []byte{'0'}, 0666)
}

func (pwm *PWM) Polarity(polarity Polarity) error {
	return os.WriteFile(pwm.polarity, []byte(polarity), 0666)
}

func (pwm *PWM) Period(period time.Duration) error {
	value := fmt.Sprintf("%d", period.Nanoseconds())
	return os.WriteFile(pwm.period, []byte(value), 0666)
}

func (pwm *PWM) DutyCycle(dutyCycle time.Duration) error {
	value := fmt.Sprintf("%d", dutyCycle.Nanoseconds())
	return os.WriteFile(pwm.dutyCycle, []byte(value), 0666)
}
