package pwm

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"planararm/logger"
	"planararm/servo"
)

// Pair drives the shoulder and elbow servos from two sysfs PWM outputs.
type Pair struct {
	mutex    sync.Mutex
	outputs  [2]*PWM
	polarity Polarity
	prev     [2]int
}

func NewPair(shoulder, elbow *PWM, polarity Polarity) *Pair {
	return &Pair{
		outputs:  [2]*PWM{shoulder, elbow},
		polarity: polarity,
	}
}

// Configure sets period, initial duty, polarity and enables each output, in
// that order. It must run once before the first WriteDuty.
func (p *Pair) Configure(period time.Duration, initialUS int) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, ch := range servo.Channels {
		out := p.outputs[ch]
		if err := out.Period(period); err != nil {
			return fmt.Errorf("%v %v period: %w", ch, out, err)
		}
		if err := out.DutyCycle(time.Duration(initialUS) * time.Microsecond); err != nil {
			return fmt.Errorf("%v %v duty cycle: %w", ch, out, err)
		}
		if err := out.Polarity(p.polarity); err != nil {
			return fmt.Errorf("%v %v polarity: %w", ch, out, err)
		}
		if err := out.Enable(); err != nil {
			return fmt.Errorf("%v %v enable: %w", ch, out, err)
		}
		p.prev[ch] = initialUS
	}
	logger.Infof("pwm %v/%v enabled, period %v, duty %d us", p.outputs[0], p.outputs[1], period, initialUS)
	return nil
}

// WriteDuty only touches sysfs when the pulse width changed.
func (p *Pair) WriteDuty(ch servo.Channel, pulseUS int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.prev[ch] == pulseUS {
		return
	}
	if err := p.outputs[ch].DutyCycle(time.Duration(pulseUS) * time.Microsecond); err != nil {
		logger.Errorf("%v duty cycle %d us: %v", ch, pulseUS, err)
		return
	}
	p.prev[ch] = pulseUS
}

func (p *Pair) Disable() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	var err error
	for _, out := range p.outputs {
		err = multierr.Append(err, out.Disable())
	}
	return err
}
