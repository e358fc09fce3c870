package control

import (
	"time"

	"planararm/kinematics"
	"planararm/servo"
	"planararm/trajectory"
)

// Sink accepts pulse widths for a channel. Writes are fire and forget;
// backends log their own failures.
type Sink interface {
	WriteDuty(ch servo.Channel, pulseUS int)
}

// AngleSource reports the last known angle of a joint in degrees. NaN means
// no reading is available.
type AngleSource interface {
	ReadAngle(ch servo.Channel) float64
}

type Waiter interface {
	Wait(d time.Duration)
}

type SleepWaiter struct{}

func (SleepWaiter) Wait(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

type Observer interface {
	Observe(tick Tick)
}

type ObserverFunc func(tick Tick)

func (f ObserverFunc) Observe(tick Tick) {
	f(tick)
}

// Tick reports what one pass of the loop did.
type Tick struct {
	Session string                  `json:"session"`
	Index   uint64                  `json:"index"`
	Sample  trajectory.Sample       `json:"sample"`
	Angles  kinematics.JointAngles  `json:"angles"`
	Pulses  [2]int                  `json:"pulses"`
	Sensed  *kinematics.JointAngles `json:"sensed,omitempty"`
	Skipped bool                    `json:"skipped"`
	Reason  string                  `json:"reason,omitempty"`
}

type Stats struct {
	Ticks       uint64 `json:"ticks"`
	Written     uint64 `json:"written"`
	Skipped     uint64 `json:"skipped"`
	Unreachable uint64 `json:"unreachable"`
	OutOfRange  uint64 `json:"outOfRange"`
}
