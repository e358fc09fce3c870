package control

import (
	"sync"

	"planararm/kinematics"
	"planararm/logger"
	"planararm/servo"
)

// LogSink only logs what it would write. Used for dry runs.
type LogSink struct {
	mutex sync.Mutex
	last  [2]int
}

func (s *LogSink) WriteDuty(ch servo.Channel, pulseUS int) {
	s.mutex.Lock()
	changed := s.last[ch] != pulseUS
	s.last[ch] = pulseUS
	s.mutex.Unlock()
	if changed {
		logger.Debugf("%v duty %d us", ch, pulseUS)
	}
}

func (s *LogSink) Last() [2]int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.last
}

const DEFAULT_SIM_RESPONSE = 0.5

// SimulatedArm is a first order servo model. Each ReadAngle moves the joint
// a fixed fraction of the way toward the last commanded angle, so a dry run
// exercises the feedback path.
type SimulatedArm struct {
	mutex    sync.Mutex
	mapper   servo.Range
	response float64
	target   [2]float64
	current  [2]float64
}

func NewSimulatedArm(mapper servo.Range, response float64, start kinematics.JointAngles) *SimulatedArm {
	if !(response > 0 && response <= 1) {
		response = DEFAULT_SIM_RESPONSE
	}
	angles := [2]float64{start.Theta1, start.Theta2}
	return &SimulatedArm{
		mapper:   mapper,
		response: response,
		target:   angles,
		current:  angles,
	}
}

func (a *SimulatedArm) WriteDuty(ch servo.Channel, pulseUS int) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.target[ch] = a.mapper.Angle(float64(pulseUS))
}

func (a *SimulatedArm) ReadAngle(ch servo.Channel) float64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.current[ch] += a.response * (a.target[ch] - a.current[ch])
	return a.current[ch]
}

func (a *SimulatedArm) Angles() kinematics.JointAngles {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return kinematics.JointAngles{Theta1: a.current[servo.SHOULDER], Theta2: a.current[servo.ELBOW]}
}
