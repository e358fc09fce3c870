package trajectory

import (
	"fmt"

	"planararm/kinematics"
)

const DEFAULT_SWEEP_STEP_DEG = 5

// Sweep rasters joint space: the elbow runs 0..180 for every shoulder
// position, then the raster is walked back from 180,180 to 0,0 and so on.
// The turning corner is visited once. Driving it traces the complete
// reachable area of the arm.
type Sweep struct {
	stepDeg   int
	positions int
	shoulder  int
	elbow     int
	direction int
	passes    int
}

func NewSweep(stepDeg int) (*Sweep, error) {
	if stepDeg < 1 || stepDeg > 180 {
		return nil, fmt.Errorf("%w: sweep step %d deg", ErrInvalidConfig, stepDeg)
	}
	positions := (180+stepDeg-1)/stepDeg + 1
	return &Sweep{stepDeg: stepDeg, positions: positions, direction: 1}, nil
}

func (s *Sweep) StepDeg() int {
	return s.stepDeg
}

// PositionsPerAxis counts the angles visited on one joint. 0 and 180 are
// always among them, the last step is shorter when stepDeg does not divide 180.
func (s *Sweep) PositionsPerAxis() int {
	return s.positions
}

// Passes counts completed one-way walks over the raster.
func (s *Sweep) Passes() int {
	return s.passes
}

func (s *Sweep) angle(i int) float64 {
	return float64(min(i*s.stepDeg, 180))
}

func (s *Sweep) Next() kinematics.JointAngles {
	angles := kinematics.JointAngles{Theta1: s.angle(s.shoulder), Theta2: s.angle(s.elbow)}
	last := s.positions - 1
	s.elbow += s.direction
	if s.elbow >= 0 && s.elbow <= last {
		return angles
	}
	s.shoulder += s.direction
	if s.shoulder >= 0 && s.shoulder <= last {
		if s.direction > 0 {
			s.elbow = 0
		} else {
			s.elbow = last
		}
		return angles
	}
	// turn around at the corner just emitted
	s.passes++
	s.direction = -s.direction
	if s.direction > 0 {
		s.shoulder, s.elbow = 0, 1
	} else {
		s.shoulder, s.elbow = last, last-1
	}
	return angles
}
