package kinematics

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnreachable     = errors.New("target unreachable")
	ErrOutOfServoRange = errors.New("solution outside servo range")
	ErrInvalidGeometry = errors.New("invalid arm geometry")
)

const SERVO_MIN_DEG = 0.0
const SERVO_MAX_DEG = 180.0

// REACH_TOLERANCE only absorbs float representation error at the annulus edges.
const REACH_TOLERANCE = 1e-9
const ANGLE_TOLERANCE = 1e-9

type Point2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (p Point2D) String() string {
	return fmt.Sprintf("(%.3f, %.3f)", p.X, p.Y)
}

// JointAngles are shoulder and elbow angles in degrees.
type JointAngles struct {
	Theta1 float64 `json:"theta1"`
	Theta2 float64 `json:"theta2"`
}

type ArmGeometry struct {
	L1 float64
	L2 float64
}

func NewArmGeometry(l1, l2 float64) (ArmGeometry, error) {
	if !(l1 > 0) || !(l2 > 0) || math.IsInf(l1, 0) || math.IsInf(l2, 0) {
		return ArmGeometry{}, fmt.Errorf("%w: L1=%v L2=%v", ErrInvalidGeometry, l1, l2)
	}
	return ArmGeometry{L1: l1, L2: l2}, nil
}

func (g ArmGeometry) MaxReach() float64 {
	return g.L1 + g.L2
}

func (g ArmGeometry) MinReach() float64 {
	return math.Abs(g.L1 - g.L2)
}

type ElbowMode int

const (
	ELBOW_DOWN ElbowMode = iota
	ELBOW_UP
)

func (m ElbowMode) String() string {
	if m == ELBOW_UP {
		return "up"
	}
	return "down"
}

func (m ElbowMode) Other() ElbowMode {
	if m == ELBOW_UP {
		return ELBOW_DOWN
	}
	return ELBOW_UP
}

func ParseElbowMode(s string) (ElbowMode, error) {
	switch s {
	case "", "down":
		return ELBOW_DOWN, nil
	case "up":
		return ELBOW_UP, nil
	}
	return ELBOW_DOWN, fmt.Errorf("unknown elbow mode %q", s)
}

type Normalization int

const (
	NORMALIZE_WRAP360 Normalization = iota
	NORMALIZE_RAW
)

func ParseNormalization(s string) (Normalization, error) {
	switch s {
	case "", "wrap360":
		return NORMALIZE_WRAP360, nil
	case "raw":
		return NORMALIZE_RAW, nil
	}
	return NORMALIZE_WRAP360, fmt.Errorf("unknown angle normalization %q", s)
}

func radToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// wrap360 maps an angle into [0, 360). Values a hair below 360 fold to 0 so
// that -1e-15 does not turn into an out of range 359.999...
func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg > 360-ANGLE_TOLERANCE {
		deg = 0
	}
	return deg
}

func normalize(deg float64, norm Normalization) float64 {
	if norm == NORMALIZE_WRAP360 {
		return wrap360(deg)
	}
	return deg
}

func inServoRange(deg float64) bool {
	return deg >= SERVO_MIN_DEG-ANGLE_TOLERANCE && deg <= SERVO_MAX_DEG+ANGLE_TOLERANCE
}

// Solve computes the joint angles placing the end effector at target using
// a single elbow branch.
func Solve(target Point2D, geom ArmGeometry, mode ElbowMode, norm Normalization) (JointAngles, error) {
	r := math.Hypot(target.X, target.Y)
	if math.IsNaN(r) || r > geom.MaxReach()+REACH_TOLERANCE || r < geom.MinReach()-REACH_TOLERANCE {
		return JointAngles{}, fmt.Errorf("%w: %v at r=%.6f, reach [%.6f, %.6f]",
			ErrUnreachable, target, r, geom.MinReach(), geom.MaxReach())
	}

	// acos is undefined outside [-1, 1]; rounding can push c2 just past it
	c2 := clamp((r*r-geom.L1*geom.L1-geom.L2*geom.L2)/(2*geom.L1*geom.L2), -1, 1)
	theta2 := math.Acos(c2)
	if mode == ELBOW_UP {
		theta2 = -theta2
	}
	k1 := geom.L1 + geom.L2*math.Cos(theta2)
	k2 := geom.L2 * math.Sin(theta2)
	theta1 := math.Atan2(target.Y, target.X) - math.Atan2(k2, k1)

	angles := JointAngles{
		Theta1: normalize(radToDeg(theta1), norm),
		Theta2: normalize(radToDeg(theta2), norm),
	}
	if !inServoRange(angles.Theta1) || !inServoRange(angles.Theta2) {
		return JointAngles{}, fmt.Errorf("%w: %v elbow %v gives (%.3f, %.3f) deg",
			ErrOutOfServoRange, target, mode, angles.Theta1, angles.Theta2)
	}
	angles.Theta1 = clamp(angles.Theta1, SERVO_MIN_DEG, SERVO_MAX_DEG)
	angles.Theta2 = clamp(angles.Theta2, SERVO_MIN_DEG, SERVO_MAX_DEG)
	return angles, nil
}

// SolveAny tries the preferred elbow branch first, then the other one, and
// reports which branch produced the solution.
func SolveAny(target Point2D, geom ArmGeometry, preferred ElbowMode, norm Normalization) (JointAngles, ElbowMode, error) {
	angles, err := Solve(target, geom, preferred, norm)
	if err == nil {
		return angles, preferred, nil
	}
	if errors.Is(err, ErrUnreachable) {
		// reachability does not depend on the branch
		return JointAngles{}, preferred, err
	}
	other := preferred.Other()
	angles, err = Solve(target, geom, other, norm)
	if err != nil {
		return JointAngles{}, preferred, fmt.Errorf("%w: %v in both elbow modes", ErrOutOfServoRange, target)
	}
	return angles, other, nil
}

// Forward places the end effector for the given joint angles.
func Forward(angles JointAngles, geom ArmGeometry) Point2D {
	t1 := degToRad(angles.Theta1)
	t12 := t1 + degToRad(angles.Theta2)
	return Point2D{
		X: geom.L1*math.Cos(t1) + geom.L2*math.Cos(t12),
		Y: geom.L1*math.Sin(t1) + geom.L2*math.Sin(t12),
	}
}
