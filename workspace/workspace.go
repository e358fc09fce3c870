package workspace

import (
	"math"

	"planararm/kinematics"
	"planararm/trajectory"
)

// Map is the forward kinematics image of the joint space sweep: every point
// the tip reaches with both joints inside the servo range.
type Map struct {
	Geometry kinematics.ArmGeometry
	StepDeg  int
	Points   []kinematics.Point2D
}

func NewMap(geom kinematics.ArmGeometry, stepDeg int) (*Map, error) {
	if _, err := kinematics.NewArmGeometry(geom.L1, geom.L2); err != nil {
		return nil, err
	}
	sweep, err := trajectory.NewSweep(stepDeg)
	if err != nil {
		return nil, err
	}
	n := sweep.PositionsPerAxis() * sweep.PositionsPerAxis()
	m := &Map{
		Geometry: geom,
		StepDeg:  stepDeg,
		Points:   make([]kinematics.Point2D, 0, n),
	}
	for i := 0; i < n; i++ {
		m.Points = append(m.Points, kinematics.Forward(sweep.Next(), geom))
	}
	return m, nil
}

func (m *Map) Bounds() (min, max kinematics.Point2D) {
	min = kinematics.Point2D{X: math.Inf(1), Y: math.Inf(1)}
	max = kinematics.Point2D{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range m.Points {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return min, max
}

// Overlay is a point set drawn over the map, each point marked by whether
// the solver accepted it.
type Overlay struct {
	Name   string
	Points []kinematics.Point2D
	Valid  []bool
}

func NewOverlay(name string, points []kinematics.Point2D, solver kinematics.Solver) Overlay {
	o := Overlay{
		Name:   name,
		Points: points,
		Valid:  make([]bool, len(points)),
	}
	for i, p := range points {
		_, err := solver.Solve(p)
		o.Valid[i] = err == nil
	}
	return o
}

func (o Overlay) ValidCount() int {
	n := 0
	for _, v := range o.Valid {
		if v {
			n++
		}
	}
	return n
}
