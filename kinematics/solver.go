package kinematics

import "fmt"

type BranchPolicy int

const (
	// BRANCH_EITHER accepts whichever elbow branch is valid, preferred one first.
	BRANCH_EITHER BranchPolicy = iota
	// BRANCH_FIXED keeps a consistent posture and fails when its branch is invalid.
	BRANCH_FIXED
)

func ParseBranchPolicy(s string) (BranchPolicy, error) {
	switch s {
	case "", "either":
		return BRANCH_EITHER, nil
	case "fixed":
		return BRANCH_FIXED, nil
	}
	return BRANCH_EITHER, fmt.Errorf("unknown branch policy %q", s)
}

// Solver bundles an arm with the caller's branch and normalization policy.
type Solver struct {
	Geometry      ArmGeometry
	Mode          ElbowMode
	Branch        BranchPolicy
	Normalization Normalization
}

func (s Solver) Solve(target Point2D) (JointAngles, error) {
	if s.Branch == BRANCH_FIXED {
		return Solve(target, s.Geometry, s.Mode, s.Normalization)
	}
	angles, _, err := SolveAny(target, s.Geometry, s.Mode, s.Normalization)
	return angles, err
}
