package main

import (
	"testing"

	"planararm/config"
)

func TestResolveBeforeBringUp(t *testing.T) {
	defer func(m string) { *mode = m }(*mode)

	cfg := config.Default()
	*mode = "trajectory"
	if p := resolve(cfg); p.gen == nil || p.sweep != nil {
		t.Fatalf("trajectory plan = %+v", p)
	}
	*mode = "sweep"
	if p := resolve(cfg); p.sweep == nil || p.sweep.StepDeg() != cfg.Trajectory.SweepStepDeg {
		t.Fatalf("sweep plan = %+v", p)
	}
	*mode = "hold"
	if p := resolve(cfg); p.gen != nil || p.sweep != nil {
		t.Fatalf("hold plan = %+v", p)
	}
}
