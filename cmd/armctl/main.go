package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"planararm/config"
	"planararm/kinematics"
	"planararm/logger"
	"planararm/rig"
	"planararm/trajectory"
)

var (
	configPath = flag.String("config", "", "rig config file (TOML), defaults to a dry run")
	mode       = flag.String("mode", "trajectory", "trajectory, hold or sweep")
	pattern    = flag.String("pattern", "", "builtin pattern name or YAML pattern file")
	targetX    = flag.Float64("x", 0, "hold target x")
	targetY    = flag.Float64("y", 15, "hold target y")
	ticks      = flag.Int("ticks", 0, "stop after this many ticks, 0 runs until done")
)

func loadConfig() *config.Config {
	if *configPath == "" {
		return config.Default()
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Can not load config: %v", err)
	}
	return cfg
}

func shutdownOnSignal(r *rig.Rig) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Infof("%v received, releasing the arm", sig)
		if err := r.Close(); err != nil {
			logger.Errorf("Shutdown: %v", err)
		}
		logger.Sync()
		os.Exit(0)
	}()
}

// plan resolves everything the chosen mode needs before any hardware is
// touched.
type plan struct {
	gen   *trajectory.Generator
	sweep *trajectory.Sweep
}

func resolve(cfg *config.Config) plan {
	var p plan
	switch *mode {
	case "trajectory":
		pat, err := cfg.Pattern()
		if err != nil {
			logger.Fatalf("Can not load pattern %q: %v", cfg.Trajectory.Pattern, err)
		}
		if p.gen, err = pat.Generator(); err != nil {
			logger.Fatalf("Pattern %q: %v", pat.Name, err)
		}
		logger.Infof("Running pattern %s: %d waypoints, %d samples per cycle", pat.Name, p.gen.Len(), p.gen.SamplesPerCycle())
	case "sweep":
		var err error
		if p.sweep, err = trajectory.NewSweep(cfg.Trajectory.SweepStepDeg); err != nil {
			logger.Fatalf("Sweep: %v", err)
		}
	case "hold":
	default:
		logger.Fatalf("Unknown mode %q", *mode)
	}
	return p
}

func main() {
	flag.Parse()
	cfg := loadConfig()
	if *pattern != "" {
		cfg.Trajectory.Pattern = *pattern
	}
	logger.InitLogger(cfg.LoggerOptions())
	defer logger.Sync()
	p := resolve(cfg)

	r, err := rig.Build(cfg)
	if err != nil {
		logger.Fatalf("Can not bring up the arm: %v", err)
	}
	defer r.Close()
	shutdownOnSignal(r)

	if r.Hub != nil {
		go func() {
			if err := r.Serve(); err != nil {
				logger.Errorf("Telemetry server stopped: %v", err)
			}
		}()
	}

	switch *mode {
	case "trajectory":
		if *ticks > 0 {
			r.Runner.RunTicks(p.gen, *ticks)
		} else if err := r.Runner.Run(p.gen); err != nil {
			closeAndFatalf(r, "Run: %v", err)
		}
	case "hold":
		target := kinematics.Point2D{X: *targetX, Y: *targetY}
		if err := r.Runner.Hold(target, cfg.Feedback.Period); err != nil {
			closeAndFatalf(r, "Hold: %v", err)
		}
	case "sweep":
		if *ticks > 0 {
			for i := 0; i < *ticks; i++ {
				r.Runner.SweepStep(p.sweep, cfg.Trajectory.SweepDelay)
			}
		} else {
			r.Runner.Sweep(p.sweep, cfg.Trajectory.SweepDelay)
		}
	}
	stats := r.Runner.Stats()
	logger.Infof("Done: %d ticks, %d written, %d skipped (%d unreachable, %d out of range)",
		stats.Ticks, stats.Written, stats.Skipped, stats.Unreachable, stats.OutOfRange)
}

// closeAndFatalf releases the arm first, Fatalf exits without running defers.
func closeAndFatalf(r *rig.Rig, format string, args ...interface{}) {
	if err := r.Close(); err != nil {
		logger.Errorf("Shutdown: %v", err)
	}
	logger.Fatalf(format, args...)
}
