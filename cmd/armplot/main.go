package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot/vg"

	"planararm/config"
	"planararm/logger"
	"planararm/trajectory"
	"planararm/workspace"
)

var (
	configPath = flag.String("config", "", "rig config file (TOML)")
	stepDeg    = flag.Int("step", trajectory.DEFAULT_SWEEP_STEP_DEG, "joint raster step in degrees")
	pattern    = flag.String("pattern", "", "builtin pattern name or YAML file to overlay")
	out        = flag.String("out", "workspace.png", "output image, .png or .jpg")
	size       = flag.Int("size", 800, "image size in pixels")
	fitRadius  = flag.Float64("fit", 0, "rescale the pattern to this radius before plotting")
	shiftX     = flag.Float64("shift-x", 0, "fitted pattern x offset")
	shiftY     = flag.Float64("shift-y", 0, "fitted pattern y offset")
	flipY      = flag.Bool("flip-y", false, "flip the pattern vertically when fitting")
	subsample  = flag.Int("subsample", 1, "keep every Nth pattern point when fitting")
	fitOut     = flag.String("fit-out", "", "write the fitted pattern to this YAML file")
)

func main() {
	flag.Parse()
	logger.InitLogger(logger.Options{Level: logger.InfoLevel, Color: true})
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("Can not load config: %v", err)
		}
	}
	solver, err := cfg.Solver()
	if err != nil {
		logger.Fatalf("Arm: %v", err)
	}
	m, err := workspace.NewMap(solver.Geometry, *stepDeg)
	if err != nil {
		logger.Fatalf("Workspace: %v", err)
	}

	var overlays []workspace.Overlay
	if *pattern != "" {
		cfg.Trajectory.Pattern = *pattern
		p, err := cfg.Pattern()
		if err != nil {
			logger.Fatalf("Can not load pattern %q: %v", *pattern, err)
		}
		if *fitRadius > 0 {
			p.Waypoints = trajectory.Fit(p.Waypoints, trajectory.FitOptions{
				Radius:    *fitRadius,
				ShiftX:    *shiftX,
				ShiftY:    *shiftY,
				FlipY:     *flipY,
				Subsample: *subsample,
			})
			if *fitOut != "" {
				writePattern(*fitOut, p)
			}
		}
		o := workspace.NewOverlay(p.Name, p.Waypoints, solver)
		logger.Infof("Pattern %s: %d of %d waypoints usable", p.Name, o.ValidCount(), len(o.Points))
		overlays = append(overlays, o)
	}

	plt, err := m.Plot(overlays...)
	if err != nil {
		logger.Fatalf("Plot: %v", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		logger.Fatalf("Can not create %s: %v", *out, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(*out)) {
	case ".jpg", ".jpeg":
		frame, err := workspace.NewFrameEncoder(*size, *size).Encode(plt)
		if err != nil {
			logger.Fatalf("JPEG encode: %v", err)
		}
		_, err = f.Write(frame)
		if err != nil {
			logger.Fatalf("Write %s: %v", *out, err)
		}
	default:
		// vgimg renders at 72 dpi, one point per pixel
		length := vg.Length(*size)
		if err := workspace.RenderPNG(f, plt, length, length); err != nil {
			logger.Fatalf("PNG encode: %v", err)
		}
	}
	logger.Infof("Wrote %s: %d reachable raster points", *out, len(m.Points))
}

func writePattern(path string, p trajectory.Pattern) {
	f, err := os.Create(path)
	if err != nil {
		logger.Fatalf("Can not create %s: %v", path, err)
	}
	defer f.Close()
	if err := trajectory.SavePattern(f, p); err != nil {
		logger.Fatalf("Write %s: %v", path, err)
	}
	logger.Infof("Wrote fitted pattern to %s", path)
}
