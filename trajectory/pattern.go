package trajectory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"planararm/kinematics"
)

var ErrUnknownPattern = errors.New("unknown pattern")

// Pattern is a named waypoint list plus the generator settings it was
// authored for.
type Pattern struct {
	Name      string
	Waypoints []kinematics.Point2D
	Config    Config
}

func (p Pattern) Generator() (*Generator, error) {
	return NewGenerator(p.Waypoints, p.Config)
}

var builtins = map[string]Pattern{
	"square": {
		Name: "square",
		Waypoints: []kinematics.Point2D{
			{X: 5, Y: 5}, {X: 15, Y: 5}, {X: 15, Y: -5}, {X: 5, Y: -5},
		},
		Config: Config{StepsPerSegment: 20, InterStepDelay: 200 * time.Microsecond, Closed: true},
	},
	"line": {
		Name:      "line",
		Waypoints: []kinematics.Point2D{{X: 5, Y: 10}, {X: 15, Y: 5}},
		Config:    Config{StepsPerSegment: 50, InterStepDelay: 20 * time.Millisecond},
	},
	"letter_l": {
		Name:      "letter_l",
		Waypoints: []kinematics.Point2D{{X: -5, Y: 10}, {X: -5, Y: 5}, {X: 0, Y: 5}},
		Config:    Config{StepsPerSegment: 30, InterStepDelay: 100 * time.Microsecond},
	},
	"letter_n": {
		Name:      "letter_n",
		Waypoints: []kinematics.Point2D{{X: 0, Y: 10}, {X: 0, Y: 5}, {X: -5, Y: 10}, {X: -5, Y: -5}},
		Config:    Config{StepsPerSegment: 30, InterStepDelay: 100 * time.Microsecond},
	},
	"point": {
		Name:      "point",
		Waypoints: []kinematics.Point2D{{X: -10, Y: -5}},
		Config:    Config{StepsPerSegment: 1, InterStepDelay: 20 * time.Millisecond, Closed: true},
	},
}

func Builtin(name string) (Pattern, error) {
	p, ok := builtins[name]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %q", ErrUnknownPattern, name)
	}
	p.Waypoints = append([]kinematics.Point2D(nil), p.Waypoints...)
	return p, nil
}

func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HoldPattern parks the arm on a single point forever.
func HoldPattern(target kinematics.Point2D, period time.Duration) Pattern {
	return Pattern{
		Name:      "hold",
		Waypoints: []kinematics.Point2D{target},
		Config:    Config{StepsPerSegment: 1, InterStepDelay: period, Closed: true},
	}
}

type patternFile struct {
	Name             string      `yaml:"name"`
	Closed           bool        `yaml:"closed"`
	StepsPerSegment  int         `yaml:"steps_per_segment"`
	InterStepDelayUS int64       `yaml:"inter_step_delay_us"`
	Waypoints        [][]float64 `yaml:"waypoints,flow"`
}

// LoadPattern reads a YAML waypoint file such as one produced by a contour
// extraction script.
func LoadPattern(r io.Reader) (Pattern, error) {
	var file patternFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return Pattern{}, fmt.Errorf("decode pattern: %w", err)
	}
	p := Pattern{
		Name: file.Name,
		Config: Config{
			StepsPerSegment: file.StepsPerSegment,
			InterStepDelay:  time.Duration(file.InterStepDelayUS) * time.Microsecond,
			Closed:          file.Closed,
		},
	}
	if p.Config.StepsPerSegment == 0 {
		p.Config.StepsPerSegment = 1
	}
	for i, wp := range file.Waypoints {
		if len(wp) != 2 {
			return Pattern{}, fmt.Errorf("pattern %q: waypoint %d has %d coordinates, want 2", p.Name, i, len(wp))
		}
		p.Waypoints = append(p.Waypoints, kinematics.Point2D{X: wp[0], Y: wp[1]})
	}
	if len(p.Waypoints) == 0 {
		return Pattern{}, fmt.Errorf("pattern %q: %w", p.Name, ErrNoWaypoints)
	}
	if err := p.Config.Validate(); err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: %w", p.Name, err)
	}
	return p, nil
}

func LoadPatternFile(path string) (Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pattern{}, err
	}
	defer f.Close()
	p, err := LoadPattern(f)
	if err != nil {
		return Pattern{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// SavePattern writes p in the format LoadPattern reads.
func SavePattern(w io.Writer, p Pattern) error {
	file := patternFile{
		Name:             p.Name,
		Closed:           p.Config.Closed,
		StepsPerSegment:  p.Config.StepsPerSegment,
		InterStepDelayUS: p.Config.InterStepDelay.Microseconds(),
	}
	for _, wp := range p.Waypoints {
		file.Waypoints = append(file.Waypoints, []float64{wp.X, wp.Y})
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&file); err != nil {
		return err
	}
	return encoder.Close()
}
