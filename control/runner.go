package control

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/petermattis/goid"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"planararm/feedback"
	"planararm/kinematics"
	"planararm/logger"
	"planararm/servo"
	"planararm/trajectory"
)

var (
	ErrNoSink      = errors.New("control loop needs a sink")
	ErrNoSensor    = errors.New("feedback mode needs an angle source")
	ErrNoGenerator = errors.New("control loop needs a trajectory")
)

type Options struct {
	Solver   kinematics.Solver
	Range    servo.Range
	Sink     Sink
	Waiter   Waiter               // SleepWaiter when nil
	Feedback *feedback.Controller // nil runs open loop
	Sensor   AngleSource
	Observer Observer
}

// Runner drives one arm. Ticks are strictly sequential and all methods
// except Stats and Session must be called from the same goroutine.
type Runner struct {
	opts    Options
	session string
	log     *zap.SugaredLogger

	index   uint64
	badRun  uint64
	lastErr error

	mutex sync.Mutex
	stats Stats
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Sink == nil {
		return nil, ErrNoSink
	}
	if opts.Feedback != nil && opts.Sensor == nil {
		return nil, ErrNoSensor
	}
	if _, err := kinematics.NewArmGeometry(opts.Solver.Geometry.L1, opts.Solver.Geometry.L2); err != nil {
		return nil, err
	}
	if _, err := servo.NewRange(opts.Range.PulseMinUS, opts.Range.PulseMaxUS, opts.Range.AngleSpanDeg); err != nil {
		return nil, err
	}
	if opts.Waiter == nil {
		opts.Waiter = SleepWaiter{}
	}
	session := uuid.NewV4().String()
	return &Runner{
		opts:    opts,
		session: session,
		log:     logger.With("session", session),
	}, nil
}

func (r *Runner) Session() string {
	return r.session
}

func (r *Runner) Stats() Stats {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.stats
}

// Step runs one tick of gen and waits out its inter step delay. It reports
// false, without waiting, once an open trajectory is exhausted.
func (r *Runner) Step(gen *trajectory.Generator) (Tick, bool) {
	sample, ok := gen.Next()
	if !ok {
		return Tick{}, false
	}
	var tick Tick
	angles, err := r.opts.Solver.Solve(sample.Point)
	if err != nil {
		tick = r.skip(sample, err)
	} else {
		tick = r.actuate(sample, angles)
	}
	r.opts.Waiter.Wait(gen.Config().InterStepDelay)
	return tick, true
}

// Run ticks until an open trajectory is done. Closed trajectories never
// return.
func (r *Runner) Run(gen *trajectory.Generator) error {
	if gen == nil {
		return ErrNoGenerator
	}
	r.log.Infof("run started: %d waypoints, %d steps per segment, closed=%v, feedback=%v, goroutine %d",
		gen.Len(), gen.Config().StepsPerSegment, gen.Config().Closed, r.opts.Feedback != nil, goid.Get())
	for {
		if _, ok := r.Step(gen); !ok {
			stats := r.Stats()
			r.log.Infof("run finished: %d ticks, %d skipped", stats.Ticks, stats.Skipped)
			return nil
		}
	}
}

// RunTicks runs at most n ticks and returns how many were executed.
func (r *Runner) RunTicks(gen *trajectory.Generator, n int) int {
	done := 0
	for done < n {
		if _, ok := r.Step(gen); !ok {
			break
		}
		done++
	}
	return done
}

// Hold keeps the arm on target forever, one tick per period. An unusable
// target is reported up front instead of being skipped on every tick.
func (r *Runner) Hold(target kinematics.Point2D, period time.Duration) error {
	if _, err := r.opts.Solver.Solve(target); err != nil {
		return fmt.Errorf("hold %v: %w", target, err)
	}
	gen, err := trajectory.HoldPattern(target, period).Generator()
	if err != nil {
		return err
	}
	return r.Run(gen)
}

// Sweep drives the joint space raster forever. Joint angles go straight to
// the actuators, no inverse kinematics is involved.
func (r *Runner) Sweep(s *trajectory.Sweep, delay time.Duration) {
	r.log.Infof("sweep started: %d deg step, %d positions per pass, goroutine %d",
		s.StepDeg(), s.PositionsPerAxis()*s.PositionsPerAxis(), goid.Get())
	for {
		r.SweepStep(s, delay)
	}
}

func (r *Runner) SweepStep(s *trajectory.Sweep, delay time.Duration) Tick {
	pass := s.Passes()
	angles := s.Next()
	sample := trajectory.Sample{
		Point: kinematics.Forward(angles, r.opts.Solver.Geometry),
		Cycle: pass,
	}
	tick := r.actuate(sample, angles)
	r.opts.Waiter.Wait(delay)
	return tick
}

func (r *Runner) next(sample trajectory.Sample) Tick {
	tick := Tick{Session: r.session, Index: r.index, Sample: sample}
	r.index++
	return tick
}

func (r *Runner) skip(sample trajectory.Sample, err error) Tick {
	tick := r.next(sample)
	tick.Skipped = true
	tick.Reason = err.Error()

	r.mutex.Lock()
	r.stats.Ticks++
	r.stats.Skipped++
	switch {
	case errors.Is(err, kinematics.ErrUnreachable):
		r.stats.Unreachable++
	case errors.Is(err, kinematics.ErrOutOfServoRange):
		r.stats.OutOfRange++
	}
	r.mutex.Unlock()

	// one warning per run of bad samples of the same kind
	if r.badRun == 0 || !errors.Is(err, r.lastErr) {
		r.log.Warnf("skipping %v: %v, holding last command", sample.Point, err)
	}
	r.log.Debugf("skip segment %d step %d: %v", sample.Segment, sample.Step, err)
	r.badRun++
	r.lastErr = errors.Unwrap(err)
	if r.lastErr == nil {
		r.lastErr = err
	}

	r.notify(tick)
	return tick
}

func (r *Runner) actuate(sample trajectory.Sample, angles kinematics.JointAngles) Tick {
	if r.badRun > 0 {
		r.log.Infof("resumed at %v after %d skipped samples", sample.Point, r.badRun)
		r.badRun = 0
		r.lastErr = nil
	}
	tick := r.next(sample)
	tick.Angles = angles
	desired := [2]float64{angles.Theta1, angles.Theta2}

	if r.opts.Feedback != nil {
		var sensed [2]float64
		for _, ch := range servo.Channels {
			sensed[ch] = r.opts.Sensor.ReadAngle(ch)
			if math.IsNaN(sensed[ch]) {
				// no reading yet, act as if the joint is where it was told to be
				sensed[ch] = desired[ch]
			}
			tick.Pulses[ch] = r.opts.Feedback.Command(ch, desired[ch], sensed[ch])
		}
		tick.Sensed = &kinematics.JointAngles{Theta1: sensed[servo.SHOULDER], Theta2: sensed[servo.ELBOW]}
	} else {
		for _, ch := range servo.Channels {
			tick.Pulses[ch] = r.opts.Range.PulseWidth(desired[ch])
		}
	}

	for _, ch := range servo.Channels {
		r.opts.Sink.WriteDuty(ch, tick.Pulses[ch])
	}

	r.mutex.Lock()
	r.stats.Ticks++
	r.stats.Written++
	r.mutex.Unlock()

	r.notify(tick)
	return tick
}

func (r *Runner) notify(tick Tick) {
	if r.opts.Observer != nil {
		r.opts.Observer.Observe(tick)
	}
}
