package control

import (
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"planararm/feedback"
	"planararm/kinematics"
	"planararm/logger"
	"planararm/servo"
	"planararm/trajectory"
)

type write struct {
	ch    servo.Channel
	pulse int
}

type recordingSink struct {
	writes []write
}

func (s *recordingSink) WriteDuty(ch servo.Channel, pulseUS int) {
	s.writes = append(s.writes, write{ch, pulseUS})
}

type fakeWaiter struct {
	waits []time.Duration
}

func (w *fakeWaiter) Wait(d time.Duration) {
	w.waits = append(w.waits, d)
}

type tickLog struct {
	ticks []Tick
}

func (l *tickLog) Observe(tick Tick) {
	l.ticks = append(l.ticks, tick)
}

var testSolver = kinematics.Solver{
	Geometry:      kinematics.ArmGeometry{L1: 10, L2: 10},
	Mode:          kinematics.ELBOW_DOWN,
	Branch:        kinematics.BRANCH_EITHER,
	Normalization: kinematics.NORMALIZE_WRAP360,
}

func newTestRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	if opts.Solver == (kinematics.Solver{}) {
		opts.Solver = testSolver
	}
	if opts.Range == (servo.Range{}) {
		opts.Range = servo.DEFAULT_RANGE
	}
	r, err := NewRunner(opts)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func newGen(t *testing.T, points []kinematics.Point2D, cfg trajectory.Config) *trajectory.Generator {
	t.Helper()
	gen, err := trajectory.NewGenerator(points, cfg)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return gen
}

func TestOpenLoopWritesShoulderThenElbow(t *testing.T) {
	sink := &recordingSink{}
	waiter := &fakeWaiter{}
	r := newTestRunner(t, Options{Sink: sink, Waiter: waiter})
	points := []kinematics.Point2D{{X: 5, Y: 15}, {X: -5, Y: 15}}
	gen := newGen(t, points, trajectory.Config{StepsPerSegment: 4, InterStepDelay: 3 * time.Millisecond})

	if err := r.Run(gen); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.writes) != 10 {
		t.Fatalf("got %d writes, want 10", len(sink.writes))
	}
	for i := 0; i < 5; i++ {
		x := 5 - 2.5*float64(i)
		want, err := testSolver.Solve(kinematics.Point2D{X: x, Y: 15})
		if err != nil {
			t.Fatalf("Solve(%v, 15): %v", x, err)
		}
		shoulder, elbow := sink.writes[2*i], sink.writes[2*i+1]
		if shoulder.ch != servo.SHOULDER || elbow.ch != servo.ELBOW {
			t.Fatalf("tick %d wrote %v then %v", i, shoulder.ch, elbow.ch)
		}
		if shoulder.pulse != servo.DEFAULT_RANGE.PulseWidth(want.Theta1) ||
			elbow.pulse != servo.DEFAULT_RANGE.PulseWidth(want.Theta2) {
			t.Fatalf("tick %d pulses %d/%d for angles %+v", i, shoulder.pulse, elbow.pulse, want)
		}
	}
	if len(waiter.waits) != 5 {
		t.Fatalf("waited %d times, want 5", len(waiter.waits))
	}
	for _, d := range waiter.waits {
		if d != 3*time.Millisecond {
			t.Fatalf("waited %v", d)
		}
	}
	if stats := r.Stats(); stats != (Stats{Ticks: 5, Written: 5}) {
		t.Fatalf("stats = %+v", stats)
	}
	if _, ok := r.Step(gen); ok {
		t.Fatal("Step after the end must report false")
	}
}

func TestBadSamplesAreSkipped(t *testing.T) {
	sink := &recordingSink{}
	waiter := &fakeWaiter{}
	log := &tickLog{}
	r := newTestRunner(t, Options{Sink: sink, Waiter: waiter, Observer: log})
	points := []kinematics.Point2D{{X: 0, Y: 15}, {X: 25, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 15}}
	gen := newGen(t, points, trajectory.Config{StepsPerSegment: 1})

	if n := r.RunTicks(gen, 100); n != 6 {
		t.Fatalf("ran %d ticks, want 6", n)
	}
	// (0,15) | (25,0) (25,0) | (10,0) (10,0) | (0,15)
	want := Stats{Ticks: 6, Written: 2, Skipped: 4, Unreachable: 2, OutOfRange: 2}
	if stats := r.Stats(); stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(sink.writes) != 4 {
		t.Fatalf("got %d writes, want 4", len(sink.writes))
	}
	if len(waiter.waits) != 6 {
		t.Fatalf("skipped ticks must still wait: %d waits", len(waiter.waits))
	}
	if sink.writes[0] != sink.writes[2] || sink.writes[1] != sink.writes[3] {
		t.Fatalf("same target gave different pulses: %v", sink.writes)
	}

	if len(log.ticks) != 6 {
		t.Fatalf("observed %d ticks", len(log.ticks))
	}
	for i, tick := range log.ticks {
		if tick.Index != uint64(i) || tick.Session != r.Session() {
			t.Fatalf("tick %d = %+v", i, tick)
		}
		bad := i >= 1 && i <= 4
		if tick.Skipped != bad || (bad && tick.Reason == "") {
			t.Fatalf("tick %d skipped=%v reason=%q", i, tick.Skipped, tick.Reason)
		}
	}
}

func TestOneWarningPerBadRun(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Use(zap.New(core))
	defer logger.Use(nil)

	r := newTestRunner(t, Options{Sink: &recordingSink{}, Waiter: &fakeWaiter{}})
	points := []kinematics.Point2D{{X: 25, Y: 0}, {X: 26, Y: 0}, {X: 27, Y: 0}, {X: 0, Y: 15}}
	r.RunTicks(newGen(t, points, trajectory.Config{StepsPerSegment: 1}), 100)

	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len(); n != 1 {
		t.Fatalf("%d warnings for one run of unreachable samples, want 1", n)
	}
	if n := logs.FilterMessageSnippet("resumed").Len(); n != 1 {
		t.Fatalf("%d resume messages, want 1", n)
	}
	if n := logs.FilterMessageSnippet("skip segment").Len(); n != 5 {
		t.Fatalf("%d per sample debug messages, want 5", n)
	}
}

func TestClosedTrajectoryKeepsRunning(t *testing.T) {
	r := newTestRunner(t, Options{Sink: &recordingSink{}, Waiter: &fakeWaiter{}})
	sq, err := trajectory.Builtin("square")
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	gen, err := sq.Generator()
	if err != nil {
		t.Fatalf("Generator: %v", err)
	}
	if n := r.RunTicks(gen, 500); n != 500 {
		t.Fatalf("closed trajectory stopped after %d ticks", n)
	}
	if stats := r.Stats(); stats.Ticks != 500 || stats.Written+stats.Skipped != 500 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestFeedbackConvergesOnSimulatedArm(t *testing.T) {
	arm := NewSimulatedArm(servo.DEFAULT_RANGE, 0.5, kinematics.JointAngles{Theta1: 90, Theta2: 90})
	pi, err := feedback.NewController(feedback.DEFAULT_GAINS, servo.DEFAULT_RANGE)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	log := &tickLog{}
	r := newTestRunner(t, Options{Sink: arm, Sensor: arm, Feedback: pi, Waiter: &fakeWaiter{}, Observer: log})

	target := kinematics.Point2D{X: 0, Y: 15}
	want, err := testSolver.Solve(target)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	gen, err := trajectory.HoldPattern(target, feedback.DEFAULT_PERIOD).Generator()
	if err != nil {
		t.Fatalf("Generator: %v", err)
	}
	r.RunTicks(gen, 500)

	got := arm.Angles()
	if math.Abs(got.Theta1-want.Theta1) > 0.5 || math.Abs(got.Theta2-want.Theta2) > 0.5 {
		t.Fatalf("arm settled at %+v, want %+v", got, want)
	}
	for _, tick := range log.ticks {
		if tick.Sensed == nil {
			t.Fatal("feedback ticks must carry sensed angles")
		}
	}
}

type silentSensor struct{}

func (silentSensor) ReadAngle(servo.Channel) float64 {
	return math.NaN()
}

func TestFeedbackWithoutReadingsAndSkippedSample(t *testing.T) {
	sink := &recordingSink{}
	log := &tickLog{}
	pi, err := feedback.NewController(feedback.DEFAULT_GAINS, servo.DEFAULT_RANGE)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	r := newTestRunner(t, Options{Sink: sink, Sensor: silentSensor{}, Feedback: pi, Waiter: &fakeWaiter{}, Observer: log})
	points := []kinematics.Point2D{{X: 0, Y: 15}, {X: 25, Y: 0}}
	gen := newGen(t, points, trajectory.Config{StepsPerSegment: 1})

	if n := r.RunTicks(gen, 2); n != 2 {
		t.Fatalf("ran %d ticks, want 2", n)
	}
	want, err := testSolver.Solve(kinematics.Point2D{X: 0, Y: 15})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	wantWrites := []write{
		{servo.SHOULDER, servo.DEFAULT_RANGE.PulseWidth(want.Theta1)},
		{servo.ELBOW, servo.DEFAULT_RANGE.PulseWidth(want.Theta2)},
	}
	if len(sink.writes) != 2 || sink.writes[0] != wantWrites[0] || sink.writes[1] != wantWrites[1] {
		t.Fatalf("writes = %v, want %v", sink.writes, wantWrites)
	}
	if stats := r.Stats(); stats != (Stats{Ticks: 2, Written: 1, Skipped: 1, Unreachable: 1}) {
		t.Fatalf("stats = %+v", stats)
	}
	if pi.State() != (feedback.ControllerState{}) {
		t.Fatalf("integrals moved: %+v", pi.State())
	}
	if s := log.ticks[0].Sensed; s == nil || *s != want {
		t.Fatalf("missing readings reported as %v, want %+v", s, want)
	}
	if !log.ticks[1].Skipped || log.ticks[1].Sensed != nil {
		t.Fatalf("skipped tick = %+v", log.ticks[1])
	}
}

func TestHoldRejectsUnusableTarget(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRunner(t, Options{Sink: sink, Waiter: &fakeWaiter{}})
	err := r.Hold(kinematics.Point2D{X: 25, Y: 0}, time.Millisecond)
	if !errors.Is(err, kinematics.ErrUnreachable) {
		t.Fatalf("err = %v, want unreachable", err)
	}
	err = r.Hold(kinematics.Point2D{X: 10, Y: 0}, time.Millisecond)
	if !errors.Is(err, kinematics.ErrOutOfServoRange) {
		t.Fatalf("err = %v, want out of servo range", err)
	}
	if len(sink.writes) != 0 {
		t.Fatalf("rejected hold wrote %v", sink.writes)
	}
}

func TestSweepStep(t *testing.T) {
	sink := &recordingSink{}
	waiter := &fakeWaiter{}
	r := newTestRunner(t, Options{Sink: sink, Waiter: waiter})
	s, err := trajectory.NewSweep(90)
	if err != nil {
		t.Fatalf("NewSweep: %v", err)
	}
	first := r.SweepStep(s, 5*time.Millisecond)
	second := r.SweepStep(s, 5*time.Millisecond)
	if first.Pulses != [2]int{1000, 1000} || second.Pulses != [2]int{1000, 1500} {
		t.Fatalf("pulses %v then %v", first.Pulses, second.Pulses)
	}
	if math.Abs(first.Sample.Point.X-20) > 1e-9 || math.Abs(first.Sample.Point.Y) > 1e-9 {
		t.Fatalf("first sweep point %v, want (20, 0)", first.Sample.Point)
	}
	for i := 2; i < 9; i++ {
		r.SweepStep(s, 5*time.Millisecond)
	}
	if s.Passes() != 1 || len(waiter.waits) != 9 || len(sink.writes) != 18 {
		t.Fatalf("passes=%d waits=%d writes=%d", s.Passes(), len(waiter.waits), len(sink.writes))
	}
}

func TestNewRunnerValidation(t *testing.T) {
	pi, _ := feedback.NewController(feedback.DEFAULT_GAINS, servo.DEFAULT_RANGE)
	cases := []struct {
		name string
		opts Options
		want error
	}{
		{"no sink", Options{Solver: testSolver, Range: servo.DEFAULT_RANGE}, ErrNoSink},
		{"feedback without sensor", Options{Solver: testSolver, Range: servo.DEFAULT_RANGE, Sink: &recordingSink{}, Feedback: pi}, ErrNoSensor},
		{"bad geometry", Options{Solver: kinematics.Solver{Geometry: kinematics.ArmGeometry{L1: 0, L2: 10}}, Range: servo.DEFAULT_RANGE, Sink: &recordingSink{}}, kinematics.ErrInvalidGeometry},
		{"bad range", Options{Solver: testSolver, Range: servo.Range{PulseMinUS: 2000, PulseMaxUS: 1000, AngleSpanDeg: 180}, Sink: &recordingSink{}}, servo.ErrInvalidRange},
	}
	for _, c := range cases {
		if _, err := NewRunner(c.opts); !errors.Is(err, c.want) {
			t.Errorf("%s: err = %v, want %v", c.name, err, c.want)
		}
	}
	r := newTestRunner(t, Options{Sink: &recordingSink{}})
	if err := r.Run(nil); !errors.Is(err, ErrNoGenerator) {
		t.Errorf("Run(nil) = %v", err)
	}
}

func TestSimulatedArm(t *testing.T) {
	arm := NewSimulatedArm(servo.DEFAULT_RANGE, 0.5, kinematics.JointAngles{})
	arm.WriteDuty(servo.ELBOW, 2000)
	if got := arm.ReadAngle(servo.ELBOW); got != 90 {
		t.Fatalf("first read %v, want 90", got)
	}
	if got := arm.ReadAngle(servo.ELBOW); got != 135 {
		t.Fatalf("second read %v, want 135", got)
	}
	if got := arm.ReadAngle(servo.SHOULDER); got != 0 {
		t.Fatalf("shoulder moved to %v", got)
	}
}

func TestLogSinkRemembersLastWrite(t *testing.T) {
	sink := &LogSink{}
	sink.WriteDuty(servo.SHOULDER, 1200)
	sink.WriteDuty(servo.ELBOW, 1700)
	if got := sink.Last(); got != [2]int{1200, 1700} {
		t.Fatalf("Last = %v", got)
	}
}
