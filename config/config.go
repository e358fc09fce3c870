package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"planararm/as5600"
	"planararm/feedback"
	"planararm/ina219"
	"planararm/kinematics"
	"planararm/logger"
	"planararm/maestro"
	"planararm/pcaservo"
	"planararm/power"
	"planararm/pwm"
	"planararm/sensing"
	"planararm/servo"
	"planararm/telemetry"
	"planararm/trajectory"
)

var ErrInvalidConfig = errors.New("invalid config")

type SinkKind string

const (
	SINK_SYSFS   SinkKind = "sysfs"
	SINK_MAESTRO SinkKind = "maestro"
	SINK_PCA9685 SinkKind = "pca9685"
	SINK_LOG     SinkKind = "log"
	SINK_SIM     SinkKind = "sim"
)

type SensorKind string

const (
	SENSOR_NONE    SensorKind = "none"
	SENSOR_AS5600  SensorKind = "as5600"
	SENSOR_MAESTRO SensorKind = "maestro"
	SENSOR_SIM     SensorKind = "sim"
)

type Arm struct {
	L1            float64 `toml:"l1"`
	L2            float64 `toml:"l2"`
	Elbow         string  `toml:"elbow"`
	Branch        string  `toml:"branch"`
	Normalization string  `toml:"normalization"`
}

type Servo struct {
	PulseMinUS   int     `toml:"pulse_min_us"`
	PulseMaxUS   int     `toml:"pulse_max_us"`
	AngleSpanDeg float64 `toml:"angle_span_deg"`
}

type Trajectory struct {
	// builtin name or a YAML pattern file
	Pattern         string        `toml:"pattern"`
	StepsPerSegment int           `toml:"steps_per_segment"`
	InterStepDelay  time.Duration `toml:"inter_step_delay"`
	Closed          *bool         `toml:"closed"`
	SweepStepDeg    int           `toml:"sweep_step_deg"`
	SweepDelay      time.Duration `toml:"sweep_delay"`
}

type Feedback struct {
	Enabled       bool          `toml:"enabled"`
	Kp            *float64      `toml:"kp"`
	Ki            *float64      `toml:"ki"`
	IntegralClamp *float64      `toml:"integral_clamp"`
	Period        time.Duration `toml:"period"`
}

type Sysfs struct {
	Root     string `toml:"root"`
	Shoulder string `toml:"shoulder"` // "<bus>/<channel>", e.g. "0/a"
	Elbow    string `toml:"elbow"`
	Polarity string `toml:"polarity"`
}

type Maestro struct {
	Port            string `toml:"port"`
	Baud            int    `toml:"baud"`
	Device          uint8  `toml:"device"`
	Compact         bool   `toml:"compact"`
	ShoulderChannel uint8  `toml:"shoulder_channel"`
	ElbowChannel    uint8  `toml:"elbow_channel"`
	Speed           uint16 `toml:"speed"`
	Acceleration    uint16 `toml:"acceleration"`
}

type PCA9685 struct {
	Bus             string `toml:"bus"`
	Address         uint16 `toml:"address"`
	ShoulderChannel int    `toml:"shoulder_channel"`
	ElbowChannel    int    `toml:"elbow_channel"`
}

type Sink struct {
	Kind    SinkKind `toml:"kind"`
	Sysfs   Sysfs    `toml:"sysfs"`
	Maestro Maestro  `toml:"maestro"`
	PCA9685 PCA9685  `toml:"pca9685"`
}

type Encoder struct {
	Bus       int     `toml:"bus"`
	Address   uint8   `toml:"address"`
	OffsetDeg float64 `toml:"offset_deg"`
	Inverted  bool    `toml:"inverted"`
}

type Sensor struct {
	Kind          SensorKind    `toml:"kind"`
	RefreshPeriod time.Duration `toml:"refresh_period"`
	MaxAge        time.Duration `toml:"max_age"`
	Shoulder      Encoder       `toml:"shoulder"`
	Elbow         Encoder       `toml:"elbow"`
	SimResponse   float64       `toml:"sim_response"`
}

type Telemetry struct {
	Enabled      bool          `toml:"enabled"`
	Address      string        `toml:"address"`
	MinInterval  time.Duration `toml:"min_interval"`
	PoseStepDeg  int           `toml:"pose_step_deg"`
	PoseDisabled bool          `toml:"pose_disabled"`
}

type Power struct {
	RailGpio      int           `toml:"rail_gpio"` // 0 leaves the rail alone
	RailAlias     string        `toml:"rail_alias"`
	RailActiveLow bool          `toml:"rail_active_low"`
	GpioRoot      string        `toml:"gpio_root"`
	Monitor       bool          `toml:"monitor"`
	MonitorBus    int           `toml:"monitor_bus"`
	MonitorAddr   uint8         `toml:"monitor_address"`
	ShuntOhms     float64       `toml:"shunt_ohms"`
	MaxCurrent    float64       `toml:"max_current"`
	MinVoltage    float64       `toml:"min_voltage"`
	RefreshPeriod time.Duration `toml:"refresh_period"`
}

type Log struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	Color      bool   `toml:"color"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type Config struct {
	Arm        Arm        `toml:"arm"`
	Servo      Servo      `toml:"servo"`
	Trajectory Trajectory `toml:"trajectory"`
	Feedback   Feedback   `toml:"feedback"`
	Sink       Sink       `toml:"sink"`
	Sensor     Sensor     `toml:"sensor"`
	Telemetry  Telemetry  `toml:"telemetry"`
	Power      Power      `toml:"power"`
	Log        Log        `toml:"log"`
}

// Default is the configuration of an empty file: a 10/10 arm driven in dry
// run against the log sink.
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (*Config, error) {
	c := &Config{}
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	applyDefaults(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func applyDefaults(c *Config) {
	if c.Arm.L1 == 0 {
		c.Arm.L1 = 10
	}
	if c.Arm.L2 == 0 {
		c.Arm.L2 = 10
	}

	if c.Servo.PulseMinUS == 0 && c.Servo.PulseMaxUS == 0 {
		c.Servo.PulseMinUS = servo.DEFAULT_RANGE.PulseMinUS
		c.Servo.PulseMaxUS = servo.DEFAULT_RANGE.PulseMaxUS
	}
	if c.Servo.AngleSpanDeg == 0 {
		c.Servo.AngleSpanDeg = servo.DEFAULT_RANGE.AngleSpanDeg
	}

	if c.Trajectory.Pattern == "" {
		c.Trajectory.Pattern = "square"
	}
	if c.Trajectory.SweepStepDeg == 0 {
		c.Trajectory.SweepStepDeg = trajectory.DEFAULT_SWEEP_STEP_DEG
	}
	if c.Trajectory.SweepDelay == 0 {
		c.Trajectory.SweepDelay = servo.PWM_PERIOD
	}

	if c.Feedback.Period == 0 {
		c.Feedback.Period = feedback.DEFAULT_PERIOD
	}
	setDefault(&c.Feedback.Kp, feedback.DEFAULT_KP)
	setDefault(&c.Feedback.Ki, feedback.DEFAULT_KI)
	setDefault(&c.Feedback.IntegralClamp, feedback.DEFAULT_INTEGRAL_CLAMP)

	if c.Sink.Kind == "" {
		c.Sink.Kind = SINK_LOG
	}
	if c.Sink.Sysfs.Root == "" {
		c.Sink.Sysfs.Root = pwm.DEFAULT_ROOT
	}
	if c.Sink.Sysfs.Shoulder == "" {
		c.Sink.Sysfs.Shoulder = "0/a"
	}
	if c.Sink.Sysfs.Elbow == "" {
		c.Sink.Sysfs.Elbow = "0/b"
	}
	if c.Sink.Maestro.Port == "" {
		c.Sink.Maestro.Port = "/dev/ttyACM0"
	}
	if c.Sink.Maestro.Baud == 0 {
		c.Sink.Maestro.Baud = maestro.DEFAULT_BAUD
	}
	if c.Sink.Maestro.Device == 0 {
		c.Sink.Maestro.Device = maestro.DEFAULT_DEVICE
	}
	if c.Sink.Maestro.ShoulderChannel == 0 && c.Sink.Maestro.ElbowChannel == 0 {
		c.Sink.Maestro.ElbowChannel = 1
	}
	if c.Sink.PCA9685.Bus == "" {
		c.Sink.PCA9685.Bus = "/dev/i2c-1"
	}
	if c.Sink.PCA9685.Address == 0 {
		c.Sink.PCA9685.Address = pcaservo.ADDRESS_DEFAULT
	}
	if c.Sink.PCA9685.ShoulderChannel == 0 && c.Sink.PCA9685.ElbowChannel == 0 {
		c.Sink.PCA9685.ElbowChannel = 1
	}

	if c.Sensor.Kind == "" {
		c.Sensor.Kind = SENSOR_NONE
		if c.Feedback.Enabled && c.Sink.Kind == SINK_SIM {
			c.Sensor.Kind = SENSOR_SIM
		}
	}
	if c.Sensor.RefreshPeriod == 0 {
		c.Sensor.RefreshPeriod = sensing.DEFAULT_REFRESH_PERIOD
	}
	if c.Sensor.MaxAge == 0 {
		c.Sensor.MaxAge = sensing.DEFAULT_MAX_AGE
	}
	for _, e := range []*Encoder{&c.Sensor.Shoulder, &c.Sensor.Elbow} {
		if e.Bus == 0 {
			e.Bus = 1
		}
		if e.Address == 0 {
			e.Address = as5600.ADDRESS_DEFAULT
		}
	}
	if c.Sensor.SimResponse == 0 {
		c.Sensor.SimResponse = 0.5
	}

	if c.Telemetry.Address == "" {
		c.Telemetry.Address = telemetry.DEFAULT_ADDRESS
	}
	if c.Telemetry.MinInterval == 0 {
		c.Telemetry.MinInterval = telemetry.DEFAULT_MIN_INTERVAL
	}
	if c.Telemetry.PoseStepDeg == 0 {
		c.Telemetry.PoseStepDeg = 10
	}

	if c.Power.GpioRoot == "" {
		c.Power.GpioRoot = "/sys/class/gpio"
	}
	if c.Power.MonitorBus == 0 {
		c.Power.MonitorBus = 1
	}
	if c.Power.MonitorAddr == 0 {
		c.Power.MonitorAddr = ina219.ADDRESS_DEFAULT
	}
	if c.Power.ShuntOhms == 0 {
		c.Power.ShuntOhms = ina219.DEFAULT_SHUNT.Ohms
	}
	if c.Power.MaxCurrent == 0 {
		c.Power.MaxCurrent = ina219.DEFAULT_SHUNT.MaxCurrent
	}
	if c.Power.MinVoltage == 0 {
		c.Power.MinVoltage = power.DEFAULT_MIN_VOLTAGE
	}
	if c.Power.RefreshPeriod == 0 {
		c.Power.RefreshPeriod = power.DEFAULT_REFRESH_PERIOD
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 7
	}
}

func setDefault(v **float64, def float64) {
	if *v == nil {
		*v = &def
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	add := func(e error) {
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %w", ErrInvalidConfig, e))
		}
	}
	_, e := c.Geometry()
	add(e)
	_, e = c.Range()
	add(e)
	_, e = c.Solver()
	add(e)
	_, e = c.Gains()
	add(e)
	if c.Trajectory.StepsPerSegment < 0 {
		add(fmt.Errorf("trajectory steps_per_segment %d < 0", c.Trajectory.StepsPerSegment))
	}
	if c.Trajectory.InterStepDelay < 0 {
		add(fmt.Errorf("trajectory inter_step_delay %v < 0", c.Trajectory.InterStepDelay))
	}
	if c.Trajectory.SweepStepDeg < 1 || c.Trajectory.SweepStepDeg > 180 {
		add(fmt.Errorf("trajectory sweep_step_deg %d out of [1, 180]", c.Trajectory.SweepStepDeg))
	}

	switch c.Sink.Kind {
	case SINK_SYSFS:
		_, _, e = pwm.ParseOutput(c.Sink.Sysfs.Shoulder)
		add(e)
		_, _, e = pwm.ParseOutput(c.Sink.Sysfs.Elbow)
		add(e)
		_, e = pwm.ParsePolarity(c.Sink.Sysfs.Polarity)
		add(e)
	case SINK_MAESTRO:
		if c.Sink.Maestro.ShoulderChannel == c.Sink.Maestro.ElbowChannel {
			add(fmt.Errorf("maestro channels must differ"))
		}
	case SINK_PCA9685:
		p := c.Sink.PCA9685
		if p.ShoulderChannel == p.ElbowChannel || p.ShoulderChannel < 0 || p.ShoulderChannel > 15 || p.ElbowChannel < 0 || p.ElbowChannel > 15 {
			add(fmt.Errorf("pca9685 channels %d, %d must be distinct and in [0, 15]", p.ShoulderChannel, p.ElbowChannel))
		}
	case SINK_LOG, SINK_SIM:
	default:
		add(fmt.Errorf("unknown sink kind %q", c.Sink.Kind))
	}

	switch c.Sensor.Kind {
	case SENSOR_NONE:
		if c.Feedback.Enabled {
			add(fmt.Errorf("feedback enabled without a sensor"))
		}
	case SENSOR_AS5600:
	case SENSOR_MAESTRO:
		if c.Sink.Kind != SINK_MAESTRO {
			add(fmt.Errorf("maestro sensor requires the maestro sink"))
		}
	case SENSOR_SIM:
		if c.Sink.Kind != SINK_SIM {
			add(fmt.Errorf("sim sensor requires the sim sink"))
		}
		if !(c.Sensor.SimResponse > 0 && c.Sensor.SimResponse <= 1) {
			add(fmt.Errorf("sensor sim_response %v out of (0, 1]", c.Sensor.SimResponse))
		}
	default:
		add(fmt.Errorf("unknown sensor kind %q", c.Sensor.Kind))
	}
	if c.Sensor.RefreshPeriod <= 0 || c.Sensor.MaxAge <= 0 {
		add(fmt.Errorf("sensor refresh_period and max_age must be positive"))
	}

	if c.Telemetry.PoseStepDeg < 1 || c.Telemetry.PoseStepDeg > 180 {
		add(fmt.Errorf("telemetry pose_step_deg %d out of [1, 180]", c.Telemetry.PoseStepDeg))
	}
	if c.Power.RailGpio < 0 {
		add(fmt.Errorf("power rail_gpio %d < 0", c.Power.RailGpio))
	}
	if c.Power.Monitor {
		_, e = ina219.Calibrate(c.Shunt())
		add(e)
	}
	_, e = logger.ParseLevel(c.Log.Level)
	add(e)
	return err
}

func (c *Config) Geometry() (kinematics.ArmGeometry, error) {
	return kinematics.NewArmGeometry(c.Arm.L1, c.Arm.L2)
}

func (c *Config) Range() (servo.Range, error) {
	return servo.NewRange(c.Servo.PulseMinUS, c.Servo.PulseMaxUS, c.Servo.AngleSpanDeg)
}

func (c *Config) Solver() (kinematics.Solver, error) {
	geom, err := c.Geometry()
	if err != nil {
		return kinematics.Solver{}, err
	}
	mode, err := kinematics.ParseElbowMode(c.Arm.Elbow)
	if err != nil {
		return kinematics.Solver{}, err
	}
	branch, err := kinematics.ParseBranchPolicy(c.Arm.Branch)
	if err != nil {
		return kinematics.Solver{}, err
	}
	norm, err := kinematics.ParseNormalization(c.Arm.Normalization)
	if err != nil {
		return kinematics.Solver{}, err
	}
	return kinematics.Solver{Geometry: geom, Mode: mode, Branch: branch, Normalization: norm}, nil
}

func (c *Config) Gains() (feedback.Gains, error) {
	g := feedback.Gains{
		Kp:            *c.Feedback.Kp,
		Ki:            *c.Feedback.Ki,
		IntegralClamp: *c.Feedback.IntegralClamp,
		Period:        c.Feedback.Period,
	}
	return g, g.Validate()
}

// TrajectoryConfig applies the [trajectory] overrides on top of the
// pattern's own settings.
func (c *Config) TrajectoryConfig(base trajectory.Config) trajectory.Config {
	if c.Trajectory.StepsPerSegment > 0 {
		base.StepsPerSegment = c.Trajectory.StepsPerSegment
	}
	if c.Trajectory.InterStepDelay > 0 {
		base.InterStepDelay = c.Trajectory.InterStepDelay
	}
	if c.Trajectory.Closed != nil {
		base.Closed = *c.Trajectory.Closed
	}
	return base
}

// Pattern resolves the configured pattern by builtin name first, then as a file.
func (c *Config) Pattern() (trajectory.Pattern, error) {
	p, err := trajectory.Builtin(c.Trajectory.Pattern)
	if errors.Is(err, trajectory.ErrUnknownPattern) {
		p, err = trajectory.LoadPatternFile(c.Trajectory.Pattern)
	}
	if err != nil {
		return trajectory.Pattern{}, err
	}
	p.Config = c.TrajectoryConfig(p.Config)
	return p, nil
}

func (c *Config) Shunt() ina219.Shunt {
	return ina219.Shunt{Ohms: c.Power.ShuntOhms, MaxCurrent: c.Power.MaxCurrent}
}

func (c *Config) LoggerOptions() logger.Options {
	level, _ := logger.ParseLevel(c.Log.Level)
	return logger.Options{
		Level:      level,
		File:       c.Log.File,
		Color:      c.Log.Color,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}
