package rig

import (
	"fmt"
	"net/http"

	"go.uber.org/multierr"

	"planararm/as5600"
	"planararm/config"
	"planararm/control"
	"planararm/feedback"
	"planararm/gpio"
	"planararm/i2c"
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
	"planararm/workspace"
)

// Rig is every collaborator of the control loop, assembled from a config.
type Rig struct {
	Config  *config.Config
	Solver  kinematics.Solver
	Range   servo.Range
	Sink    control.Sink
	Sensor  control.AngleSource
	Runner  *control.Runner
	Poller  *sensing.Poller
	Hub     *telemetry.Hub
	Rail    *gpio.Rail
	Monitor *power.Monitor
	Sim     *control.SimulatedArm

	buses   map[int]*i2c.Bus
	closers []func() error
}

// Build brings the hardware up in order: power rail, actuators, sensors,
// telemetry. On error everything opened so far is closed again.
func Build(cfg *config.Config) (r *Rig, err error) {
	r = &Rig{Config: cfg, buses: make(map[int]*i2c.Bus)}
	defer func() {
		if err != nil {
			err = multierr.Append(err, r.Close())
			r = nil
		}
	}()
	if r.Solver, err = cfg.Solver(); err != nil {
		return
	}
	if r.Range, err = cfg.Range(); err != nil {
		return
	}
	if err = r.buildPower(); err != nil {
		return
	}
	if err = r.buildSink(); err != nil {
		return
	}
	if err = r.buildSensor(); err != nil {
		return
	}
	err = r.buildRunner()
	return
}

func (r *Rig) onClose(f func() error) {
	r.closers = append(r.closers, f)
}

func (r *Rig) bus(n int) (*i2c.Bus, error) {
	if b, ok := r.buses[n]; ok {
		return b, nil
	}
	b, err := i2c.Open(i2c.BusNumber(n))
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %d: %w", n, err)
	}
	r.buses[n] = b
	r.onClose(b.Close)
	return b, nil
}

func (r *Rig) buildPower() error {
	p := r.Config.Power
	if p.RailGpio > 0 || p.RailAlias != "" {
		var line *gpio.Gpio
		var err error
		if p.RailAlias != "" {
			line, err = gpio.ExportAlias(p.GpioRoot, gpio.Alias(p.RailAlias))
		} else {
			line, err = gpio.Export(p.GpioRoot, gpio.Number(p.RailGpio))
		}
		if err != nil {
			return err
		}
		if r.Rail, err = gpio.NewRail(line, p.RailActiveLow); err != nil {
			return err
		}
		if err := r.Rail.Enable(); err != nil {
			return err
		}
		r.onClose(r.Rail.Disable)
	}
	if p.Monitor {
		bus, err := r.bus(p.MonitorBus)
		if err != nil {
			return err
		}
		meter, err := ina219.New(bus, p.MonitorAddr, r.Config.Shunt())
		if err != nil {
			return err
		}
		r.Monitor = power.NewMonitor(meter, power.Limits{MinVoltage: p.MinVoltage, MaxCurrent: p.MaxCurrent})
		r.Monitor.Start(p.RefreshPeriod)
		r.onClose(func() error {
			r.Monitor.Stop()
			return meter.PowerDown()
		})
	}
	return nil
}

func (r *Rig) buildSink() error {
	s := r.Config.Sink
	switch s.Kind {
	case config.SINK_SYSFS:
		outputs := [2]*pwm.PWM{}
		for i, spec := range []string{s.Sysfs.Shoulder, s.Sysfs.Elbow} {
			bus, ch, err := pwm.ParseOutput(spec)
			if err != nil {
				return err
			}
			outputs[i] = pwm.NewPWMAt(s.Sysfs.Root, bus, ch)
		}
		polarity, err := pwm.ParsePolarity(s.Sysfs.Polarity)
		if err != nil {
			return err
		}
		pair := pwm.NewPair(outputs[servo.SHOULDER], outputs[servo.ELBOW], polarity)
		if err := pair.Configure(servo.PWM_PERIOD, r.Range.Center()); err != nil {
			return err
		}
		r.onClose(pair.Disable)
		r.Sink = pair
	case config.SINK_MAESTRO:
		port, err := maestro.OpenPort(s.Maestro.Port, s.Maestro.Baud, maestro.DEFAULT_READ_TIMEOUT)
		if err != nil {
			return fmt.Errorf("open %s: %w", s.Maestro.Port, err)
		}
		r.onClose(port.Close)
		ctrl := maestro.NewController(port, s.Maestro.Device, s.Maestro.Compact)
		arm := maestro.NewArm(ctrl, s.Maestro.ShoulderChannel, s.Maestro.ElbowChannel, r.Range)
		if err := arm.Configure(s.Maestro.Speed, s.Maestro.Acceleration); err != nil {
			return err
		}
		r.onClose(ctrl.GoHome)
		r.Sink = arm
		if r.Config.Sensor.Kind == config.SENSOR_MAESTRO {
			r.Sensor = arm
		}
	case config.SINK_PCA9685:
		board, err := pcaservo.Open(s.PCA9685.Bus, s.PCA9685.Address, s.PCA9685.ShoulderChannel, s.PCA9685.ElbowChannel)
		if err != nil {
			return err
		}
		r.onClose(board.Close)
		r.Sink = board
	case config.SINK_SIM:
		center := r.Range.Angle(float64(r.Range.Center()))
		r.Sim = control.NewSimulatedArm(r.Range, r.Config.Sensor.SimResponse, kinematics.JointAngles{Theta1: center, Theta2: center})
		r.Sink = r.Sim
		if r.Config.Sensor.Kind == config.SENSOR_SIM {
			r.Sensor = r.Sim
		}
	default:
		r.Sink = &control.LogSink{}
	}
	logger.Infof("actuation sink: %s", s.Kind)
	return nil
}

func (r *Rig) encoder(e config.Encoder) (*as5600.AS5600, error) {
	bus, err := r.bus(e.Bus)
	if err != nil {
		return nil, err
	}
	dev, err := as5600.New(bus, e.Address)
	if err != nil {
		return nil, fmt.Errorf("as5600 on bus %d at 0x%02x: %w", e.Bus, e.Address, err)
	}
	dev.SetZero(e.OffsetDeg)
	dev.SetInverted(e.Inverted)
	return dev, nil
}

func (r *Rig) buildSensor() error {
	s := r.Config.Sensor
	if s.Kind != config.SENSOR_AS5600 {
		return nil
	}
	shoulder, err := r.encoder(s.Shoulder)
	if err != nil {
		return err
	}
	elbow, err := r.encoder(s.Elbow)
	if err != nil {
		return err
	}
	r.Poller = sensing.NewPoller(shoulder, elbow, s.MaxAge)
	r.Poller.Start(s.RefreshPeriod)
	r.onClose(func() error {
		r.Poller.Stop()
		return nil
	})
	r.Sensor = r.Poller
	return nil
}

func (r *Rig) buildRunner() error {
	opts := control.Options{
		Solver: r.Solver,
		Range:  r.Range,
		Sink:   r.Sink,
		Sensor: r.Sensor,
	}
	if r.Config.Feedback.Enabled {
		gains, err := r.Config.Gains()
		if err != nil {
			return err
		}
		if opts.Feedback, err = feedback.NewController(gains, r.Range); err != nil {
			return err
		}
	}
	if t := r.Config.Telemetry; t.Enabled {
		hubOpts := telemetry.Options{
			MinInterval: t.MinInterval,
			Stats:       r.stats,
		}
		if r.Poller != nil {
			hubOpts.Sensors = r.Poller.Status
		}
		if !t.PoseDisabled {
			m, err := workspace.NewMap(r.Solver.Geometry, t.PoseStepDeg)
			if err != nil {
				return err
			}
			hubOpts.Workspace = m
		}
		r.Hub = telemetry.NewHub(hubOpts)
		r.onClose(func() error {
			r.Hub.Close()
			return nil
		})
		opts.Observer = r.Hub
	}
	var err error
	r.Runner, err = control.NewRunner(opts)
	return err
}

func (r *Rig) stats() control.Stats {
	if r.Runner == nil {
		return control.Stats{}
	}
	return r.Runner.Stats()
}

// Serve runs the telemetry server when it is enabled; it blocks like
// http.ListenAndServe.
func (r *Rig) Serve() error {
	if r.Hub == nil {
		return nil
	}
	return r.Hub.ListenAndServe(r.Config.Telemetry.Address)
}

// Handler exposes the telemetry routes, nil when telemetry is off.
func (r *Rig) Handler() http.Handler {
	if r.Hub == nil {
		return nil
	}
	return r.Hub.Handler()
}

// Close releases resources in reverse order of acquisition.
func (r *Rig) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	r.closers = nil
	return err
}
