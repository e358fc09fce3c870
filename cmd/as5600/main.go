package main

import (
	"flag"
	"time"

	"planararm/as5600"
	"planararm/config"
	"planararm/i2c"
	"planararm/logger"
)

var (
	configPath = flag.String("config", "", "rig config file (TOML) with [sensor.shoulder] and [sensor.elbow]")
	period     = flag.Duration("period", 500*time.Millisecond, "print period")
)

type joint struct {
	name string
	dev  *as5600.AS5600
}

func open(buses map[int]*i2c.Bus, name string, e config.Encoder) joint {
	bus, ok := buses[e.Bus]
	if !ok {
		var err error
		if bus, err = i2c.Open(i2c.BusNumber(e.Bus)); err != nil {
			logger.Fatalf("Can not open i2c bus %d: %v", e.Bus, err)
		}
		buses[e.Bus] = bus
	}
	dev, err := as5600.New(bus, e.Address)
	if err != nil {
		logger.Fatalf("%s encoder: %v", name, err)
	}
	dev.SetZero(e.OffsetDeg)
	dev.SetInverted(e.Inverted)
	return joint{name: name, dev: dev}
}

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
	buses := make(map[int]*i2c.Bus)
	joints := []joint{
		open(buses, "shoulder", cfg.Sensor.Shoulder),
		open(buses, "elbow", cfg.Sensor.Elbow),
	}
	defer func() {
		for _, b := range buses {
			b.Close()
		}
	}()

	for {
		for _, j := range joints {
			raw, err := j.dev.ReadDegrees()
			if err != nil {
				logger.Warnf("%s: %v", j.name, err)
				continue
			}
			angle, _ := j.dev.ReadJointAngle()
			status, _ := j.dev.Status()
			agc, _ := j.dev.ReadAGC()
			logger.Infof("%s: sensor %.2f deg, joint %.2f deg, agc %d, %v", j.name, raw, angle, agc, status)
		}
		time.Sleep(*period)
	}
}
