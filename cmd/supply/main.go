package main

import (
	"flag"
	"time"

	"planararm/config"
	"planararm/i2c"
	"planararm/ina219"
	"planararm/logger"
	"planararm/power"
)

var (
	configPath = flag.String("config", "", "rig config file (TOML) with a [power] section")
	period     = flag.Duration("period", time.Second, "print period")
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
	bus, err := i2c.Open(i2c.BusNumber(cfg.Power.MonitorBus))
	if err != nil {
		logger.Fatalf("Can not open i2c bus %d: %v", cfg.Power.MonitorBus, err)
	}
	defer bus.Close()
	meter, err := ina219.New(bus, cfg.Power.MonitorAddr, cfg.Shunt())
	if err != nil {
		logger.Fatalf("Can not initialize ina219: %v", err)
	}
	monitor := power.NewMonitor(meter, power.Limits{MinVoltage: cfg.Power.MinVoltage, MaxCurrent: cfg.Power.MaxCurrent})
	for {
		s := monitor.Sample()
		logger.Infof("Supply: %.3f V bus, %.3f V source, %.3f A (peak %.3f A), %.3f W",
			s.BusVoltage, s.SupplyVoltage, s.Current, s.PeakCurrent, s.Power)
		time.Sleep(*period)
	}
}
