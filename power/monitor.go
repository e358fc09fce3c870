package power

import (
	"sync"
	"time"

	"planararm/logger"
)

const (
	DEFAULT_REFRESH_PERIOD = time.Second
	// SG90/MG996R class servos brown out below about 4.5 V
	DEFAULT_MIN_VOLTAGE = 4.5
	DEFAULT_MAX_CURRENT = 2.5
)

type Meter interface {
	ReadBusVoltage() (float64, error)
	ReadShuntVoltage() (float64, error)
	ReadCurrent() (float64, error)
	ReadPower() (float64, error)
}

type Status struct {
	BusVoltage    float64   `json:"busVoltage"`
	ShuntVoltage  float64   `json:"shuntVoltage"`
	SupplyVoltage float64   `json:"supplyVoltage"`
	Current       float64   `json:"current"`
	Power         float64   `json:"power"`
	PeakCurrent   float64   `json:"peakCurrent"`
	Undervoltage  bool      `json:"undervoltage"`
	Overcurrent   bool      `json:"overcurrent"`
	Errors        uint64    `json:"errors"`
	Updated       time.Time `json:"updated"`
}

type Limits struct {
	MinVoltage float64
	MaxCurrent float64
}

var DEFAULT_LIMITS = Limits{MinVoltage: DEFAULT_MIN_VOLTAGE, MaxCurrent: DEFAULT_MAX_CURRENT}

// Monitor samples the servo supply and flags brownouts and stalls.
type Monitor struct {
	mu     sync.RWMutex
	meter  Meter
	limits Limits
	status Status
	stop   chan struct{}
	done   chan struct{}
	now    func() time.Time
}

func NewMonitor(meter Meter, limits Limits) *Monitor {
	return &Monitor{
		meter:  meter,
		limits: limits,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

func (m *Monitor) read() (s Status, err error) {
	if s.ShuntVoltage, err = m.meter.ReadShuntVoltage(); err != nil {
		return
	}
	if s.BusVoltage, err = m.meter.ReadBusVoltage(); err != nil {
		return
	}
	if s.Current, err = m.meter.ReadCurrent(); err != nil {
		return
	}
	s.Power, err = m.meter.ReadPower()
	return
}

// Sample takes one reading and returns the updated status.
func (m *Monitor) Sample() Status {
	s, err := m.read()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.status.Errors++
		if m.status.Errors == 1 || m.status.Errors%100 == 0 {
			logger.Warnf("servo supply read failed (%d errors): %v", m.status.Errors, err)
		}
		return m.status
	}
	s.SupplyVoltage = s.BusVoltage + s.ShuntVoltage
	s.Undervoltage = m.limits.MinVoltage > 0 && s.BusVoltage < m.limits.MinVoltage
	s.Overcurrent = m.limits.MaxCurrent > 0 && s.Current > m.limits.MaxCurrent
	s.PeakCurrent = max(m.status.PeakCurrent, s.Current)
	s.Errors = m.status.Errors
	s.Updated = m.now()

	if s.Undervoltage && !m.status.Undervoltage {
		logger.Warnf("servo supply low: %.2f V (min %.2f V)", s.BusVoltage, m.limits.MinVoltage)
	} else if !s.Undervoltage && m.status.Undervoltage {
		logger.Infof("servo supply recovered: %.2f V", s.BusVoltage)
	}
	if s.Overcurrent && !m.status.Overcurrent {
		logger.Warnf("servo current high: %.2f A (max %.2f A), a joint may be stalled", s.Current, m.limits.MaxCurrent)
	}
	m.status = s
	return s
}

func (m *Monitor) Run(refreshPeriod time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(refreshPeriod)
	defer ticker.Stop()
	for {
		m.Sample()
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) Start(refreshPeriod time.Duration) {
	go m.Run(refreshPeriod)
}

// Stop ends a running monitor and waits for it.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
