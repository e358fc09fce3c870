package sensing

import (
	"math"
	"sync"
	"time"

	"planararm/logger"
	"planararm/servo"
)

const (
	DEFAULT_REFRESH_PERIOD = 5 * time.Millisecond
	// a reading older than a few servo frames is not worth correcting against
	DEFAULT_MAX_AGE = 100 * time.Millisecond
)

// Reader returns one joint angle in degrees. *as5600.AS5600 implements it
// through ReadJointAngle.
type Reader interface {
	ReadJointAngle() (float64, error)
}

type JointStatus struct {
	Angle   float64   `json:"angle"`
	Valid   bool      `json:"valid"`
	Errors  uint64    `json:"errors"`
	Updated time.Time `json:"updated"`
}

// Poller samples both joint sensors in the background and serves the last
// good reading, so the control loop never blocks on the bus.
type Poller struct {
	mu      sync.RWMutex
	readers [2]Reader
	status  [2]JointStatus
	maxAge  time.Duration
	stop    chan struct{}
	done    chan struct{}
	now     func() time.Time
}

// NewPoller polls shoulder and elbow. Readings older than maxAge are
// reported as missing; zero disables the age check.
func NewPoller(shoulder, elbow Reader, maxAge time.Duration) *Poller {
	return &Poller{
		readers: [2]Reader{shoulder, elbow},
		maxAge:  maxAge,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// Poll reads both sensors once.
func (p *Poller) Poll() {
	for _, ch := range servo.Channels {
		angle, err := p.readers[ch].ReadJointAngle()
		p.mu.Lock()
		st := &p.status[ch]
		if err != nil {
			st.Errors++
			count := st.Errors
			p.mu.Unlock()
			if count == 1 || count%100 == 0 {
				logger.Warnf("%v sensor read failed (%d so far): %v", ch, count, err)
			}
			continue
		}
		st.Angle = angle
		st.Valid = true
		st.Updated = p.now()
		p.mu.Unlock()
	}
}

// Run polls every refreshPeriod until Stop is called.
func (p *Poller) Run(refreshPeriod time.Duration) {
	defer close(p.done)
	for {
		p.Poll()
		select {
		case <-p.stop:
			return
		case <-time.After(refreshPeriod):
		}
	}
}

func (p *Poller) Start(refreshPeriod time.Duration) {
	go p.Run(refreshPeriod)
}

// Stop ends Run and waits for it to return.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
}

// ReadAngle returns NaN when no fresh reading exists.
func (p *Poller) ReadAngle(ch servo.Channel) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := p.status[ch]
	if !st.Valid {
		return math.NaN()
	}
	if p.maxAge > 0 && p.now().Sub(st.Updated) > p.maxAge {
		return math.NaN()
	}
	return st.Angle
}

func (p *Poller) Status() [2]JointStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}
