package health

import (
	"context"
	"time"

	"github.com/CamGateway/CamGateway/log"
	"github.com/spf13/viper"
)

// Reporter receives the outcome of every probe. A nil err means reachable.
type Reporter interface {
	ReportUpstream(id string, err error)
}

// ProbeFunc checks one source URL. Swappable in tests.
type ProbeFunc func(url string, timeout time.Duration) error

// Monitor periodically probes upstream sources. One Watch goroutine runs per
// supervised stream so a slow probe never delays another stream's check.
type Monitor struct {
	Interval time.Duration
	Timeout  time.Duration
	probe    ProbeFunc
	reporter Reporter
}

func NewMonitor(reporter Reporter) *Monitor {
	m := &Monitor{
		Interval: viper.GetDuration("health.interval"),
		Timeout:  viper.GetDuration("health.timeout"),
		probe:    Probe,
		reporter: reporter,
	}
	if m.Interval <= 0 {
		m.Interval = 5 * time.Second
	}
	if m.Timeout <= 0 {
		m.Timeout = 5 * time.Second
	}
	return m
}

// NewMonitorWithProbe injects a probe implementation.
func NewMonitorWithProbe(reporter Reporter, probe ProbeFunc) *Monitor {
	m := NewMonitor(reporter)
	m.probe = probe
	return m
}

// Watch probes sourceURL on a fixed interval until ctx is cancelled. The
// caller ties ctx to the ManagedStream lifetime, so the loop cannot outlive
// its stream.
func (m *Monitor) Watch(ctx context.Context, id, sourceURL string) {
	logger := log.NewLogger(id, log.ProbeId)
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("monitor stopped")
			return
		case <-ticker.C:
			err := m.probe(sourceURL, m.Timeout)
			if err != nil {
				logger.Debug("probe failed: ", err)
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			m.reporter.ReportUpstream(id, err)
		}
	}
}
