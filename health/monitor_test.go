package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	lock    sync.Mutex
	reports []error
}

func (r *recordingReporter) ReportUpstream(id string, err error) {
	r.lock.Lock()
	r.reports = append(r.reports, err)
	r.lock.Unlock()
}

func (r *recordingReporter) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.reports)
}

func TestWatchReportsEveryProbe(t *testing.T) {
	rep := &recordingReporter{}
	probeErr := errors.New("unreachable")
	m := NewMonitorWithProbe(rep, func(string, time.Duration) error { return probeErr })
	m.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go m.Watch(ctx, "cam-1", "rtsp://camera-1/live")

	require.Eventually(t, func() bool { return rep.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
}

func TestWatchStopsOnCancel(t *testing.T) {
	rep := &recordingReporter{}
	m := NewMonitorWithProbe(rep, func(string, time.Duration) error { return nil })
	m.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		m.Watch(ctx, "cam-1", "rtsp://camera-1/live")
		close(stopped)
	}()

	require.Eventually(t, func() bool { return rep.count() > 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("monitor loop leaked after cancellation")
	}

	// no further reports once the stream is gone
	at := rep.count()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, rep.count(), at+1)
}
