package supervisor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/CamGateway/CamGateway/models"
	"github.com/CamGateway/CamGateway/relay"
)

// ManagedStream is the runtime record of one supervised relay. Exactly one
// exists per enabled stream config. All fields behind the lock; the
// supervision goroutine is the only writer of status transitions.
type ManagedStream struct {
	lock sync.Mutex

	config models.Stream
	port   int

	status     Status
	lastError  string
	proc       relay.Process
	pid        int
	startedAt  time.Time
	restarts   int
	exits      []time.Time
	probeFails int

	cancel context.CancelFunc
	done   chan struct{} // closed when the supervision goroutine returns
	kick   chan string   // deliberate-restart request carrying the reason
}

func newManagedStream(cfg models.Stream, port int, cancel context.CancelFunc) *ManagedStream {
	return &ManagedStream{
		config: cfg,
		port:   port,
		status: Stopped,
		cancel: cancel,
		done:   make(chan struct{}),
		kick:   make(chan string, 1),
	}
}

// fingerprint captures the config fields whose change requires a relaunch.
// Name changes only affect descriptors and never restart a healthy relay.
func fingerprint(cfg models.Stream) string {
	return cfg.SourceURL() + "|" + strconv.Itoa(cfg.OnvifPort)
}

func (ms *ManagedStream) setStatus(st Status, lastError string) {
	ms.lock.Lock()
	ms.status = st
	if lastError != "" {
		ms.lastError = lastError
	}
	if st == Running {
		ms.lastError = ""
	}
	ms.lock.Unlock()
}

func (ms *ManagedStream) setProc(p relay.Process) {
	ms.lock.Lock()
	ms.proc = p
	if p != nil {
		ms.pid = p.Pid()
		ms.startedAt = p.StartedAt()
	}
	ms.lock.Unlock()
}

// recordExit notes a relay exit and reports whether the crash-loop threshold
// is now exceeded within the window.
func (ms *ManagedStream) recordExit(now time.Time, window time.Duration, threshold int) bool {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.restarts++
	ms.exits = append(ms.exits, now)
	cutoff := now.Add(-window)
	kept := ms.exits[:0]
	for _, t := range ms.exits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	ms.exits = kept
	return len(ms.exits) > threshold
}

// clearExits forgets exit history after a sustained healthy period.
func (ms *ManagedStream) clearExits() {
	ms.lock.Lock()
	ms.exits = nil
	ms.lock.Unlock()
}

// Info is a point-in-time copy of a ManagedStream for status queries.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	Restarts  int       `json:"restarts"`
	StartedAt time.Time `json:"startedAt"`
	LastError string    `json:"lastError,omitempty"`
}

func (ms *ManagedStream) info() Info {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return Info{
		ID:        ms.config.ID,
		Name:      ms.config.Name,
		Status:    ms.status.String(),
		Port:      ms.port,
		PID:       ms.pid,
		Restarts:  ms.restarts,
		StartedAt: ms.startedAt,
		LastError: ms.lastError,
	}
}

func (ms *ManagedStream) currentStatus() (Status, string) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.status, ms.lastError
}
