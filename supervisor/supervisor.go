// Package supervisor reconciles enabled stream configs into running relay
// processes and keeps them alive.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CamGateway/CamGateway/health"
	"github.com/CamGateway/CamGateway/log"
	"github.com/CamGateway/CamGateway/models"
	"github.com/CamGateway/CamGateway/ports"
	"github.com/CamGateway/CamGateway/relay"
	"github.com/shirou/gopsutil/process"
	"github.com/spf13/viper"
)

var ErrUnknownStream = errors.New("unknown stream")

type Config struct {
	GracePeriod        time.Duration
	StopTimeout        time.Duration
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	CrashLoopThreshold int
	CrashLoopWindow    time.Duration
	HealthyReset       time.Duration
	FailureThreshold   int
	LivenessInterval   time.Duration // 0 disables the PID double-check
}

func ConfigFromViper() Config {
	return Config{
		GracePeriod:        viper.GetDuration("supervisor.grace_period"),
		StopTimeout:        viper.GetDuration("supervisor.stop_timeout"),
		BackoffBase:        viper.GetDuration("supervisor.backoff_base"),
		BackoffMax:         viper.GetDuration("supervisor.backoff_max"),
		CrashLoopThreshold: viper.GetInt("supervisor.crashloop_threshold"),
		CrashLoopWindow:    viper.GetDuration("supervisor.crashloop_window"),
		HealthyReset:       viper.GetDuration("supervisor.healthy_reset"),
		FailureThreshold:   viper.GetInt("health.failure_threshold"),
		LivenessInterval:   viper.GetDuration("supervisor.liveness_interval"),
	}
}

// Supervisor owns the ManagedStream table. The table lock is never held
// across process launches, stops or probes.
type Supervisor struct {
	cfg      Config
	alloc    *ports.Allocator
	launcher relay.Launcher
	monitor  *health.Monitor
	pidAlive func(pid int) bool

	lock    sync.RWMutex
	streams map[string]*ManagedStream
	failed  map[string]string // per-stream reconcile failures (allocation etc.)
}

func New(cfg Config, alloc *ports.Allocator, launcher relay.Launcher) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		alloc:    alloc,
		launcher: launcher,
		pidAlive: pidExists,
		streams:  make(map[string]*ManagedStream),
		failed:   make(map[string]string),
	}
	s.monitor = health.NewMonitor(s)
	return s
}

// SetProbe swaps the reachability probe, for tests.
func (s *Supervisor) SetProbe(probe health.ProbeFunc) {
	s.monitor = health.NewMonitorWithProbe(s, probe)
}

// SetPidCheck swaps the PID existence check, for tests.
func (s *Supervisor) SetPidCheck(check func(pid int) bool) {
	s.pidAlive = check
}

// pidExists reports whether the OS still knows the pid. Lookup errors count
// as alive; the exit channel stays the authoritative signal.
func pidExists(pid int) bool {
	if pid <= 0 {
		return true
	}
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return true
	}
	return alive
}

// Reconcile drives the actual set of relays to match the desired configs.
// Re-entrant and idempotent: an unchanged desired state never restarts a
// healthy stream. Per-stream failures are isolated.
func (s *Supervisor) Reconcile(desired []models.Stream) {
	want := make(map[string]models.Stream, len(desired))
	reserved := make(map[int]string)
	for _, cfg := range desired {
		want[cfg.ID] = cfg
		if cfg.OnvifPort != 0 {
			reserved[cfg.OnvifPort] = cfg.ID
		}
	}
	if err := s.alloc.SetReserved(reserved); err != nil {
		log.Warn("explicit port reservations: ", err)
	}

	var toStop []*ManagedStream
	var toStart []models.Stream

	s.lock.Lock()
	// a failed record for a config no longer desired must not keep the id
	// known forever
	for id := range s.failed {
		if _, ok := want[id]; !ok {
			delete(s.failed, id)
		}
	}
	for id, ms := range s.streams {
		cfg, ok := want[id]
		if !ok {
			toStop = append(toStop, ms)
			delete(s.streams, id)
			continue
		}
		if fingerprint(cfg) != fingerprint(ms.config) {
			toStop = append(toStop, ms)
			delete(s.streams, id)
			toStart = append(toStart, cfg)
			continue
		}
		// config snapshot refresh for fields that do not force a restart
		ms.lock.Lock()
		ms.config = cfg
		ms.lock.Unlock()
	}
	running := make(map[string]bool, len(s.streams))
	for id := range s.streams {
		running[id] = true
	}
	s.lock.Unlock()

	for _, cfg := range desired {
		if !running[cfg.ID] {
			found := false
			for _, queued := range toStart {
				if queued.ID == cfg.ID {
					found = true
					break
				}
			}
			if !found {
				toStart = append(toStart, cfg)
			}
		}
	}

	// blocking work happens outside the table lock
	for _, ms := range toStop {
		s.teardown(ms)
	}
	for _, cfg := range toStart {
		s.startStream(cfg)
	}
}

func (s *Supervisor) startStream(cfg models.Stream) {
	port, err := s.alloc.Acquire(cfg.ID, cfg.OnvifPort)
	if err != nil {
		log.Error(fmt.Sprintf("stream %s: lease port: %v", cfg.ID, err))
		s.lock.Lock()
		s.failed[cfg.ID] = err.Error()
		s.lock.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ms := newManagedStream(cfg, port, cancel)

	s.lock.Lock()
	if _, exists := s.streams[cfg.ID]; exists {
		// concurrent reconcile won the race for this id
		s.lock.Unlock()
		cancel()
		s.alloc.Release(port)
		return
	}
	s.streams[cfg.ID] = ms
	delete(s.failed, cfg.ID)
	s.lock.Unlock()

	go s.supervise(ctx, ms)
	go s.monitor.Watch(ctx, cfg.ID, cfg.SourceURL())
}

// teardown cancels a stream's supervision, waits for its relay to exit and
// only then releases the port, so a new claimant can never race the old
// process.
func (s *Supervisor) teardown(ms *ManagedStream) {
	ms.cancel()
	select {
	case <-ms.done:
	case <-time.After(s.cfg.StopTimeout + 2*time.Second):
		log.Warn(fmt.Sprintf("stream %s: teardown timed out", ms.config.ID))
	}
	s.alloc.Release(ms.port)
}

// supervise owns one stream's state machine from launch to final stop.
func (s *Supervisor) supervise(ctx context.Context, ms *ManagedStream) {
	defer close(ms.done)
	logger := log.NewLogger(ms.config.ID, log.StreamId)
	backoff := s.cfg.BackoffBase

	for {
		ms.setStatus(Starting, "")
		proc, err := s.launcher.Launch(relay.Spec{
			StreamID:  ms.config.ID,
			Name:      ms.config.Name,
			SourceURL: ms.config.SourceURL(),
			Port:      ms.port,
		})
		if err != nil {
			logger.Error("launch failed: ", err)
			ms.setStatus(Degraded, fmt.Sprintf("launch failed: %v", err))
			if ms.recordExit(time.Now(), s.cfg.CrashLoopWindow, s.cfg.CrashLoopThreshold) {
				if !s.enterCrashLoop(ctx, ms, logger) {
					return
				}
				backoff = s.cfg.BackoffBase
				continue
			}
			if !sleepCtx(ctx, backoff) {
				ms.setStatus(Stopped, "")
				return
			}
			backoff = nextBackoff(backoff, s.cfg.BackoffMax)
			continue
		}
		ms.setProc(proc)

		// grace period: the relay must stay alive before it counts as Running
		grace := time.NewTimer(s.cfg.GracePeriod)
		select {
		case <-ctx.Done():
			grace.Stop()
			s.stopProcess(ms, proc, logger)
			return
		case exitErr := <-proc.Done():
			grace.Stop()
			s.onExit(ms, proc, exitErr, logger)
			if ms.recordExit(time.Now(), s.cfg.CrashLoopWindow, s.cfg.CrashLoopThreshold) {
				if !s.enterCrashLoop(ctx, ms, logger) {
					return
				}
				backoff = s.cfg.BackoffBase
				continue
			}
			if !sleepCtx(ctx, backoff) {
				ms.setStatus(Stopped, "")
				return
			}
			backoff = nextBackoff(backoff, s.cfg.BackoffMax)
			continue
		case <-grace.C:
		}
		ms.setStatus(Running, "")
		logger.Info("relay running on port ", ms.port)

		healthy := time.NewTimer(s.cfg.HealthyReset)
		var liveness *time.Ticker
		var livenessC <-chan time.Time
		if s.cfg.LivenessInterval > 0 {
			liveness = time.NewTicker(s.cfg.LivenessInterval)
			livenessC = liveness.C
		}
		stopTimers := func() {
			healthy.Stop()
			if liveness != nil {
				liveness.Stop()
			}
		}
		crashed := false
	running:
		for {
			select {
			case <-ctx.Done():
				stopTimers()
				s.stopProcess(ms, proc, logger)
				return
			case exitErr := <-proc.Done():
				stopTimers()
				s.onExit(ms, proc, exitErr, logger)
				crashed = true
				break running
			case reason := <-ms.kick:
				stopTimers()
				logger.Warn(reason, ", restarting relay")
				ms.setStatus(Degraded, reason)
				proc.Stop(s.cfg.StopTimeout)
				<-proc.Done()
				ms.setProc(nil)
				break running
			case <-livenessC:
				// a pid gone from the OS counts as an exit even if Wait
				// has not returned
				if !s.pidAlive(proc.Pid()) {
					stopTimers()
					s.onExit(ms, proc, errors.New("relay process vanished"), logger)
					crashed = true
					break running
				}
			case <-healthy.C:
				backoff = s.cfg.BackoffBase
				ms.clearExits()
				healthy.Reset(s.cfg.HealthyReset)
			}
		}

		// deliberate restarts after a confirmed-unreachable upstream do not
		// count toward the crash loop, unexpected exits do
		if crashed && ms.recordExit(time.Now(), s.cfg.CrashLoopWindow, s.cfg.CrashLoopThreshold) {
			if !s.enterCrashLoop(ctx, ms, logger) {
				return
			}
			backoff = s.cfg.BackoffBase
			continue
		}
		if !sleepCtx(ctx, backoff) {
			ms.setStatus(Stopped, "")
			return
		}
		backoff = nextBackoff(backoff, s.cfg.BackoffMax)
	}
}

func (s *Supervisor) onExit(ms *ManagedStream, proc relay.Process, exitErr error, logger *log.Logger) {
	msg := "relay exited"
	if exitErr != nil {
		msg = fmt.Sprintf("relay exited: %v", exitErr)
	}
	if tail := proc.StderrTail(); tail != "" {
		logger.Debug("relay stderr tail: ", tail)
	}
	logger.Warn(msg)
	ms.setStatus(Degraded, msg)
	ms.setProc(nil)
}

// enterCrashLoop parks the stream with auto-restarts suspended. A config
// change tears the goroutine down through reconcile; a deliberate restart
// request resumes launching with the exit history forgotten. Returns false
// when supervision should end.
func (s *Supervisor) enterCrashLoop(ctx context.Context, ms *ManagedStream, logger *log.Logger) bool {
	logger.Error("restart limit exceeded, entering crash loop")
	ms.setStatus(CrashLoop, "restart limit exceeded")
	select {
	case <-ctx.Done():
		ms.setStatus(Stopped, "")
		return false
	case reason := <-ms.kick:
		logger.Warn(reason, ", leaving crash loop")
		ms.clearExits()
		return true
	}
}

func (s *Supervisor) stopProcess(ms *ManagedStream, proc relay.Process, logger *log.Logger) {
	ms.setStatus(Stopping, "")
	proc.Stop(s.cfg.StopTimeout)
	select {
	case <-proc.Done():
	case <-time.After(s.cfg.StopTimeout + 2*time.Second):
		logger.Error("relay refused to die")
	}
	ms.setProc(nil)
	ms.setStatus(Stopped, "")
	logger.Info("relay stopped")
}

// ReportUpstream is the health monitor's input. Downgrade needs consecutive
// failures; a single flake never tears down a Running relay.
func (s *Supervisor) ReportUpstream(id string, err error) {
	s.lock.RLock()
	ms := s.streams[id]
	s.lock.RUnlock()
	if ms == nil {
		return
	}
	ms.lock.Lock()
	if err == nil {
		ms.probeFails = 0
		ms.lock.Unlock()
		return
	}
	ms.probeFails++
	fails := ms.probeFails
	st := ms.status
	if st == Running && fails >= s.cfg.FailureThreshold {
		ms.probeFails = 0
		ms.lock.Unlock()
		select {
		case ms.kick <- "upstream confirmed unreachable":
		default:
		}
		return
	}
	ms.lastError = fmt.Sprintf("upstream probe: %v", err)
	ms.lock.Unlock()
}

// Restart asks a managed stream's supervise loop to stop its relay and
// launch a fresh one. Deliberate restarts do not count toward the crash loop.
func (s *Supervisor) Restart(id string) error {
	s.lock.RLock()
	ms := s.streams[id]
	s.lock.RUnlock()
	if ms == nil {
		return ErrUnknownStream
	}
	select {
	case ms.kick <- "restart requested":
	default:
	}
	return nil
}

// Status reports a stream's current state. Unknown ids fail with
// ErrUnknownStream; a stream that failed reconciliation reports Stopped with
// the failure preserved.
func (s *Supervisor) Status(id string) (Info, error) {
	s.lock.RLock()
	ms := s.streams[id]
	failMsg, failed := s.failed[id]
	s.lock.RUnlock()
	if ms != nil {
		return ms.info(), nil
	}
	if failed {
		return Info{ID: id, Status: Stopped.String(), LastError: failMsg}, nil
	}
	return Info{}, ErrUnknownStream
}

// PortOf returns the live lease for a stream.
func (s *Supervisor) PortOf(id string) (int, bool) {
	s.lock.RLock()
	ms := s.streams[id]
	s.lock.RUnlock()
	if ms == nil {
		return 0, false
	}
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.port, true
}

// Snapshot lists all managed streams.
func (s *Supervisor) Snapshot() []Info {
	s.lock.RLock()
	all := make([]*ManagedStream, 0, len(s.streams))
	for _, ms := range s.streams {
		all = append(all, ms)
	}
	s.lock.RUnlock()
	infos := make([]Info, 0, len(all))
	for _, ms := range all {
		infos = append(infos, ms.info())
	}
	return infos
}

// Count returns the number of managed streams.
func (s *Supervisor) Count() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.streams)
}

// Shutdown tears down every managed stream within the context deadline.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.lock.Lock()
	all := make([]*ManagedStream, 0, len(s.streams))
	for id, ms := range s.streams {
		all = append(all, ms)
		delete(s.streams, id)
	}
	s.lock.Unlock()

	var wg sync.WaitGroup
	for _, ms := range all {
		wg.Add(1)
		go func(ms *ManagedStream) {
			defer wg.Done()
			ms.cancel()
			select {
			case <-ms.done:
				s.alloc.Release(ms.port)
			case <-ctx.Done():
			}
		}(ms)
	}
	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
		log.Info("all managed streams stopped")
	case <-ctx.Done():
		log.Warn("shutdown deadline reached with streams still stopping")
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// sleepCtx waits d or until ctx cancellation; false means cancelled. This is
// the restart timer that disable/delete must be able to cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
