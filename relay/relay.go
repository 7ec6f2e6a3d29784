// Package relay launches and controls the external ffmpeg process that
// re-serves one source RTSP stream on its leased port.
package relay

import (
	"fmt"
	"io"
	"os/exec"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/CamGateway/CamGateway/log"
	"github.com/spf13/viper"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Spec is everything a launcher needs to start one relay.
type Spec struct {
	StreamID  string
	Name      string
	SourceURL string // credentials already embedded
	Port      int
}

// RelayPath is the path component of every relay URL.
const RelayPath = "/stream"

// Process is a handle on a launched relay. Done delivers the exit error
// exactly once; Stop sends SIGTERM and escalates to SIGKILL after the grace
// period.
type Process interface {
	Pid() int
	StartedAt() time.Time
	Done() <-chan error
	Stop(grace time.Duration)
	StderrTail() string
}

// Launcher starts relay processes. The supervisor only ever talks to this
// interface, so tests can substitute a fake.
type Launcher interface {
	Launch(spec Spec) (Process, error)
}

// FFmpegLauncher builds the relay command with ffmpeg-go and runs the
// configured ffmpeg binary.
type FFmpegLauncher struct{}

func NewFFmpegLauncher() *FFmpegLauncher {
	return &FFmpegLauncher{}
}

// Args compiles the full argument list for a relay spec.
func Args(spec Spec) []string {
	outputArgs := ffmpeg.KwArgs{
		"c:v":        "copy",
		"c:a":        "copy",
		"f":          "rtsp",
		"rtsp_flags": "listen",
	}
	stream := ffmpeg.Input(spec.SourceURL, ffmpeg.KwArgs{"rtsp_transport": "tcp", "fflags": "nobuffer"}).
		Output(fmt.Sprintf("rtsp://0.0.0.0:%d%s", spec.Port, RelayPath), outputArgs).
		GlobalArgs("-hide_banner", "-nostats", "-nostdin", "-loglevel", "error")
	globalArgs := viper.GetString("codec.ffmpeg_general_options")
	if strings.TrimSpace(globalArgs) != "" {
		stream = stream.GlobalArgs(strings.Split(globalArgs, " ")...)
	}
	return stream.OverWriteOutput().GetArgs()
}

func (l *FFmpegLauncher) Launch(spec Spec) (Process, error) {
	ffmpegCmd := viper.GetString("codec.ffmpeg_binary")
	cmd := exec.Command(ffmpegCmd, Args(spec)...)

	tail := newTailBuffer(4096)
	var stderr io.Writer = tail
	if dir := viper.GetString("codec.ffmpeg_log_dir"); dir != "" {
		out := &lumberjack.Logger{
			Filename:   path.Join(dir, fmt.Sprintf("ffmpeg-%s.log", spec.StreamID)),
			MaxSize:    viper.GetInt("codec.ffmpeg_log_max_size"), // MB
			MaxBackups: viper.GetInt("codec.ffmpeg_log_max_backups"),
			MaxAge:     viper.GetInt("codec.ffmpeg_log_max_age"), // days
			Compress:   viper.GetBool("codec.ffmpeg_log_compress"),
		}
		stderr = io.MultiWriter(out, tail)
	}
	cmd.Stderr = stderr
	cmd.Stdout = stderr

	logger := log.NewLogger(spec.StreamID, log.RelayId)
	logger.Info("starting relay: ", strings.Join(cmd.Args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	p := &process{
		cmd:       cmd,
		tail:      tail,
		startedAt: time.Now(),
		done:      make(chan error, 1),
		exited:    make(chan struct{}),
		logger:    logger,
	}
	go func() {
		err := cmd.Wait()
		if err != nil {
			logger.Warn("relay exited: ", err)
		} else {
			logger.Info("relay exited")
		}
		p.done <- err
		close(p.exited)
	}()
	return p, nil
}

type process struct {
	cmd       *exec.Cmd
	tail      *tailBuffer
	startedAt time.Time
	done      chan error
	exited    chan struct{}
	logger    *log.Logger

	stopOnce sync.Once
}

func (p *process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) StartedAt() time.Time {
	return p.startedAt
}

func (p *process) Done() <-chan error {
	return p.done
}

// Stop terminates the relay: SIGTERM first, SIGKILL once the grace period
// runs out. Wait happens in the launch goroutine, so Done still fires.
func (p *process) Stop(grace time.Duration) {
	p.stopOnce.Do(func() {
		proc := p.cmd.Process
		if proc == nil {
			return
		}
		p.logger.Info("prepare to SIGTERM to process: ", proc.Pid)
		proc.Signal(syscall.SIGTERM)
		killer := time.AfterFunc(grace, func() {
			p.logger.Warn("relay did not exit in time, killing: ", proc.Pid)
			proc.Kill()
		})
		go func() {
			<-p.exited
			killer.Stop()
		}()
	})
}

func (p *process) StderrTail() string {
	return p.tail.String()
}
