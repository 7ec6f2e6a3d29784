package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CamGateway/CamGateway/config"
	"github.com/CamGateway/CamGateway/log"
	"github.com/CamGateway/CamGateway/models"
	"github.com/CamGateway/CamGateway/ports"
	"github.com/CamGateway/CamGateway/registry"
	"github.com/CamGateway/CamGateway/relay"
	"github.com/CamGateway/CamGateway/routers"
	"github.com/CamGateway/CamGateway/supervisor"
	"github.com/CamGateway/CamGateway/utils"
	"github.com/MeloQi/service"
	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/viper"
)

var (
	gitCommitCode string
	buildDateTime string
)

type program struct {
	httpPort   int
	httpServer *http.Server
	reg        *registry.Registry
	sup        *supervisor.Supervisor
	changeCh   chan struct{}
	stopCh     chan struct{}
}

func (p *program) StartHTTP() (err error) {
	p.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", p.httpPort),
		Handler:           routers.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	link := fmt.Sprintf("http://%s:%d", utils.LocalIP(), p.httpPort)
	log.Info("http server start -->", link)
	go func() {
		if err := p.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("start http server error: ", err)
		}
		log.Info("http server end")
	}()
	return
}

func (p *program) StopHTTP() (err error) {
	if p.httpServer == nil {
		err = fmt.Errorf("HTTP Server Not Found")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = p.httpServer.Shutdown(ctx); err != nil {
		return
	}
	return
}

// reconcile pulls the enabled configs and drives the supervisor toward them.
func (p *program) reconcile() {
	streams, err := p.reg.ListEnabled()
	if err != nil {
		log.Error("list enabled streams err: ", err)
		return
	}
	p.sup.Reconcile(streams)
}

func (p *program) Start(s service.Service) (err error) {
	log.Info("********** START **********")
	if utils.IsPortInUse(p.httpPort) {
		err = fmt.Errorf("HTTP port[%d] In Use", p.httpPort)
		return
	}
	if err = models.Init(); err != nil {
		return
	}
	if !utils.CommandExists(viper.GetString("codec.ffmpeg_binary")) {
		log.Warn("ffmpeg binary not found in PATH, relays will fail to launch")
	}
	if dir := viper.GetString("codec.ffmpeg_log_dir"); dir != "" {
		if err := utils.EnsureDir(dir); err != nil {
			log.Error("create ffmpeg log dir err: ", err)
		}
	}

	p.reg = registry.New(models.DB)
	alloc := ports.NewAllocator(viper.GetInt("pool.min_port"), viper.GetInt("pool.max_port"))
	p.sup = supervisor.New(supervisor.ConfigFromViper(), alloc, relay.NewFFmpegLauncher())

	if err = routers.Init(p.reg, p.sup); err != nil {
		return
	}
	p.StartHTTP()

	if dir := viper.GetString("log.dir"); dir != "" {
		if err := utils.EnsureDir(dir); err == nil {
			log.SetOutput(log.GetLogWriter())
		}
	}

	p.changeCh = make(chan struct{}, 1)
	p.stopCh = make(chan struct{})
	p.reg.OnChange(func() {
		select {
		case p.changeCh <- struct{}{}:
		default:
		}
	})

	go func() {
		for range routers.API.RestartChan {
			p.StopHTTP()
			p.StartHTTP()
		}
	}()

	go func() {
		log.Info("starting reconcile daemon")
		p.reconcile()
		resync := time.NewTicker(viper.GetDuration("supervisor.resync_interval"))
		defer resync.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-p.changeCh:
				p.reconcile()
			case <-resync.C:
				p.reconcile()
			}
		}
	}()
	return
}

func (p *program) Stop(s service.Service) (err error) {
	defer log.Info("********** STOP **********")
	close(p.stopCh)
	ctx, cancel := context.WithTimeout(context.Background(),
		viper.GetDuration("supervisor.shutdown_timeout"))
	defer cancel()
	p.sup.Shutdown(ctx)
	p.StopHTTP()
	models.Close()
	return
}

func main() {
	var confFile string
	flag.StringVar(&confFile, "config", "", "configure file path")
	flag.Parse()
	tail := flag.Args()

	if err := config.Init(confFile); err != nil {
		log.Error("read config err: ", err)
		return
	}

	log.Info("git commit code: ", gitCommitCode)
	log.Info("build date: ", buildDateTime)
	routers.BuildVersion = fmt.Sprintf("%s.%s", routers.BuildVersion, gitCommitCode)
	routers.BuildDateTime = buildDateTime

	svcConfig := &service.Config{
		Name:        viper.GetString("service.name"),
		DisplayName: viper.GetString("service.display_name"),
		Description: viper.GetString("service.description"),
	}

	p := &program{
		httpPort: viper.GetInt("http.port"),
	}
	s, err := service.New(p, svcConfig)
	if err != nil {
		log.Error(err)
		return
	}
	if len(tail) > 0 {
		cmd := strings.ToLower(tail[0])
		if cmd == "install" || cmd == "stop" || cmd == "start" || cmd == "uninstall" {
			figure.NewFigure("CamGateway", "", false).Print()
			log.Info(svcConfig.Name, " ", cmd, "...")
			if err = service.Control(s, cmd); err != nil {
				log.Error(err)
				return
			}
			log.Info(svcConfig.Name, " ", cmd, " ok")
			return
		}
	}
	figure.NewFigure("CamGateway", "", false).Print()
	if err = s.Run(); err != nil {
		log.Error(err)
	}
}
