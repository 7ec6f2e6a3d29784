package config

import (
	"strings"
	"time"

	"github.com/CamGateway/CamGateway/log"
	"github.com/kr/pretty"
	"github.com/spf13/viper"
)

// Defaults cover a single-host deployment with the relay port pool right
// above the HTTP port.
var defaults = map[string]interface{}{
	"http.port":     8000,
	"http.hostname": "",

	"pool.min_port": 8001,
	"pool.max_port": 8010,

	"db.type":      "sqlite",
	"db.file":      "camgateway.db",
	"db.uri":       "",
	"db.log_level": "silent",

	"supervisor.grace_period":        "3s",
	"supervisor.stop_timeout":        "5s",
	"supervisor.backoff_base":        "1s",
	"supervisor.backoff_max":         "30s",
	"supervisor.crashloop_threshold": 5,
	"supervisor.crashloop_window":    "2m",
	"supervisor.healthy_reset":       "2m",
	"supervisor.resync_interval":     "10s",
	"supervisor.shutdown_timeout":    "10s",
	"supervisor.liveness_interval":   "5s",

	"health.interval":          "5s",
	"health.timeout":           "5s",
	"health.failure_threshold": 3,

	"codec.ffmpeg_binary":          "ffmpeg",
	"codec.ffmpeg_general_options": "",
	"codec.ffmpeg_log_dir":         "",
	"codec.ffmpeg_log_max_size":    100,
	"codec.ffmpeg_log_max_backups": 7,
	"codec.ffmpeg_log_max_age":     7,
	"codec.ffmpeg_log_compress":    false,

	"onvif.manufacturer":     "CamGateway",
	"onvif.firmware_version": "1.0.0",

	"log.level":       "info",
	"log.dir":         "",
	"log.file":        "camgateway.log",
	"log.max_size":    100,
	"log.max_backups": 7,
	"log.max_age":     7,
	"log.compress":    false,

	"service.name":         "CamGateway_Service",
	"service.display_name": "CamGateway_Service",
	"service.description":  "RTSP to ONVIF gateway",
}

// Init merges defaults, an optional config file and CAMGW_* environment
// variables into the global viper instance.
func Init(file string) error {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}

	viper.SetEnvPrefix("camgw")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AllowEmptyEnv(true)
	viper.AutomaticEnv()

	if file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	}

	log.SetLevel(viper.GetString("log.level"))
	log.Debug(pretty.Sprintf("Current configurations: \n%# v", viper.AllSettings()))
	return nil
}

func Duration(key string) time.Duration {
	return viper.GetDuration(key)
}
