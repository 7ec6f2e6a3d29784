package log

import (
	"io"
	"path"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	easy "github.com/t-tomalak/logrus-easy-formatter"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields = logrus.Fields

var std = logrus.New()

func init() {
	std.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05",
		LogFormat:       "[%time%][%lvl%]: %msg%\n",
	})
	std.SetLevel(logrus.InfoLevel)
}

func SetLevel(level string) {
	if l, err := logrus.ParseLevel(level); err == nil {
		std.SetLevel(l)
	}
}

func SetOutput(o io.Writer) {
	std.SetOutput(o)
}

func SetLogFormatter(f logrus.Formatter) {
	std.SetFormatter(f)
}

// GetLogWriter returns a rotating file writer configured from the
// log section of the configuration.
func GetLogWriter() io.Writer {
	return &lumberjack.Logger{
		Filename:   path.Join(viper.GetString("log.dir"), viper.GetString("log.file")),
		MaxSize:    viper.GetInt("log.max_size"),
		MaxBackups: viper.GetInt("log.max_backups"),
		MaxAge:     viper.GetInt("log.max_age"),
		Compress:   viper.GetBool("log.compress"),
	}
}

func Debug(args ...interface{}) {
	std.Debug(args...)
}

func Info(args ...interface{}) {
	std.Info(args...)
}

func Warn(args ...interface{}) {
	std.Warn(args...)
}

func Error(args ...interface{}) {
	std.Error(args...)
}

func Fatal(args ...interface{}) {
	std.Fatal(args...)
}

func Panic(args ...interface{}) {
	std.Panic(args...)
}

func DebugWithFields(msg string, fields Fields) {
	std.WithFields(fields).Debug(msg)
}

func InfoWithFields(msg string, fields Fields) {
	std.WithFields(fields).Info(msg)
}

func WarnWithFields(msg string, fields Fields) {
	std.WithFields(fields).Warn(msg)
}

func ErrorWithFields(msg string, fields Fields) {
	std.WithFields(fields).Error(msg)
}
