package models

import (
	"strings"

	"github.com/CamGateway/CamGateway/utils"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init() (err error) {
	DB, err = open()
	if err != nil {
		return
	}
	if err = DB.AutoMigrate(User{}, Stream{}); err != nil {
		return
	}
	count := int64(0)
	defUser := viper.GetString("http.default_username")
	if defUser == "" {
		defUser = "admin"
	}
	defPass := viper.GetString("http.default_password")
	if defPass == "" {
		defPass = "admin"
	}
	DB.Model(User{}).Where("username = ?", defUser).Count(&count)
	if count == 0 {
		DB.Create(&User{
			Username: defUser,
			Password: utils.MD5(defPass),
		})
	}
	return
}

func open() (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: getLogLevel(viper.GetString("db.log_level"))}
	switch strings.ToLower(viper.GetString("db.type")) {
	case "mysql":
		return gorm.Open(mysql.Open(viper.GetString("db.uri")), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(viper.GetString("db.uri")), cfg)
	default:
		return gorm.Open(sqlite.Open(viper.GetString("db.file")), cfg)
	}
}

func getLogLevel(l string) logger.Interface {
	switch strings.ToLower(l) {
	case "info":
		return logger.Default.LogMode(logger.Info)
	case "warn":
		return logger.Default.LogMode(logger.Warn)
	case "error":
		return logger.Default.LogMode(logger.Error)
	default:
		return logger.Default.LogMode(logger.Silent)
	}
}

func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		sqlDB.Close()
	}
}
