package models

type User struct {
	ID       uint   `gorm:"primary_key"`
	Username string `gorm:"type:varchar(64);uniqueIndex"`
	Password string `gorm:"type:varchar(64)"`
}
