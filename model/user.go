package model

import "time"

type User struct {
	UserID         int       `gorm:"column:user_id;primaryKey;autoIncrement"`
	Username       string    `gorm:"column:username;type:varchar(255);uniqueIndex;not null"`
	HashedPassword string    `gorm:"column:hashed_password;not null"`
	IsActive       string    `gorm:"column:is_active;type:enum('0','1');default:'1'"`
	CreateAt       time.Time `gorm:"column:create_at;autoCreateTime"`
}

func (User) TableName() string {
	return "user"
}
