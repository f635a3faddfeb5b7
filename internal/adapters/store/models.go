// Package store implements the message store and the participation
// oracle on gorm/sqlite.
package store

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type MessageRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	EventID    string `gorm:"index;size:64"`
	SenderID   string `gorm:"size:64"`
	SenderName string
	AvatarURL  string
	Content    string
	CreatedAt  time.Time
}

func (MessageRow) TableName() string { return "messages" }

type ParticipantRow struct {
	EventID string `gorm:"primaryKey;size:64"`
	UserID  string `gorm:"primaryKey;size:64"`
	Status  string `gorm:"size:16"`
}

func (ParticipantRow) TableName() string { return "event_participants" }

type SessionRow struct {
	Token     string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"index;size:64"`
	ExpiresAt time.Time
}

func (SessionRow) TableName() string { return "sessions" }

type UserRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string
	AvatarURL string
}

func (UserRow) TableName() string { return "users" }

func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&MessageRow{}, &ParticipantRow{}, &SessionRow{}, &UserRow{}); err != nil {
		return nil, err
	}
	return db, nil
}
