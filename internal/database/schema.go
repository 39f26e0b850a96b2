package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MessageHuman string = "Human"
	MessageAI    string = "AI"
)

type ChatSession struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Owner string    `gorm:"index;not null"`
	Title string

	// Connection descriptor of the last successful connect. The password is
	// never stored.
	Driver string `gorm:"size:20"`
	Host   string
	Port   string `gorm:"size:10"`
	DBUser string
	DBName string

	CreationTime time.Time
}

type ChatHistory struct {
	ID          uint      `gorm:"primaryKey"`
	SessionID   uuid.UUID `gorm:"type:uuid;index"`
	MessageType string    `gorm:"size:10;not null"` // "Human" or "AI"
	Content     string
	Timestamp   time.Time
	Metadata    datatypes.JSON `gorm:"type:jsonb"` // {"sql": "...", "error": "..."}
}
