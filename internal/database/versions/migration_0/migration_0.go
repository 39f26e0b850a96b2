package migration_0

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatSession struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Owner        string    `gorm:"index;not null"`
	Title        string
	CreationTime time.Time
}

type ChatHistory struct {
	ID          uint      `gorm:"primaryKey"`
	SessionID   uuid.UUID `gorm:"type:uuid;index"`
	MessageType string    `gorm:"size:10;not null"`
	Content     string
	Timestamp   time.Time
	Metadata    datatypes.JSON `gorm:"type:jsonb"`
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&ChatSession{}, &ChatHistory{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
