package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type ChatSession struct {
	Driver string `gorm:"size:20"`
	Host   string
	Port   string `gorm:"size:10"`
	DBUser string
	DBName string
}

var connectionColumns = []string{"Driver", "Host", "Port", "DBUser", "DBName"}

func Migration(db *gorm.DB) error {
	for _, column := range connectionColumns {
		if err := db.Migrator().AddColumn(&ChatSession{}, column); err != nil {
			return fmt.Errorf("error adding %s column: %w", column, err)
		}
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	for _, column := range connectionColumns {
		if err := db.Migrator().DropColumn(&ChatSession{}, column); err != nil {
			return fmt.Errorf("error dropping %s column: %w", column, err)
		}
	}
	return nil
}
