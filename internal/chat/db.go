package chat

import (
	"sql-chat/internal/database"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SQLite only supports one writer at a time, so we need a lock
// whenever we write to the database
var dbMutex sync.Mutex

func GetSessions(db *gorm.DB, owner string) ([]database.ChatSession, error) {
	var sessions []database.ChatSession
	err := db.Where("owner = ?", owner).Order("creation_time DESC").Find(&sessions).Error
	return sessions, err
}

func CreateSession(db *gorm.DB, session *database.ChatSession, greeting *database.ChatHistory) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(session).Error; err != nil {
			return err
		}
		return txn.Create(greeting).Error
	})
}

func GetSession(db *gorm.DB, sessionID uuid.UUID) (database.ChatSession, error) {
	var session database.ChatSession
	err := db.First(&session, "id = ?", sessionID).Error
	return session, err
}

func UpdateSessionTitle(db *gorm.DB, sessionID uuid.UUID, title string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&database.ChatSession{ID: sessionID}).Update("title", title).Error
}

func UpdateSessionConnection(db *gorm.DB, sessionID uuid.UUID, driver, host, port, user, name string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&database.ChatSession{ID: sessionID}).Updates(map[string]any{
		"driver":  driver,
		"host":    host,
		"port":    port,
		"db_user": user,
		"db_name": name,
	}).Error
}

func DeleteSession(db *gorm.DB, sessionID uuid.UUID) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Transaction(func(txn *gorm.DB) error {
		if err := txn.Delete(&database.ChatHistory{}, "session_id = ?", sessionID).Error; err != nil {
			return err
		}
		return txn.Delete(&database.ChatSession{}, "id = ?", sessionID).Error
	})
}

// GetChatHistory returns the turns of a session in insertion order. A
// positive limit keeps only the most recent turns.
func GetChatHistory(db *gorm.DB, sessionID uuid.UUID, limit int) ([]database.ChatHistory, error) {
	var history []database.ChatHistory
	query := db.Where("session_id = ?", sessionID)
	if limit > 0 {
		if err := query.Order("id DESC").Limit(limit).Find(&history).Error; err != nil {
			return nil, err
		}
		for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
			history[i], history[j] = history[j], history[i]
		}
		return history, nil
	}
	err := query.Order("id ASC").Find(&history).Error
	return history, err
}

// SaveChatMessages stores messages in order, all or none.
func SaveChatMessages(db *gorm.DB, messages ...*database.ChatHistory) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Transaction(func(txn *gorm.DB) error {
		for _, message := range messages {
			if err := txn.Create(message).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
