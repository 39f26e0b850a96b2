package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sql-chat/internal/database"
	"sql-chat/internal/sqldb"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultTitle = "New chat"

type ManagerConfig struct {
	// Defaults are the connection parameters taken from the environment.
	Defaults   sqldb.ConnectionParams
	CacheSize  int
	SampleRows int
}

type ChatSessionManager struct {
	db       *gorm.DB
	pipeline *Pipeline
	cache    *SessionCache
	cfg      ManagerConfig
}

func NewChatSessionManager(db *gorm.DB, pipeline *Pipeline, cfg ManagerConfig) *ChatSessionManager {
	if cfg.SampleRows < 0 {
		cfg.SampleRows = sqldb.DefaultSampleRows
	}
	return &ChatSessionManager{
		db:       db,
		pipeline: pipeline,
		cache:    NewSessionCache(cfg.CacheSize),
		cfg:      cfg,
	}
}

// StartSession creates a session whose history holds only the greeting.
func (manager *ChatSessionManager) StartSession(owner, title string) (database.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	history := NewHistory()
	greeting, err := history.Turns()[0].toRecord()
	if err != nil {
		return database.ChatSession{}, err
	}

	record := database.ChatSession{
		ID:           uuid.New(),
		Owner:        owner,
		Title:        title,
		CreationTime: time.Now().UTC(),
	}
	greeting.SessionID = record.ID

	if err := CreateSession(manager.db, &record, &greeting); err != nil {
		return database.ChatSession{}, fmt.Errorf("error creating chat session: %w", err)
	}

	manager.cache.Add(newSession(manager.db, record, history, manager.pipeline))
	slog.Info("chat session started", "session_id", record.ID, "owner", owner)
	return record, nil
}

func (manager *ChatSessionManager) ListSessions(owner string) ([]database.ChatSession, error) {
	sessions, err := GetSessions(manager.db, owner)
	if err != nil {
		return nil, fmt.Errorf("error listing chat sessions: %w", err)
	}
	return sessions, nil
}

// GetRecord returns the stored session if it exists and belongs to owner.
func (manager *ChatSessionManager) GetRecord(owner string, sessionID uuid.UUID) (database.ChatSession, error) {
	record, err := GetSession(manager.db, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return record, ErrSessionNotFound
		}
		return record, fmt.Errorf("error loading chat session: %w", err)
	}
	if record.Owner != owner {
		return database.ChatSession{}, ErrSessionNotFound
	}
	return record, nil
}

// Session returns the live session, restoring its history from the store if
// it was evicted.
func (manager *ChatSessionManager) Session(owner string, sessionID uuid.UUID) (*Session, error) {
	if session, ok := manager.cache.Get(sessionID); ok {
		if session.Owner() != owner {
			return nil, ErrSessionNotFound
		}
		return session, nil
	}

	record, err := manager.GetRecord(owner, sessionID)
	if err != nil {
		return nil, err
	}

	records, err := GetChatHistory(manager.db, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("error loading chat history: %w", err)
	}
	history := RestoreHistory(turnsFromRecords(records))
	return manager.cache.Add(newSession(manager.db, record, history, manager.pipeline)), nil
}

// Connect opens the session's database using the environment defaults with
// overrides applied, replacing any previous connection.
func (manager *ChatSessionManager) Connect(ctx context.Context, owner string, sessionID uuid.UUID, overrides sqldb.ConnectionParams) (*sqldb.Handle, error) {
	if _, err := manager.Session(owner, sessionID); err != nil {
		return nil, err
	}

	params := manager.cfg.Defaults.Merge(overrides)
	handle, err := sqldb.Connect(ctx, params, sqldb.WithSampleRows(manager.cfg.SampleRows))
	if err != nil {
		return nil, err
	}
	if err := manager.attach(owner, sessionID, handle); err != nil {
		if closeErr := handle.Close(); closeErr != nil {
			slog.Warn("error closing database handle", "session_id", sessionID, "error", closeErr)
		}
		return nil, err
	}

	p := handle.Params()
	if err := UpdateSessionConnection(manager.db, sessionID, p.Driver, p.Host, p.Port, p.User, p.Database); err != nil {
		slog.Warn("error saving connection descriptor", "session_id", sessionID, "error", err)
	}
	return handle, nil
}

// attach gives handle to the cached session. Connecting can take a while, and
// the session may have been evicted meanwhile, so it is looked up again until
// the attach lands on a live one.
func (manager *ChatSessionManager) attach(owner string, sessionID uuid.UUID, handle *sqldb.Handle) error {
	for {
		session, err := manager.Session(owner, sessionID)
		if err != nil {
			return err
		}
		if session.Attach(handle) {
			return nil
		}
	}
}

func (manager *ChatSessionManager) Disconnect(owner string, sessionID uuid.UUID) error {
	session, err := manager.Session(owner, sessionID)
	if err != nil {
		return err
	}
	session.Detach()
	return nil
}

func (manager *ChatSessionManager) Rename(owner string, sessionID uuid.UUID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title must not be empty")
	}
	if _, err := manager.GetRecord(owner, sessionID); err != nil {
		return err
	}
	if err := UpdateSessionTitle(manager.db, sessionID, title); err != nil {
		return fmt.Errorf("error renaming chat session: %w", err)
	}
	return nil
}

func (manager *ChatSessionManager) Delete(owner string, sessionID uuid.UUID) error {
	if _, err := manager.GetRecord(owner, sessionID); err != nil {
		return err
	}
	manager.cache.Remove(sessionID)
	if err := DeleteSession(manager.db, sessionID); err != nil {
		return fmt.Errorf("error deleting chat session: %w", err)
	}
	slog.Info("chat session deleted", "session_id", sessionID, "owner", owner)
	return nil
}

// History returns the persisted transcript; a positive limit keeps only the
// most recent turns.
func (manager *ChatSessionManager) History(owner string, sessionID uuid.UUID, limit int) ([]Turn, error) {
	if _, err := manager.GetRecord(owner, sessionID); err != nil {
		return nil, err
	}
	records, err := GetChatHistory(manager.db, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("error loading chat history: %w", err)
	}
	return turnsFromRecords(records), nil
}

func (manager *ChatSessionManager) Schema(ctx context.Context, owner string, sessionID uuid.UUID) (string, []string, error) {
	session, err := manager.Session(owner, sessionID)
	if err != nil {
		return "", nil, err
	}
	return session.Schema(ctx)
}

func (manager *ChatSessionManager) Ask(ctx context.Context, owner string, sessionID uuid.UUID, question string, observe Observer) (Reply, error) {
	session, err := manager.Session(owner, sessionID)
	if err != nil {
		return Reply{}, err
	}
	return session.Ask(ctx, question, observe)
}

// Close releases every live connection.
func (manager *ChatSessionManager) Close() {
	manager.cache.Close()
}
