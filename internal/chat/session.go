package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"sql-chat/internal/database"
	"sql-chat/internal/metrics"
	"sql-chat/internal/sqldb"
	"sql-chat/internal/sqlguard"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotConnected    = errors.New("session is not connected to a database")
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrSessionNotFound = errors.New("chat session not found")
	ErrLLM             = errors.New("language model call failed")
)

// Session is the explicit state of one conversation: its transcript and the
// database it talks to. Turns on a session are serialized.
type Session struct {
	mu       sync.Mutex
	db       *gorm.DB
	id       uuid.UUID
	owner    string
	history  *History
	handle   *sqldb.Handle
	pipeline *Pipeline
	// evicted is set once the session leaves the cache; it never connects
	// again.
	evicted bool
}

func newSession(db *gorm.DB, record database.ChatSession, history *History, pipeline *Pipeline) *Session {
	return &Session{
		db:       db,
		id:       record.ID,
		owner:    record.Owner,
		history:  history,
		pipeline: pipeline,
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Owner() string {
	return s.owner
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Turns()
}

// Schema returns a fresh schema snapshot and the table names.
func (s *Session) Schema(ctx context.Context) (string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return "", nil, ErrNotConnected
	}
	schema, err := s.handle.Schema(ctx)
	if err != nil {
		return "", nil, err
	}
	return schema, s.handle.Tables(), nil
}

// Attach makes handle the session's connection, closing the previous one. It
// reports false, leaving handle to the caller, if the session was evicted.
func (s *Session) Attach(handle *sqldb.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return false
	}
	s.closeHandle()
	s.handle = handle
	return true
}

// Detach closes the session's connection, if any.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHandle()
}

// evict closes the connection and refuses any later Attach.
func (s *Session) evict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evicted = true
	s.closeHandle()
}

func (s *Session) closeHandle() {
	if s.handle == nil {
		return
	}
	if err := s.handle.Close(); err != nil {
		slog.Warn("error closing database handle", "session_id", s.id, "error", err)
	}
	s.handle = nil
}

// saveExchange persists both turns of ex in one transaction.
func (s *Session) saveExchange(ex Exchange) error {
	human, err := ex.Human.toRecord()
	if err != nil {
		return err
	}
	ai, err := ex.AI.toRecord()
	if err != nil {
		return err
	}
	human.SessionID = s.id
	ai.SessionID = s.id
	if err := SaveChatMessages(s.db, &human, &ai); err != nil {
		return fmt.Errorf("error saving chat messages: %w", err)
	}
	return nil
}

// Ask runs one turn. The prompts see the question as the last human turn, and
// the human and AI turns are recorded together once the AI turn exists, so the
// transcript keeps alternating even when the store rejects the write.
func (s *Session) Ask(ctx context.Context, question string, observe Observer) (Reply, error) {
	if strings.TrimSpace(question) == "" {
		return Reply{}, ErrEmptyQuestion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return Reply{}, ErrNotConnected
	}

	ex, runErr := s.pipeline.Exchange(ctx, s.handle, s.history, question, observe)
	if runErr != nil {
		metrics.ObserveTurn(outcomeOf(runErr))
		slog.Warn("chat turn failed", "session_id", s.id, "sql", ex.AI.SQL, "error", runErr)
	} else {
		metrics.ObserveTurn("answered")
		slog.Info("chat turn answered", "session_id", s.id, "sql", ex.AI.SQL)
	}

	if err := s.saveExchange(ex); err != nil {
		return ex.Reply, err
	}
	s.history.Record(ex)

	reply := ex.Reply
	reply.Turns = s.history.Turns()
	return reply, runErr
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, sqlguard.ErrRejected):
		return "rejected"
	case errors.Is(err, ErrLLM):
		return "llm_error"
	default:
		return "error"
	}
}
