package chat

import (
	"sync"
	"time"

	"sql-chat/internal/metrics"

	"github.com/google/uuid"
)

type sessionEntry struct {
	session      *Session
	lastAccessed time.Time
}

// SessionCache keeps at most maxSize live sessions. Adding a session to a
// full cache evicts the least recently used one and closes its connection.
type SessionCache struct {
	lock     sync.Mutex
	sessions map[uuid.UUID]*sessionEntry
	maxSize  int
}

func NewSessionCache(maxSize int) *SessionCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &SessionCache{
		sessions: make(map[uuid.UUID]*sessionEntry, maxSize),
		maxSize:  maxSize,
	}
}

func (cache *SessionCache) Get(sessionID uuid.UUID) (*Session, bool) {
	cache.lock.Lock()
	defer cache.lock.Unlock()

	entry, exists := cache.sessions[sessionID]
	if !exists {
		return nil, false
	}
	entry.lastAccessed = time.Now()
	return entry.session, true
}

// Add stores session unless another session with the same id got there
// first, and returns whichever session is now cached.
func (cache *SessionCache) Add(session *Session) *Session {
	cache.lock.Lock()

	if entry, exists := cache.sessions[session.ID()]; exists {
		entry.lastAccessed = time.Now()
		cache.lock.Unlock()
		return entry.session
	}

	var evicted *Session
	if len(cache.sessions) >= cache.maxSize {
		oldestID := uuid.Nil
		var oldestTime time.Time
		for id, entry := range cache.sessions {
			if oldestID == uuid.Nil || entry.lastAccessed.Before(oldestTime) {
				oldestID = id
				oldestTime = entry.lastAccessed
			}
		}
		evicted = cache.sessions[oldestID].session
		delete(cache.sessions, oldestID)
	}

	cache.sessions[session.ID()] = &sessionEntry{session: session, lastAccessed: time.Now()}
	metrics.SetActiveSessions(len(cache.sessions))
	cache.lock.Unlock()

	// evict waits for an in-flight turn, so it runs outside the cache lock.
	if evicted != nil {
		evicted.evict()
	}
	return session
}

// Remove drops the session and closes its connection.
func (cache *SessionCache) Remove(sessionID uuid.UUID) {
	cache.lock.Lock()
	entry, exists := cache.sessions[sessionID]
	delete(cache.sessions, sessionID)
	metrics.SetActiveSessions(len(cache.sessions))
	cache.lock.Unlock()

	if exists {
		entry.session.evict()
	}
}

func (cache *SessionCache) Len() int {
	cache.lock.Lock()
	defer cache.lock.Unlock()
	return len(cache.sessions)
}

// Close detaches every cached session and empties the cache.
func (cache *SessionCache) Close() {
	cache.lock.Lock()
	sessions := cache.sessions
	cache.sessions = make(map[uuid.UUID]*sessionEntry, cache.maxSize)
	metrics.SetActiveSessions(0)
	cache.lock.Unlock()

	for _, entry := range sessions {
		entry.session.evict()
	}
}
