package api

import (
	"time"

	"github.com/google/uuid"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserInfo struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type LoginResponse struct {
	User      UserInfo  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type StartSessionRequest struct {
	Title string `json:"title"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Greeting  string `json:"greeting"`
}

// ConnectionInfo describes a connection without its password.
type ConnectionInfo struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Database string `json:"database"`
}

type ChatSessionMetadata struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	CreationTime time.Time       `json:"creation_time"`
	Connected    bool            `json:"connected"`
	Connection   *ConnectionInfo `json:"connection,omitempty"`
}

type GetSessionsResponse struct {
	Sessions []ChatSessionMetadata `json:"sessions"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

// ConnectRequest overrides the server's default connection parameters. Empty
// fields keep the defaults.
type ConnectRequest struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

type ConnectResponse struct {
	Connection ConnectionInfo `json:"connection"`
	Dialect    string         `json:"dialect"`
	Tables     []string       `json:"tables"`
}

type SchemaResponse struct {
	Schema string   `json:"schema"`
	Tables []string `json:"tables"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
	Result   string `json:"result"`
	Reply    string `json:"reply"`
	Error    string `json:"error,omitempty"`
}

type ChatHistoryItem struct {
	MessageType string    `json:"message_type"` // "Human" or "AI"
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	SQL         string    `json:"sql,omitempty"`
	Error       string    `json:"error,omitempty"`
}

type HistoryParams struct {
	Limit int `schema:"limit"`
}

// StageEvent is one line of a streamed chat response.
type StageEvent struct {
	Stage  string `json:"stage"`
	SQL    string `json:"sql,omitempty"`
	Result string `json:"result,omitempty"`
	Reply  string `json:"reply,omitempty"`
}
