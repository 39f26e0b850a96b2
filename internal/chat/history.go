package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sql-chat/internal/database"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleHuman Role = Role(database.MessageHuman)
	RoleAI    Role = Role(database.MessageAI)
)

const Greeting = "Hi there! I'm a SQL assistant. Ask me anything about your database."

// Turn is one message of a conversation. SQL and Error are only set on AI
// turns that answered (or failed to answer) a question.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
	SQL       string
	Error     string
}

type turnMetadata struct {
	SQL   string `json:"sql,omitempty"`
	Error string `json:"error,omitempty"`
}

// History is the append-only transcript of a session. It always starts with
// the greeting. It is not safe for concurrent use; Session serializes access.
type History struct {
	turns []Turn
}

func NewHistory() *History {
	return &History{turns: []Turn{{Role: RoleAI, Content: Greeting, Timestamp: time.Now().UTC()}}}
}

// RestoreHistory rebuilds a history from persisted turns.
func RestoreHistory(turns []Turn) *History {
	if len(turns) == 0 {
		return NewHistory()
	}
	return &History{turns: append([]Turn(nil), turns...)}
}

func (h *History) Append(turn Turn) Turn {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	h.turns = append(h.turns, turn)
	return turn
}

// Record appends both turns of ex.
func (h *History) Record(ex Exchange) {
	h.Append(ex.Human)
	h.Append(ex.AI)
}

// with returns a copy of h with turn appended.
func (h *History) with(turn Turn) *History {
	turns := make([]Turn, 0, len(h.turns)+1)
	turns = append(turns, h.turns...)
	return &History{turns: append(turns, turn)}
}

func (h *History) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}

func (h *History) Len() int {
	return len(h.turns)
}

// String renders the transcript one "Role: content" line per turn, which is
// the form the prompts expect.
func (h *History) String() string {
	var b strings.Builder
	for _, turn := range h.turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}

func (t Turn) toRecord() (database.ChatHistory, error) {
	record := database.ChatHistory{
		MessageType: string(t.Role),
		Content:     t.Content,
		Timestamp:   t.Timestamp,
	}
	if t.SQL != "" || t.Error != "" {
		b, err := json.Marshal(turnMetadata{SQL: t.SQL, Error: t.Error})
		if err != nil {
			return record, fmt.Errorf("could not marshal metadata: %w", err)
		}
		record.Metadata = datatypes.JSON(b)
	}
	return record, nil
}

func turnFromRecord(record database.ChatHistory) Turn {
	turn := Turn{
		Role:      Role(record.MessageType),
		Content:   record.Content,
		Timestamp: record.Timestamp,
	}
	if len(record.Metadata) > 0 {
		var meta turnMetadata
		if err := json.Unmarshal(record.Metadata, &meta); err == nil {
			turn.SQL = meta.SQL
			turn.Error = meta.Error
		}
	}
	return turn
}

func turnsFromRecords(records []database.ChatHistory) []Turn {
	turns := make([]Turn, 0, len(records))
	for _, r := range records {
		turns = append(turns, turnFromRecord(r))
	}
	return turns
}
