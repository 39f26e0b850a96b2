package chat_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"sql-chat/internal/chat"
	"sql-chat/internal/database"
	"sql-chat/internal/sqldb"
	"sql-chat/internal/sqldb/sqldbtest"
	"sql-chat/internal/sqlguard"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
	"gorm.io/gorm"
)

const topArtistsSQL = "SELECT a.FirstName, a.LastName, COUNT(*) AS TrackCount FROM Tracks t JOIN Artist a ON a.ArtistId = t.ArtistId GROUP BY t.ArtistId ORDER BY TrackCount DESC LIMIT 3"

func newAppDB(t *testing.T) *gorm.DB {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	return db
}

func newManager(t *testing.T, cacheSize int, responses ...string) (*chat.ChatSessionManager, *gorm.DB) {
	db := newAppDB(t)
	manager := chat.NewChatSessionManager(db, chat.NewPipeline(fake.NewFakeLLM(responses)), chat.ManagerConfig{
		CacheSize:  cacheSize,
		SampleRows: 2,
	})
	t.Cleanup(manager.Close)
	return manager, db
}

func connectedSession(t *testing.T, manager *chat.ChatSessionManager, owner string) uuid.UUID {
	record, err := manager.StartSession(owner, "")
	require.NoError(t, err)
	_, err = manager.Connect(context.Background(), owner, record.ID, sqldbtest.Catalog(t))
	require.NoError(t, err)
	return record.ID
}

func TestTopArtistsEndToEnd(t *testing.T) {
	manager, _ := newManager(t, 4, topArtistsSQL, "Nina Simone, Miles Davis and John Coltrane have the most tracks.")
	sessionID := connectedSession(t, manager, "jsmith")

	reply, err := manager.Ask(context.Background(), "jsmith", sessionID, "Which 3 artists have the most tracks?", nil)
	require.NoError(t, err)

	assert.Contains(t, reply.SQL, "GROUP BY")
	assert.Contains(t, reply.SQL, "ORDER BY")
	assert.Contains(t, reply.SQL, "LIMIT 3")
	assert.Equal(t, "FirstName\tLastName\tTrackCount\nNina\tSimone\t4\nMiles\tDavis\t3\nJohn\tColtrane\t2\n", reply.Rows)
	for _, name := range []string{"Nina Simone", "Miles Davis", "John Coltrane"} {
		assert.Contains(t, reply.Answer, name)
	}

	require.Len(t, reply.Turns, 3)
	assert.Equal(t, chat.RoleAI, reply.Turns[0].Role)
	assert.Equal(t, chat.Greeting, reply.Turns[0].Content)
	assert.Equal(t, chat.RoleHuman, reply.Turns[1].Role)
	assert.Equal(t, chat.RoleAI, reply.Turns[2].Role)
	assert.Equal(t, topArtistsSQL, reply.Turns[2].SQL)
}

func TestHistoryAlternatesAcrossTurns(t *testing.T) {
	manager, _ := newManager(t, 4,
		"SELECT FirstName, LastName FROM Artist", "The artists are Nina, Miles, John and Billie.",
		"DROP TABLE Artist",
		"SELECT COUNT(*) FROM Tracks", "There are 10 tracks.",
	)
	sessionID := connectedSession(t, manager, "jsmith")
	ctx := context.Background()

	questions := []string{"Who are the artists?", "Delete the artists", "How many tracks?"}
	for _, q := range questions {
		_, _ = manager.Ask(ctx, "jsmith", sessionID, q, nil)
	}

	turns, err := manager.History("jsmith", sessionID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1+2*len(questions))
	assert.Equal(t, chat.Greeting, turns[0].Content)
	for i, q := range questions {
		assert.Equal(t, chat.RoleHuman, turns[1+2*i].Role)
		assert.Equal(t, q, turns[1+2*i].Content)
		assert.Equal(t, chat.RoleAI, turns[2+2*i].Role)
	}
	assert.Contains(t, turns[4].Error, "DROP statements are not allowed")

	recent, err := manager.History("jsmith", sessionID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "How many tracks?", recent[0].Content)
	assert.Equal(t, "There are 10 tracks.", recent[1].Content)
}

func TestRejectedStatementNeverRuns(t *testing.T) {
	manager, _ := newManager(t, 4, "DELETE FROM Artist")
	record, err := manager.StartSession("jsmith", "cleanup")
	require.NoError(t, err)
	params := sqldbtest.Catalog(t)
	_, err = manager.Connect(context.Background(), "jsmith", record.ID, params)
	require.NoError(t, err)

	reply, err := manager.Ask(context.Background(), "jsmith", record.ID, "Remove every artist", nil)
	require.ErrorIs(t, err, sqlguard.ErrRejected)
	assert.True(t, strings.HasPrefix(reply.Answer, "I can't run that query"), reply.Answer)

	handle, err := sqldb.Connect(context.Background(), params)
	require.NoError(t, err)
	defer handle.Close()
	count, err := handle.Run(context.Background(), "SELECT COUNT(*) AS n FROM Artist")
	require.NoError(t, err)
	assert.Equal(t, "n\n4\n", count)
}

func TestExecutionFailureIsReported(t *testing.T) {
	manager, _ := newManager(t, 4, "SELECT * FROM Albums")
	sessionID := connectedSession(t, manager, "jsmith")

	reply, err := manager.Ask(context.Background(), "jsmith", sessionID, "List the albums", nil)
	require.Error(t, err)
	assert.Contains(t, reply.Answer, "The query failed")
	assert.Contains(t, reply.Answer, "no such table")
	require.Len(t, reply.Turns, 3)
}

func TestAskBeforeConnect(t *testing.T) {
	manager, _ := newManager(t, 4, "SELECT 1")
	record, err := manager.StartSession("jsmith", "")
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultTitle, record.Title)

	_, err = manager.Ask(context.Background(), "jsmith", record.ID, "How many tracks?", nil)
	assert.ErrorIs(t, err, chat.ErrNotConnected)

	_, err = manager.Ask(context.Background(), "jsmith", record.ID, "   ", nil)
	assert.ErrorIs(t, err, chat.ErrEmptyQuestion)

	turns, err := manager.History("jsmith", record.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, chat.Greeting, turns[0].Content)
}

func TestEvictedSessionIsRestored(t *testing.T) {
	manager, _ := newManager(t, 1, "SELECT COUNT(*) FROM Tracks", "There are 10 tracks.")
	first := connectedSession(t, manager, "jsmith")

	_, err := manager.Ask(context.Background(), "jsmith", first, "How many tracks?", nil)
	require.NoError(t, err)

	// Starting a second session evicts the first and closes its connection.
	_, err = manager.StartSession("jsmith", "second")
	require.NoError(t, err)

	session, err := manager.Session("jsmith", first)
	require.NoError(t, err)
	assert.False(t, session.Connected())

	turns := session.History()
	require.Len(t, turns, 3)
	assert.Equal(t, "How many tracks?", turns[1].Content)
	assert.Equal(t, "There are 10 tracks.", turns[2].Content)
	assert.Equal(t, "SELECT COUNT(*) FROM Tracks", turns[2].SQL)
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	manager, db := newManager(t, 4)
	record, err := manager.StartSession("jsmith", "mine")
	require.NoError(t, err)

	_, err = manager.Session("rbriggs", record.ID)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
	assert.ErrorIs(t, manager.Rename("rbriggs", record.ID, "theirs"), chat.ErrSessionNotFound)

	require.NoError(t, manager.Rename("jsmith", record.ID, "renamed"))
	sessions, err := manager.ListSessions("jsmith")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "renamed", sessions[0].Title)

	others, err := manager.ListSessions("rbriggs")
	require.NoError(t, err)
	assert.Empty(t, others)

	require.NoError(t, manager.Delete("jsmith", record.ID))
	_, err = manager.GetRecord("jsmith", record.ID)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	var remaining int64
	require.NoError(t, db.Model(&database.ChatHistory{}).Where("session_id = ?", record.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
}

func TestConnectRecordsDescriptor(t *testing.T) {
	manager, _ := newManager(t, 4)
	sessionID := connectedSession(t, manager, "jsmith")

	record, err := manager.GetRecord("jsmith", sessionID)
	require.NoError(t, err)
	assert.Equal(t, sqldb.DriverSQLite, record.Driver)
	assert.NotEmpty(t, record.DBName)

	schema, tables, err := manager.Schema(context.Background(), "jsmith", sessionID)
	require.NoError(t, err)
	assert.Contains(t, schema, "CREATE TABLE Tracks")
	assert.ElementsMatch(t, []string{"Artist", "Tracks"}, tables)

	require.NoError(t, manager.Disconnect("jsmith", sessionID))
	_, _, err = manager.Schema(context.Background(), "jsmith", sessionID)
	assert.ErrorIs(t, err, chat.ErrNotConnected)
}

func TestFailedSaveKeepsHistoryAlternating(t *testing.T) {
	manager, db := newManager(t, 4, "SELECT COUNT(*) FROM Tracks", "There are 10 tracks.")
	sessionID := connectedSession(t, manager, "jsmith")

	require.NoError(t, db.Migrator().DropTable(&database.ChatHistory{}))

	_, err := manager.Ask(context.Background(), "jsmith", sessionID, "How many tracks?", nil)
	require.Error(t, err)

	session, err := manager.Session("jsmith", sessionID)
	require.NoError(t, err)
	turns := session.History()
	require.Len(t, turns, 1)
	assert.Equal(t, chat.Greeting, turns[0].Content)
}
