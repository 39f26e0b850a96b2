package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"sql-chat/internal/chat"
	"sql-chat/internal/sqldb"
	"sql-chat/internal/sqldb/sqldbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
	"golang.org/x/crypto/bcrypt"
)

func newTerminalChat(t *testing.T, out *bytes.Buffer, responses ...string) *terminalChat {
	handle, err := sqldb.Connect(context.Background(), sqldbtest.Catalog(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })

	return &terminalChat{
		out:      out,
		pipeline: chat.NewPipeline(fake.NewFakeLLM(responses)),
		db:       handle,
		history:  chat.NewHistory(),
		stages:   4,
		timeout:  time.Minute,
		showSQL:  true,
	}
}

func TestTerminalChatREPL(t *testing.T) {
	var out bytes.Buffer
	tc := newTerminalChat(t, &out,
		"SELECT COUNT(*) AS ArtistCount FROM Artist", "There are 4 artists.",
		"DROP TABLE Artist",
	)

	err := tc.repl(context.Background(), strings.NewReader("How many artists?\n\nDrop the artists\nexit\nignored\n"))
	require.NoError(t, err)

	printed := out.String()
	assert.True(t, strings.HasPrefix(printed, chat.Greeting))
	assert.Contains(t, printed, "SQL: SELECT COUNT(*) AS ArtistCount FROM Artist")
	assert.Contains(t, printed, "ArtistCount\n4\n")
	assert.Contains(t, printed, "There are 4 artists.")
	assert.Contains(t, printed, "DROP statements are not allowed")

	turns := tc.history.Turns()
	require.Len(t, turns, 5)
	assert.Equal(t, chat.RoleHuman, turns[3].Role)
	assert.Equal(t, chat.RoleAI, turns[4].Role)
	assert.NotEmpty(t, turns[4].Error)
	assert.True(t, strings.HasPrefix(turns[4].Content, "I can't run that query"), turns[4].Content)
	assert.Contains(t, printed, turns[4].Content)
}

func TestTerminalChatRejectsEmptyQuestion(t *testing.T) {
	var out bytes.Buffer
	tc := newTerminalChat(t, &out)
	assert.ErrorIs(t, tc.ask(context.Background(), "  "), chat.ErrEmptyQuestion)
	assert.Equal(t, 1, tc.history.Len())
}

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	c := newHashPasswordCmd()
	c.SetOut(&out)
	c.SetArgs([]string{"abc123"})
	require.NoError(t, c.Execute())

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("abc123")))
}
