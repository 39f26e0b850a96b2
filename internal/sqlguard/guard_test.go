package sqlguard_test

import (
	"testing"

	"sql-chat/internal/sqlguard"

	"github.com/stretchr/testify/assert"
)

func TestGuardAccepts(t *testing.T) {
	guard := sqlguard.New()

	for _, sql := range []string{
		"SELECT FirstName, LastName FROM Artist",
		"SELECT ArtistId, COUNT(*) as TrackCount FROM Tracks GROUP BY ArtistId ORDER BY TrackCount DESC LIMIT 3;",
		"select * from Artist;;  ",
		"  (SELECT 1) UNION (SELECT 2)",
		"WITH top AS (SELECT ArtistId FROM Tracks) SELECT * FROM top",
		"SHOW TABLES",
		"DESCRIBE Artist",
		"EXPLAIN SELECT * FROM Tracks",
		"SELECT REPLACE(Name, 'a', 'b') FROM Tracks",
		"SELECT 'DROP TABLE Artist' AS note",
		"SELECT \"delete\" FROM `update`",
		"SELECT 1 -- DELETE FROM Artist",
		"/* DROP */ SELECT 1",
		"SELECT 'it''s; fine'",
		`SELECT 'it\'s' AS quote`,
		`SELECT 'C:\\' AS path`,
	} {
		assert.NoError(t, guard.Check(sql), sql)
	}
}

func TestGuardRejects(t *testing.T) {
	guard := sqlguard.New()

	for _, sql := range []string{
		"",
		"   ;  ",
		"-- only a comment",
		"DELETE FROM Artist",
		"drop table Artist",
		"INSERT INTO Artist VALUES (5, 'a', 'b')",
		"UPDATE Artist SET FirstName = 'x'",
		"SELECT 1; DROP TABLE Artist",
		"SELECT 1; SELECT 2",
		"WITH gone AS (DELETE FROM Tracks RETURNING *) SELECT * FROM gone",
		"SELECT * INTO backup FROM Artist",
		"REPLACE INTO Artist VALUES (1, 'a', 'b')",
		"PRAGMA table_info(Artist)",
		"SET autocommit = 0",
		"(DELETE FROM Artist)",
		"42",
		`SELECT 'x\', ArtistId FROM Tracks; DELETE FROM Tracks --'`,
		`SELECT 'x\'; DROP TABLE Artist; SELECT '`,
		`SELECT 'x\', 1 FROM Artist WHERE Name = ' DELETE FROM Tracks'`,
		"SELECT 1 # ; DELETE FROM Tracks",
	} {
		err := guard.Check(sql)
		assert.ErrorIs(t, err, sqlguard.ErrRejected, sql)
	}
}

func TestGuardRejectionNamesKeyword(t *testing.T) {
	err := sqlguard.New().Check("SELECT 1; DROP TABLE Artist")
	assert.ErrorContains(t, err, "multiple statements")

	err = sqlguard.New().Check("ALTER TABLE Artist ADD COLUMN x INT")
	assert.ErrorContains(t, err, "ALTER statements are not allowed")

	err = sqlguard.New().Check("SELECT * FROM Artist WHERE 1 = 1 UNION SELECT * FROM Artist FOR UPDATE")
	assert.ErrorContains(t, err, "keyword UPDATE is not allowed")
}

func TestClean(t *testing.T) {
	assert.Equal(t, "SELECT 1", sqlguard.Clean("  SELECT 1 ;;\n"))
	assert.Equal(t, "SELECT 1", sqlguard.Clean("SELECT 1"))
}

func TestGuardBackslashCannotHideStatement(t *testing.T) {
	err := sqlguard.New().Check(`SELECT 'x\', ArtistId FROM Tracks; DELETE FROM Tracks --'`)
	assert.ErrorIs(t, err, sqlguard.ErrRejected)
	assert.ErrorContains(t, err, "multiple statements")
}
