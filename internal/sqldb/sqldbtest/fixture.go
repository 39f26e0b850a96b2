// Package sqldbtest provides a small music catalog database for tests.
package sqldbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"sql-chat/internal/sqldb"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

var catalogStatements = []string{
	`CREATE TABLE Artist (ArtistId INTEGER PRIMARY KEY, FirstName TEXT NOT NULL, LastName TEXT NOT NULL)`,
	`CREATE TABLE Tracks (TrackId INTEGER PRIMARY KEY, ArtistId INTEGER NOT NULL REFERENCES Artist(ArtistId), Name TEXT NOT NULL)`,
	`INSERT INTO Artist (ArtistId, FirstName, LastName) VALUES
		(1, 'Nina', 'Simone'), (2, 'Miles', 'Davis'), (3, 'John', 'Coltrane'), (4, 'Billie', 'Holiday')`,
	`INSERT INTO Tracks (ArtistId, Name) VALUES
		(1, 'Feeling Good'), (1, 'Sinnerman'), (1, 'I Put a Spell on You'), (1, 'Wild Is the Wind'),
		(2, 'So What'), (2, 'Blue in Green'), (2, 'Freddie Freeloader'),
		(3, 'Giant Steps'), (3, 'Naima'),
		(4, 'Strange Fruit')`,
}

// Catalog creates a sqlite database with Artist and Tracks tables and returns
// the params to connect to it.
func Catalog(t *testing.T) sqldb.ConnectionParams {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range catalogStatements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	return sqldb.ConnectionParams{Driver: sqldb.DriverSQLite, Database: path}
}
