package sqldb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/tools/sqldatabase"
	"github.com/tmc/langchaingo/tools/sqldatabase/mysql"
	"github.com/tmc/langchaingo/tools/sqldatabase/postgresql"
	"github.com/tmc/langchaingo/tools/sqldatabase/sqlite3"
)

const (
	mysqlEngine    = mysql.EngineName
	postgresEngine = postgresql.EngineName
	sqliteEngine   = sqlite3.EngineName

	DefaultSampleRows = 3
)

// Tables that are bookkeeping of the engine itself and never part of the
// schema shown to the model.
var ignoredTables = map[string]struct{}{
	"sqlite_sequence": {},
}

type options struct {
	sampleRows int
}

type Option func(*options)

// WithSampleRows sets how many rows per table are appended to the schema
// snapshot. Zero disables sample rows.
func WithSampleRows(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.sampleRows = n
		}
	}
}

// Handle is a live connection to the database a session chats with.
type Handle struct {
	db     *sqldatabase.SQLDatabase
	params ConnectionParams
}

// Connect opens a handle and lists the tables, which fails fast on bad
// credentials or an unreachable host.
func Connect(ctx context.Context, params ConnectionParams, opts ...Option) (*Handle, error) {
	o := options{sampleRows: DefaultSampleRows}
	for _, opt := range opts {
		opt(&o)
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	driver, _ := NormalizeDriver(params.Driver)
	params.Driver = driver

	engineName, dsn, err := params.engineDSN()
	if err != nil {
		return nil, err
	}

	type result struct {
		db  *sqldatabase.SQLDatabase
		err error
	}
	done := make(chan result, 1)
	go func() {
		db, err := sqldatabase.NewSQLDatabaseWithDSN(engineName, dsn, ignoredTables)
		done <- result{db: db, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.db != nil {
				late.db.Close() //nolint:errcheck
			}
		}()
		return nil, fmt.Errorf("connecting to %s: %w", params.Redacted().URI(), ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", params.Redacted().URI(), res.err)
	}

	res.db.SampleRowsNumber = o.sampleRows

	slog.Info("connected to database", "driver", driver, "host", params.Host, "database", params.Database, "tables", len(res.db.TableNames()))
	return &Handle{db: res.db, params: params}, nil
}

func (h *Handle) Dialect() string {
	return h.db.Dialect()
}

func (h *Handle) Tables() []string {
	return h.db.TableNames()
}

// Params returns the connection parameters without the password.
func (h *Handle) Params() ConnectionParams {
	return h.params.Redacted()
}

// Schema returns a fresh schema snapshot: the CREATE TABLE statement of every
// table followed by a few sample rows.
func (h *Handle) Schema(ctx context.Context) (string, error) {
	info, err := h.db.TableInfo(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("error reading schema: %w", err)
	}
	return info, nil
}

// Run executes query and renders the result as a tab separated header line
// followed by one line per row.
func (h *Handle) Run(ctx context.Context, query string) (string, error) {
	return h.db.Query(ctx, query)
}

func (h *Handle) Close() error {
	return h.db.Close()
}
