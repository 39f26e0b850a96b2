package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"sql-chat/cmd"
	"sql-chat/internal/auth"
	"sql-chat/internal/chat"
	"sql-chat/internal/config"
	"sql-chat/internal/sqldb"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type connectFlags struct {
	driver   string
	host     string
	port     string
	user     string
	database string
}

func (f *connectFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.driver, "driver", "", "override DB_DRIVER")
	c.Flags().StringVar(&f.host, "host", "", "override HOST")
	c.Flags().StringVar(&f.port, "port", "", "override PORT")
	c.Flags().StringVar(&f.user, "user", "", "override DB_USER")
	c.Flags().StringVar(&f.database, "database", "", "override DATABASE")
}

func (f *connectFlags) params() sqldb.ConnectionParams {
	return sqldb.ConnectionParams{Driver: f.driver, Host: f.host, Port: f.port, User: f.user, Database: f.database}
}

// setup loads the env file and config and starts logging. The returned
// function must be deferred.
func setup(ctx context.Context) (*config.Config, func(), error) {
	if err := cmd.LoadEnv(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	shutdown, err := cmd.InitObservability(ctx, cfg, level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, shutdown, nil
}

func connect(ctx context.Context, cfg *config.Config, flags *connectFlags) (*sqldb.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	return sqldb.Connect(ctx, cfg.Database.Params().Merge(flags.params()), sqldb.WithSampleRows(cfg.SchemaSampleRows))
}

func newAskCmd() *cobra.Command {
	var flags connectFlags
	var showSQL bool

	c := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question, or start an interactive chat when none is given",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			cfg, shutdown, err := setup(ctx)
			if err != nil {
				return err
			}
			defer shutdown()

			pipeline, err := cmd.NewPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			handle, err := connect(ctx, cfg, &flags)
			if err != nil {
				return err
			}
			defer handle.Close() //nolint:errcheck

			stages := 4
			if !cfg.SQLGuard {
				stages = 3
			}
			t := &terminalChat{
				out:      c.OutOrStdout(),
				pipeline: pipeline,
				db:       handle,
				history:  chat.NewHistory(),
				stages:   stages,
				timeout:  cfg.RequestTimeout,
				showSQL:  showSQL,
			}

			if len(args) > 0 {
				return t.ask(ctx, strings.Join(args, " "))
			}
			return t.repl(ctx, c.InOrStdin())
		},
	}
	flags.register(c)
	c.Flags().BoolVar(&showSQL, "show-sql", true, "print the generated SQL and raw result")
	return c
}

type terminalChat struct {
	out      io.Writer
	pipeline *chat.Pipeline
	db       chat.Database
	history  *chat.History
	stages   int
	timeout  time.Duration
	showSQL  bool
}

// ask runs one turn against the in-memory history.
func (t *terminalChat) ask(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return chat.ErrEmptyQuestion
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	bar := progressbar.NewOptions(t.stages,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("⏳ thinking"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	observe := func(event chat.StageEvent) {
		bar.Describe(string(event.Stage))
		_ = bar.Add(1)
	}

	ex, err := t.pipeline.Exchange(ctx, t.db, t.history, question, observe)
	_ = bar.Finish()
	t.history.Record(ex)

	if t.showSQL && ex.Reply.SQL != "" {
		fmt.Fprintf(t.out, "SQL: %s\n", ex.Reply.SQL)
		if ex.Reply.Rows != "" {
			fmt.Fprintf(t.out, "%s\n", strings.TrimRight(ex.Reply.Rows, "\n"))
		}
	}
	fmt.Fprintln(t.out, ex.Reply.Answer)
	return err
}

// repl keeps asking until in is exhausted. Failed turns are reported and the
// chat continues.
func (t *terminalChat) repl(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(t.out, chat.Greeting)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(t.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(t.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := t.ask(ctx, line); err != nil {
			slog.Debug("turn failed", "error", err)
		}
	}
}

func newSchemaCmd() *cobra.Command {
	var flags connectFlags

	c := &cobra.Command{
		Use:   "schema",
		Short: "Print the schema snapshot the model sees",
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			cfg, shutdown, err := setup(ctx)
			if err != nil {
				return err
			}
			defer shutdown()

			handle, err := connect(ctx, cfg, &flags)
			if err != nil {
				return err
			}
			defer handle.Close() //nolint:errcheck

			schema, err := handle.Schema(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), schema)
			return nil
		},
	}
	flags.register(c)
	return c
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for the credentials file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				fmt.Fprint(os.Stderr, "Password: ")
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return fmt.Errorf("error reading password: %w", err)
				}
				password = string(raw)
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), hash)
			return nil
		},
	}
}
