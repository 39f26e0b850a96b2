package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sql-chat/internal/metrics"
	"sql-chat/internal/sqlguard"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "sql-chat/internal/chat"

type Question string

type GeneratedSQL struct {
	Question Question
	SQL      string
}

type QueryResult struct {
	GeneratedSQL
	Rows string
}

type Answer struct {
	QueryResult
	Text string
}

// Database is what the pipeline needs from a connection.
type Database interface {
	Schema(ctx context.Context) (string, error)
	Run(ctx context.Context, query string) (string, error)
}

// Validator decides whether a generated statement may be executed.
type Validator interface {
	Check(sql string) error
}

type Stage string

const (
	StageGenerateSQL Stage = "generate_sql"
	StageValidate    Stage = "validate_sql"
	StageExecute     Stage = "execute_sql"
	StageRespond     Stage = "respond"
)

// StageEvent is emitted after each stage completes successfully.
type StageEvent struct {
	Stage  Stage
	SQL    string
	Rows   string
	Answer string
}

type Observer func(StageEvent)

// StageError records which stage of a turn failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Pipeline struct {
	model       llms.Model
	validator   Validator
	temperature float64
	durations   metric.Float64Histogram
}

type PipelineOption func(*Pipeline)

func WithTemperature(t float64) PipelineOption {
	return func(p *Pipeline) {
		p.temperature = t
	}
}

// WithValidator replaces the default read-only statement guard. A nil
// validator lets every statement through.
func WithValidator(v Validator) PipelineOption {
	return func(p *Pipeline) {
		p.validator = v
	}
}

func NewPipeline(model llms.Model, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{model: model, validator: sqlguard.New()}
	for _, opt := range opts {
		opt(p)
	}

	durations, err := otel.Meter(instrumentationName).Float64Histogram(
		"sqlchat.stage.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of each pipeline stage."),
	)
	if err != nil {
		slog.Warn("unable to create stage duration histogram", "error", err)
	}
	p.durations = durations
	return p
}

func (p *Pipeline) stage(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	metrics.ObserveStage(string(stage), err, elapsed)
	if p.durations != nil {
		p.durations.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", string(stage))))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

func (p *Pipeline) complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt, llms.WithTemperature(p.temperature))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLLM, err)
	}
	return out, nil
}

// GenerateSQL asks the model for a statement answering q. The history is
// expected to already contain q as its last human turn.
func (p *Pipeline) GenerateSQL(ctx context.Context, db Database, history *History, q Question) (GeneratedSQL, error) {
	var gen GeneratedSQL
	err := p.stage(ctx, StageGenerateSQL, func(ctx context.Context) error {
		schema, err := db.Schema(ctx)
		if err != nil {
			return err
		}
		prompt, err := RenderSQLPrompt(schema, history, q)
		if err != nil {
			return err
		}
		out, err := p.complete(ctx, prompt)
		if err != nil {
			return err
		}
		query := stripMarkdownSQL(out)
		if query == "" {
			return fmt.Errorf("%w: model returned an empty statement", ErrLLM)
		}
		gen = GeneratedSQL{Question: q, SQL: query}
		return nil
	})
	return gen, err
}

func (p *Pipeline) Validate(ctx context.Context, gen GeneratedSQL) error {
	if p.validator == nil {
		return nil
	}
	return p.stage(ctx, StageValidate, func(context.Context) error {
		if err := p.validator.Check(gen.SQL); err != nil {
			metrics.IncrementGuardRejections()
			return err
		}
		return nil
	})
}

func (p *Pipeline) Execute(ctx context.Context, db Database, gen GeneratedSQL) (QueryResult, error) {
	var result QueryResult
	err := p.stage(ctx, StageExecute, func(ctx context.Context) error {
		rows, err := db.Run(ctx, sqlguard.Clean(gen.SQL))
		if err != nil {
			return fmt.Errorf("error running query: %w", err)
		}
		result = QueryResult{GeneratedSQL: gen, Rows: rows}
		return nil
	})
	return result, err
}

func (p *Pipeline) Respond(ctx context.Context, db Database, history *History, result QueryResult) (Answer, error) {
	var answer Answer
	err := p.stage(ctx, StageRespond, func(ctx context.Context) error {
		schema, err := db.Schema(ctx)
		if err != nil {
			return err
		}
		prompt, err := RenderResponsePrompt(schema, history, result)
		if err != nil {
			return err
		}
		out, err := p.complete(ctx, prompt)
		if err != nil {
			return err
		}
		answer = Answer{QueryResult: result, Text: strings.TrimSpace(out)}
		return nil
	})
	return answer, err
}

// Run takes a question through every stage. On failure the returned Answer
// holds whatever the completed stages produced.
func (p *Pipeline) Run(ctx context.Context, db Database, history *History, q Question, observe Observer) (Answer, error) {
	if observe == nil {
		observe = func(StageEvent) {}
	}

	gen, err := p.GenerateSQL(ctx, db, history, q)
	if err != nil {
		return Answer{QueryResult: QueryResult{GeneratedSQL: GeneratedSQL{Question: q}}}, err
	}
	observe(StageEvent{Stage: StageGenerateSQL, SQL: gen.SQL})

	partial := Answer{QueryResult: QueryResult{GeneratedSQL: gen}}
	if err := p.Validate(ctx, gen); err != nil {
		return partial, err
	}
	if p.validator != nil {
		observe(StageEvent{Stage: StageValidate, SQL: gen.SQL})
	}

	result, err := p.Execute(ctx, db, gen)
	if err != nil {
		return partial, err
	}
	observe(StageEvent{Stage: StageExecute, SQL: gen.SQL, Rows: result.Rows})

	answer, err := p.Respond(ctx, db, history, result)
	if err != nil {
		return Answer{QueryResult: result}, err
	}
	observe(StageEvent{Stage: StageRespond, SQL: gen.SQL, Rows: result.Rows, Answer: answer.Text})

	return answer, nil
}

// stripMarkdownSQL removes code fences and surrounding quotes that models add
// despite being told not to.
func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	trimmed = strings.TrimPrefix(trimmed, "SQL query:")
	trimmed = strings.TrimSpace(trimmed)
	if len(trimmed) >= 2 && trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	}
	return trimmed
}
