package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"sql-chat/internal/chat"
	"sql-chat/internal/config"
	"sql-chat/internal/llm"
	"sql-chat/internal/telemetry"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if err := LoadEnv(configPath); err != nil {
		log.Fatal(err)
	}
}

// LoadEnv loads variables from path into the environment. An empty path is a
// no-op and variables already set are not overridden.
func LoadEnv(path string) error {
	if path == "" {
		log.Printf("no env file specified, using os.Environ only")
		return nil
	}

	log.Printf("loading env from file %s", path)
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading .env file '%s': %w", path, err)
	}
	return nil
}

// InitObservability sets up logging and tracing from cfg. The returned
// function flushes both and must be called before exit.
func InitObservability(ctx context.Context, cfg *config.Config, level slog.Level) (func(), error) {
	closeLogger, err := telemetry.InitLogger(cfg.LogFile, level)
	if err != nil {
		return nil, err
	}

	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.TraceFile)
	if err != nil {
		closeLogger()
		return nil, err
	}

	return func() {
		shutdownTelemetry()
		closeLogger()
	}, nil
}

// NewPipeline builds the question answering pipeline for the configured model.
func NewPipeline(ctx context.Context, cfg *config.Config) (*chat.Pipeline, error) {
	model, err := llm.New(ctx, cfg.LLM.Options())
	if err != nil {
		return nil, fmt.Errorf("error initializing llm: %w", err)
	}

	opts := []chat.PipelineOption{chat.WithTemperature(cfg.LLM.Temperature)}
	if !cfg.SQLGuard {
		slog.Warn("sql guard disabled, generated statements run unchecked")
		opts = append(opts, chat.WithValidator(nil))
	}

	slog.Info("llm initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return chat.NewPipeline(model, opts...), nil
}
