package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sql-chat/cmd"
	"sql-chat/internal/api"
	"sql-chat/internal/auth"
	"sql-chat/internal/chat"
	"sql-chat/internal/config"
	"sql-chat/internal/database"
	"sql-chat/internal/web"
)

func main() {
	log.Println("Starting SQL chat server...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	ctx := context.Background()

	shutdown, err := cmd.InitObservability(ctx, cfg, slog.LevelInfo)
	if err != nil {
		log.Fatalf("error initializing logging: %v", err)
	}
	defer shutdown()

	db, err := database.NewDatabase(cfg.AppDatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	authCfg, err := auth.LoadConfig(cfg.AuthConfigPath)
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	pipeline, err := cmd.NewPipeline(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	manager := chat.NewChatSessionManager(db, pipeline, chat.ManagerConfig{
		Defaults:   cfg.Database.Params(),
		CacheSize:  cfg.SessionCacheSize,
		SampleRows: cfg.SchemaSampleRows,
	})
	defer manager.Close()

	r := api.NewRouter(auth.NewAuthenticator(authCfg), manager, api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		UI:             web.Handler(),
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("api server listening", "port", cfg.APIPort, "default_database", cfg.Database.Params().Redacted().URI())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("could not start server", "port", cfg.APIPort, "error", err)
		return
	}

	slog.Info("server stopped")
}
