// cmd/server/main.go
package main

import (
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/sozercan/patentgpt/internal/analyzer"
	"github.com/sozercan/patentgpt/internal/config"
	"github.com/sozercan/patentgpt/internal/epo"
	"github.com/sozercan/patentgpt/internal/llm"
	"github.com/sozercan/patentgpt/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Fatalf("failed to load .env file: %v", err)
		}
		slog.Debug("no .env file found, using process environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	setupLogging(cfg.Log)

	opsClient, err := epo.NewClient(cfg.EPO)
	if err != nil {
		log.Fatalf("failed to create EPO OPS client: %v", err)
	}

	toolkit, err := epo.NewToolkit(opsClient)
	if err != nil {
		log.Fatalf("failed to create patent toolkit: %v", err)
	}

	runner, err := llm.NewOpenAI(&cfg.OpenAI)
	if err != nil {
		log.Fatalf("failed to create LLM runner: %v", err)
	}

	srv := server.New(*cfg, analyzer.New(toolkit, runner, *cfg))
	if err := srv.Run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func setupLogging(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
