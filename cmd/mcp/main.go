package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/uk-legal-assistant/internal/adapters/mcp"
	"github.com/kirillkom/uk-legal-assistant/internal/bootstrap"
	"github.com/kirillkom/uk-legal-assistant/internal/config"
	"github.com/kirillkom/uk-legal-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	core, err := bootstrap.NewCore(cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer core.Close()

	tools := mcpadapter.NewTools(core.Answerer(nil), core.Extractor, core.Classifier, core.Analyzer, cfg.UploadMaxFileBytes)
	if err := server.ServeStdio(tools.Server(version)); err != nil {
		slog.Error("mcp_server_failed", "error", err.Error())
	}
}
