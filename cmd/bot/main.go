package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/andestrans/cargobot/internal/classifier"
	"github.com/andestrans/cargobot/internal/export"
	"github.com/andestrans/cargobot/internal/llm"
	"github.com/andestrans/cargobot/internal/orchestrator"
	"github.com/andestrans/cargobot/internal/storage"
	"github.com/andestrans/cargobot/internal/transport/telegram"
	"github.com/andestrans/cargobot/internal/transport/webhook"
	"github.com/andestrans/cargobot/internal/workflow"
	"github.com/andestrans/cargobot/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the model call chain
	client := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.MaxTokens, logger)
	invoker := llm.NewInvoker(client, llm.InvokerConfig{
		PrimaryModel:   cfg.OpenAI.Model,
		FallbackModels: []string{cfg.OpenAI.FallbackModel},
		MaxRetries:     cfg.OpenAI.MaxRetries,
		Temperature:    float32(cfg.OpenAI.Temperature),
	}, logger)
	loop := llm.NewLoop(invoker, logger)

	// Initialize the vertical flows
	verticals := workflow.NewRegistry(&workflow.Deps{
		Loop:      loop,
		Exporter:  export.NewLogExporter(logger),
		Directory: loadDirectory(cfg.CRM.DirectoryFile, logger),
		Retriever: loadRetriever(cfg.Assistant.KnowledgeFile, logger),
		Logger:    logger,
	})
	cls := classifier.NewClassifier(loop, cfg.Classifier.Threshold, logger)

	engine := orchestrator.New(store, verticals, cls, orchestrator.Config{
		Mode:                    cfg.Router.Mode,
		MaxUnclassifiedMessages: cfg.Classifier.MaxUnclassifiedMessages,
	}, logger)

	switch cfg.Router.Transport {
	case "telegram":
		bot, err := telegram.New(cfg.Telegram.Token, engine, logger)
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}
		if err := bot.Start(); err != nil {
			logger.Fatal("Bot error", zap.Error(err))
		}
	default:
		gateway := webhook.NewGateway(cfg.WhatsApp.ServerURL, cfg.WhatsApp.APIKey, cfg.WhatsApp.InstanceName, logger)
		handler := webhook.NewHandler(engine, store, gateway, cfg.WhatsApp.BucketURL, logger)

		mux := http.NewServeMux()
		mux.Handle(cfg.Server.WebhookPath, handler)
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "ok")
		})

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("Starting webhook server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}
}

// loadDirectory reads the tax id directory. Returns nil when no file is
// configured; the lead workflow then treats every tax id as unknown.
func loadDirectory(path string, logger *zap.Logger) export.Directory {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("Failed to read directory file", zap.Error(err), zap.String("path", path))
	}
	var entries map[string]map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Fatal("Failed to parse directory file", zap.Error(err), zap.String("path", path))
	}
	logger.Info("Loaded tax id directory", zap.Int("entries", len(entries)))
	return &export.StaticDirectory{Entries: entries}
}

// loadRetriever reads the company knowledge document for the assistant.
// Returns nil when no file is configured; the assistant then answers
// without retrieval context.
func loadRetriever(path string, logger *zap.Logger) workflow.Retriever {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("Failed to read knowledge file", zap.Error(err), zap.String("path", path))
	}
	return &workflow.StaticRetriever{Document: string(raw)}
}
