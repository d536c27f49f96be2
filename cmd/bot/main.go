package main

import (
	"context"
	"gemini-rotator/internal/bot"
	"gemini-rotator/internal/config"
	"gemini-rotator/internal/db"
	"gemini-rotator/internal/i18n"
	"gemini-rotator/internal/knowledge"
	"gemini-rotator/internal/metrics"
	"gemini-rotator/internal/rotationlog"
	"gemini-rotator/pkg/gemini"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

func main() {
	log.Println("Starting bot...")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.New(cfg.BotDBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	bundle, err := i18n.NewBundle()
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}

	fileSink := rotationlog.NewFileSink(cfg.RotationLogFile)
	log.Printf("Writing key rotation log to %s", fileSink.Path())

	metrics.Init()
	if cfg.MetricsAddr != "" {
		go func() {
			log.Printf("Serving metrics on %s", cfg.MetricsAddr)
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	factory := gemini.NewGenAIFactory(gemini.ClientConfig{
		Model:          cfg.Model,
		EmbeddingModel: cfg.EmbeddingModel,
		VertexAI:       cfg.VertexAI,
		Version:        cfg.Version,
	})
	rotator, err := gemini.NewRotatingGenerator(cfg.GeminiAPIKeys, factory,
		gemini.WithLogSink(rotationlog.Multi{fileSink, database}),
		gemini.WithObserver(metrics.NewRecorder()),
	)
	if err != nil {
		log.Fatalf("Failed to create Gemini generator: %v", err)
	}
	log.Printf("Gemini generator ready with %d API key(s)", rotator.Keys().Count())

	dbLog := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+cfg.DeviceDBPath+"?_foreign_keys=on", dbLog)
	if err != nil {
		log.Fatalf("Failed to create SQL store: %v", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		log.Fatalf("Failed to get first device: %v", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)

	handler := &bot.BotHandler{
		Client:             client,
		DB:                 database,
		Bundle:             bundle,
		Gemini:             gemini.New(rotator),
		Knowledge:          knowledge.Load(cfg.KnowledgeFile),
		KnowledgeEnabled:   cfg.KnowledgeEnabled,
		HistoryTokenBudget: cfg.HistoryTokenBudget,
	}
	client.AddEventHandler(handler.EventHandler)

	if client.Store.ID == nil {
		qrChan, _ := client.GetQRChannel(ctx)
		if err := client.Connect(); err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				log.Println("QR code:", evt.Code)
			} else {
				log.Printf("Login event: %s", evt.Event)
			}
		}
	} else {
		if err := client.Connect(); err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		log.Println("Successfully connected to WhatsApp")
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	client.Disconnect()
	log.Println("Bot shut down gracefully")
}
