package app

import (
	"context"
	"fmt"
	"time"

	"github.com/lexium-ai/lexium/internal/config"
	"github.com/lexium-ai/lexium/internal/core"
	db "github.com/lexium-ai/lexium/internal/core/database"
	"github.com/lexium-ai/lexium/internal/core/index"
	"github.com/lexium-ai/lexium/internal/core/llm"
	objectclient "github.com/lexium-ai/lexium/internal/core/object-client"
	"github.com/lexium-ai/lexium/internal/ingestion"
	"github.com/lexium-ai/lexium/internal/logger"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Orchestrator *ingestion.Orchestrator
	Publisher    *index.Publisher
	Server       *Server
	Log          *logger.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("object client initialized and ready")

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	runner := ingestion.NewProcessRunner(cfg.PythonBin, cfg.PDFHelperScript, cfg.OCRHelperScript, log)
	dispatcher := ingestion.NewDispatcher(runner, cfg.PDFHelperTimeout, cfg.OCRHelperTimeout, log)
	orchestrator := ingestion.NewOrchestrator(dbClient, objClient, dispatcher, cfg.BucketName, cfg.IngestWorkers, log)

	publisher := index.NewPublisher(dbClient, geminiEmbedder, index.Config{
		TargetTokens: 400,
		BatchSize:    16,
		EmbedDim:     cfg.EmbedDim,
	}, log)

	server := NewServer(cfg, dbClient, objClient, orchestrator, dispatcher, publisher, log)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Orchestrator: orchestrator,
		Publisher:    publisher,
		Server:       server,
		Log:          log,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
