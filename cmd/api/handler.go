package api

import (
	"log"

	authUsecase "mailvault-backend/internal/auth/usecase"
	ingestDelivery "mailvault-backend/internal/ingest/delivery"
	ingestRepo "mailvault-backend/internal/ingest/repository"
	ingestUsecase "mailvault-backend/internal/ingest/usecase"
	qaDelivery "mailvault-backend/internal/qa/delivery"
	qaUsecase "mailvault-backend/internal/qa/usecase"
	"mailvault-backend/pkg/ai"
	"mailvault-backend/pkg/chroma"
	"mailvault-backend/pkg/config"
	"mailvault-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase   authUsecase.AuthUsecase
	ingestHandler *ingestDelivery.IngestHandler
	qaHandler     *qaDelivery.QAHandler
	settings      *RuntimeSettings
	chromaClient  *chroma.Client
	config        *config.Config
}

func NewHandler(authUc authUsecase.AuthUsecase, messageRepo ingestRepo.MessageRepository, sseManager *sse.Manager, cfg *config.Config) (*Handler, error) {
	settings := NewRuntimeSettings(cfg.OllamaBaseURL, cfg.OllamaModel)

	// Completion service with dynamic Ollama config for the settings API
	aiCfg := ai.DynamicConfig{
		Provider:         ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:     cfg.GeminiApiKey,
		GetOllamaBaseURL: settings.OllamaBaseURL,
		GetOllamaModel:   settings.OllamaModel,
	}
	aiService, err := ai.NewCompletionServiceWithDynamicConfig(aiCfg)
	if err != nil {
		return nil, err
	}
	log.Printf("AI service initialized with provider: %s", cfg.AIProvider)

	// Vector index. The whole pipeline depends on it, so a failure here is
	// fatal rather than a degraded mode.
	chromaClient, err := chroma.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Chroma client initialized successfully")

	orchestrator := ingestUsecase.NewOrchestrator(messageRepo, chromaClient, sseManager, ingestUsecase.Tuning{
		BatchSize:        cfg.BatchSize,
		PageSize:         cfg.PageSize,
		FolderCap:        cfg.DefaultFolderCap,
		IndexingPhaseMin: cfg.IndexingPhaseMin,
	})
	maintenance := ingestUsecase.NewMaintenance(messageRepo, chromaClient)
	qaUc := qaUsecase.NewQAUsecase(chromaClient, messageRepo, aiService)
	headerSearch := qaUsecase.NewHeaderSearch(messageRepo)

	return &Handler{
		authUsecase:   authUc,
		ingestHandler: ingestDelivery.NewIngestHandler(orchestrator, maintenance, sseManager),
		qaHandler:     qaDelivery.NewQAHandler(qaUc, headerSearch),
		settings:      settings,
		chromaClient:  chromaClient,
		config:        cfg,
	}, nil
}

// Close releases the embedding runtime.
func (h *Handler) Close() error {
	return h.chromaClient.Close()
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Setup routes
	SetupRoutes(r, h.authUsecase, h.ingestHandler, h.qaHandler, h.settings)

	return r.Run(addr)
}
