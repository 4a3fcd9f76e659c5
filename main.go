package main

import (
	"log"
	"os"

	api "mailvault-backend/cmd/api"
	authRepo "mailvault-backend/internal/auth/repository"
	authUsecase "mailvault-backend/internal/auth/usecase"
	ingestdomain "mailvault-backend/internal/ingest/domain"
	ingestRepo "mailvault-backend/internal/ingest/repository"
	"mailvault-backend/pkg/config"
	"mailvault-backend/pkg/crypto"
	"mailvault-backend/pkg/database"
	"mailvault-backend/pkg/sse"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewSQLiteConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(&ingestdomain.MessageRecord{}, &ingestdomain.IngestionRun{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Optional at-rest encryption of message bodies
	var cipher *crypto.Cipher
	if cfg.IndexPassphrase != "" {
		cipher, err = crypto.New(cfg.IndexPassphrase, cfg.DataDir)
		if err != nil {
			log.Fatal("Failed to initialize encryption:", err)
		}
		log.Println("Message body encryption enabled")
	}

	// Initialize repositories (dependency injection)
	messageRepo := ingestRepo.NewMessageRepository(db, cipher)
	sessionStore := authRepo.NewSessionStore()

	// Initialize SSE Manager
	sseManager := sse.NewManager()

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(sessionStore, cfg)

	// Initialize HTTP handler
	handler, err := api.NewHandler(authUsecaseInstance, messageRepo, sseManager, cfg)
	if err != nil {
		log.Fatal("Failed to initialize server:", err)
	}
	defer handler.Close()

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	log.Printf("Server starting on port %s", port)
	if err := handler.Start(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
