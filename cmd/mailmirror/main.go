package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailmirror/internal/api"
	"mailmirror/internal/config"
	"mailmirror/internal/database"
	"mailmirror/internal/graph"
	"mailmirror/internal/repository"
	"mailmirror/internal/services"
	"mailmirror/internal/utils"
)

func main() {
	mainLogger := utils.NewLogger("Main")
	mainLogger.Info("Starting mailmirror service")

	// Load configuration
	cfg := config.Load()

	// Initialize database
	dbConfig := database.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}
	if err := database.Initialize(dbConfig); err != nil {
		mainLogger.Error("Failed to initialize database: %v", err)
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	db := database.GetDB()

	// Initialize repositories
	bindingRepo := repository.NewBindingRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)

	// Initialize the Graph client
	graphClient, err := graph.NewClient(graph.Config{
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		TenantID:     cfg.Graph.TenantID,
		RedirectURI:  cfg.Graph.RedirectURI,
		BaseURL:      cfg.Graph.BaseURL,
		Instance:     cfg.Graph.Instance,
		ProxyURL:     cfg.Graph.ProxyURL,
		Timeout:      cfg.Graph.HTTPTimeout,
		RateLimit:    cfg.Graph.RateLimit,
	})
	if err != nil {
		mainLogger.Error("Failed to create Graph client: %v", err)
		log.Fatalf("Failed to create Graph client: %v", err)
	}

	// Initialize services
	tokenCipher, err := services.NewTokenCipher(cfg.Encryption.Secret)
	if err != nil {
		mainLogger.Error("Failed to initialize token cipher: %v", err)
		log.Fatalf("Failed to initialize token cipher: %v", err)
	}
	if cfg.Encryption.Secret == "" {
		mainLogger.Warn("TOKEN_ENCRYPTION_SECRET not set, tokens will be stored in plaintext")
	}

	tokenService := services.NewTokenService(bindingRepo, graphClient, tokenCipher)
	bindingService := services.NewBindingService(bindingRepo, messageRepo, graphClient, tokenService, tokenCipher, cfg.Sync.DefaultIntervalMinutes)
	contentResolver := services.NewContentResolver(messageRepo, attachmentRepo, graphClient, tokenService)
	syncState := services.NewSyncStateService(bindingRepo)
	syncEngine := services.NewDeltaSyncEngine(bindingRepo, messageRepo, attachmentRepo, graphClient, tokenService, contentResolver,
		cfg.Sync.FullSyncDefaultCount, cfg.Sync.FullSyncMaxCount)
	syncService := services.NewSyncService(bindingRepo, syncState, syncEngine)
	remoteActions := services.NewRemoteActions(messageRepo, graphClient, tokenService)
	messageService := services.NewMessageService(messageRepo, attachmentRepo, bindingService, contentResolver, remoteActions)

	// Start the background auto-sync scheduler
	scheduler := services.NewSyncScheduler(bindingRepo, syncEngine, syncState,
		cfg.Sync.SchedulerCheckInterval, cfg.Sync.SchedulerStartupDelay)
	if err := scheduler.Start(); err != nil {
		mainLogger.Warn("Failed to start sync scheduler: %v", err)
	}

	// Initialize API handlers and router
	bindingHandler := api.NewBindingHandler(bindingService, syncService)
	messageHandler := api.NewMessageHandler(messageService, remoteActions, bindingService)
	router := api.NewRouter(bindingHandler, messageHandler)

	srv := &http.Server{
		Addr:    cfg.ServerAddress(),
		Handler: router,
	}

	// Setup graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		mainLogger.Info("Server is running on http://%s", cfg.ServerAddress())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mainLogger.Error("Server failed to start: %v", err)
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-stop
	mainLogger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mainLogger.Info("Stopping sync scheduler...")
	scheduler.Stop()

	mainLogger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(ctx); err != nil {
		mainLogger.Error("Server forced to shutdown: %v", err)
	}

	mainLogger.Info("Shutdown complete")
}
