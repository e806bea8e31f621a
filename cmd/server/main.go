package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sciphi-chat/internal/api"
	"sciphi-chat/internal/chat"
	"sciphi-chat/internal/client"
	"sciphi-chat/internal/completions"
	"sciphi-chat/internal/config"
	"sciphi-chat/internal/database"
	"sciphi-chat/internal/storage"
	"sciphi-chat/internal/telemetry"
	pkgapi "sciphi-chat/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func loadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	if err := godotenv.Load(configPath); err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func createCompletionService(cfg config.Config, db *gorm.DB) *completions.Service {
	var recorder *completions.Recorder
	if cfg.RecordCompletions {
		recorder = completions.NewRecorder(db)
	}

	if cfg.SciPhiAPIKey == "" {
		slog.Warn("SCIPHI_API_KEY is not set, completion requests will fail")
		return completions.NewService(nil, recorder)
	}

	provider, err := completions.NewProvider(completions.ProviderConfig{
		Client:  cfg.LLMClient,
		APIKey:  cfg.SciPhiAPIKey,
		BaseURL: cfg.SciPhiAPIURL,
	})
	if err != nil {
		log.Fatalf("could not create completion provider: %v", err)
	}

	return completions.NewService(provider, recorder)
}

// createKVStores returns the persistent store of each workspace. Workspaces
// share one table or bucket and are separated by client id.
func createKVStores(ctx context.Context, cfg config.Config, db *gorm.DB) func(clientID uuid.UUID) storage.KVStore {
	if cfg.KVBackend != config.KVBackendS3 {
		return func(clientID uuid.UUID) storage.KVStore {
			return storage.NewDBKVStore(db, clientID.String())
		}
	}

	s3Store, err := storage.NewS3KVStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	}, cfg.S3Bucket, "workspaces")
	if err != nil {
		log.Fatalf("could not create s3 kv store: %v", err)
	}
	if err := s3Store.CreateBucket(ctx); err != nil {
		log.Fatalf("could not create bucket %s: %v", cfg.S3Bucket, err)
	}

	return func(clientID uuid.UUID) storage.KVStore {
		return s3Store.WithPrefix(clientID.String())
	}
}

func createServer(cfg config.Config, completionService *completions.Service, workspaces *chat.WorkspaceCache, starterPrompts []pkgapi.StarterPrompt) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300, // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	completionsHandler := api.NewCompletionsService(completionService)
	workspaceHandler := api.NewWorkspaceService(workspaces, starterPrompts)

	r.Route("/api", func(r chi.Router) {
		completionsHandler.AddRoutes(r)
		workspaceHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	loadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	logFile, err := telemetry.InitLogger(cfg.LogPath())
	if err != nil {
		log.Fatalf("error initializing logger: %v", err)
	}
	defer logFile.Close()

	if cfg.Telemetry {
		cleanup, err := telemetry.InitTelemetry(context.Background(), filepath.Join(cfg.Root, "telemetry"))
		if err != nil {
			log.Fatalf("error initializing telemetry: %v", err)
		}
		defer cleanup()
	}

	slog.Info("starting server", "root", cfg.Root, "port", cfg.Port, "kv_backend", cfg.KVBackend, "llm_client", cfg.LLMClient, "model", cfg.GptVersion)

	db, err := database.NewDatabase(cfg.DatabaseURL, cfg.SQLitePath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	completionService := createCompletionService(cfg, db)

	var backend chat.Backend = completionService
	if cfg.CompletionsURL != "" {
		slog.Info("using remote completions endpoint", "url", cfg.CompletionsURL)
		backend = client.NewCompletionsClient(cfg.CompletionsURL, cfg.RequestTimeout)
	}

	kvStore := createKVStores(context.Background(), cfg, db)
	workspaces := chat.NewWorkspaceCache(cfg.WorkspaceCacheSize, func(ctx context.Context, clientID uuid.UUID) (*chat.Workspace, error) {
		return chat.NewWorkspace(ctx, clientID, kvStore(clientID), storage.NewMemoryKVStore(), backend, cfg.GptVersion)
	})

	starterPrompts, err := chat.LoadStarterPrompts(cfg.StarterPromptsFile)
	if err != nil {
		log.Fatalf("could not load starter prompts: %v", err)
	}

	server := createServer(cfg, completionService, workspaces, starterPrompts)

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
