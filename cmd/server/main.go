package main

import (
	"context"
	"log"
	"os"

	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/handler"
	"github.com/haatos/securegate/internal/security"
	"github.com/haatos/securegate/internal/service"
	"github.com/haatos/securegate/internal/settings"
	"github.com/haatos/securegate/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	_ "modernc.org/sqlite"
)

func main() {
	internal.InitializeConfiguration()
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()
	hashKey := security.NewHashKey()
	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, internal.MigrationsDir)

	if err := os.MkdirAll(settings.Settings.RunsDir, 0o755); err != nil {
		log.Fatal(err)
	}

	cron := service.NewCron()
	defer cron.Shutdown()

	agentStore := store.NewAgentSQLiteStore(rdb, rwdb)
	pipelineStore := store.NewPipelineSQLiteStore(rdb, rwdb)
	runStore := store.NewRunSQLiteStore(rdb, rwdb)
	jobStore := store.NewJobSQLiteStore(rdb, rwdb)
	cacheStore := store.NewCacheSQLiteStore(rdb, rwdb)
	artifactStore := store.NewArtifactSQLiteStore(rdb, rwdb)
	secretStore := store.NewSecretSQLiteStore(rdb, rwdb)
	apiKeyStore := store.NewAPIKeySQLiteStore(rdb, rwdb)
	aesEncrypter := security.NewAESEncrypter(hashKey)

	agentSvc := service.NewAgentService(agentStore, aesEncrypter)
	if _, err := agentSvc.EnsureControllerAgent(context.Background()); err != nil {
		log.Fatal(err)
	}
	secretSvc := service.NewSecretService(secretStore, aesEncrypter)
	cacheSvc := service.NewCacheService(cacheStore)
	artifactSvc := service.NewArtifactService(artifactStore)
	apiKeySvc := service.NewAPIKeyService(apiKeyStore, service.NewUUIDGen())
	pipelineSvc := service.NewPipelineService(
		pipelineStore,
		runStore,
		jobStore,
		agentStore,
		cacheSvc,
		artifactSvc,
		secretSvc,
		cron,
		aesEncrypter,
		settings.Settings.RunsDir,
	)
	if err := pipelineSvc.InitializeRunQueues(context.Background()); err != nil {
		log.Fatal(err)
	}
	if err := pipelineSvc.SchedulePipelines(context.Background()); err != nil {
		log.Fatal(err)
	}
	initializeAPIKey(apiKeySvc)

	service.ScheduleCachePrune(cron, cacheStore)
	cron.Start()

	e := setupEcho()
	pipelineH := handler.NewPipelineHandler(pipelineSvc, apiKeySvc)
	handler.SetupWebhookRoutes(e, pipelineH)

	api := e.Group("/api", handler.APIKeyAuth(apiKeySvc))
	handler.SetupPipelineRoutes(api, pipelineH)
	handler.SetupRunRoutes(api, pipelineH)
	handler.SetupArtifactRoutes(api, handler.NewArtifactHandler(artifactSvc))
	handler.SetupAgentRoutes(api, handler.NewAgentHandler(agentSvc))
	handler.SetupSecretRoutes(api, handler.NewSecretHandler(secretSvc))
	handler.SetupAPIKeyRoutes(api, handler.NewAPIKeyHandler(apiKeySvc))

	internal.GracefulShutdown(e, settings.Settings.Port)
}

// initializeAPIKey creates and prints the first key, so a fresh install
// can reach the API at all.
func initializeAPIKey(apiKeySvc *service.APIKeyService) {
	keys, err := apiKeySvc.ListAPIKeys(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	if len(keys) > 0 {
		return
	}
	key, err := apiKeySvc.CreateAPIKey(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("created initial api key: %s\n", key.Value)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.CORSWithConfig(internal.GetCORSConfig()),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	return e
}
