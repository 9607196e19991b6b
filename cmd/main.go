package main

import (
	"fmt"
	"os"
	"time"

	redisclient "github.com/walehn/reader-study-backend/internal/clients/redis"
	"github.com/walehn/reader-study-backend/internal/db"
	httpserver "github.com/walehn/reader-study-backend/internal/http"
	httpH "github.com/walehn/reader-study-backend/internal/http/handlers"
	httpMW "github.com/walehn/reader-study-backend/internal/http/middleware"
	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/repos"
	"github.com/walehn/reader-study-backend/internal/services"
	"github.com/walehn/reader-study-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 604800, log)
	listenAddr := utils.GetEnv("LISTEN_ADDR", ":8000", log)

	// Database
	dbService, err := db.New(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err = dbService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := dbService.DB()

	// Redis (optional)
	cache, err := redisclient.NewCache(log)
	if err != nil {
		log.Warn("Redis init failed, continuing without cache", "error", err)
		cache = nil
	}

	// Repos
	log.Info("Setting up Repos from main...")
	readerRepo := repos.NewReaderRepo(theDB, log)
	readerTokenRepo := repos.NewReaderTokenRepo(theDB, log)
	configRepo := repos.NewStudyConfigRepo(theDB, log)
	sessionRepo := repos.NewStudySessionRepo(theDB, log)
	progressRepo := repos.NewSessionProgressRepo(theDB, log)
	resultRepo := repos.NewStudyResultRepo(theDB, log)
	auditRepo := repos.NewAuditLogRepo(theDB, log)

	// Services
	log.Info("Setting up Services from main...")
	auditService := services.NewAuditService(log, auditRepo)
	authService := services.NewAuthService(
		theDB, log, readerRepo, readerTokenRepo, auditRepo,
		jwtSecretKey,
		time.Duration(accessTokenTTL)*time.Second,
		time.Duration(refreshTokenTTL)*time.Second,
	)
	configService := services.NewStudyConfigService(theDB, log, configRepo, auditRepo)
	caseService := services.NewCaseService(log, configService, cache)
	volumeService := services.NewVolumeService(log, caseService, cache)
	sessionService := services.NewStudySessionService(
		theDB, log, sessionRepo, progressRepo, readerRepo, auditRepo, configService,
	)
	resultService := services.NewStudyResultService(
		theDB, log, resultRepo, sessionRepo, auditRepo, configService,
	)

	// Handlers
	log.Info("Setting up Handlers from main...")
	authMiddleware := httpMW.NewAuthMiddleware(log, authService)
	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:            log,
		AuthMiddleware: authMiddleware,
		AuthHandler:    httpH.NewAuthHandler(authService),
		ConfigHandler:  httpH.NewConfigHandler(configService, auditService),
		CaseHandler:    httpH.NewCaseHandler(caseService, volumeService, configService),
		SessionHandler: httpH.NewSessionHandler(sessionService, caseService),
		StudyHandler:   httpH.NewStudyHandler(resultService),
		AuditHandler:   httpH.NewAuditHandler(auditService),
		HealthHandler:  httpH.NewHealthHandler(),
	})

	log.Info("Starting HTTP server", "addr", listenAddr)
	if err := server.Run(listenAddr); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
