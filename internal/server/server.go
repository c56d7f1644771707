package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"marketbridge/internal/config"
	"marketbridge/internal/domain"
	"marketbridge/internal/marketplace"
	custommiddleware "marketbridge/internal/middleware"
	"marketbridge/internal/repository"
	"marketbridge/internal/service"
	"marketbridge/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	migrations service.MigrationService
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB, redisClient *redis.Client) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.CORSOrigins, cfg.Server.Env == "development"))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	productRepo := repository.NewProductRepository(db)
	mappingRepo := repository.NewMappingRepository(db)
	migrationRepo := repository.NewMigrationRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)

	// Initialize marketplace clients
	sourceClient := marketplace.NewSourceClient(
		cfg.Marketplaces.Source,
		marketplace.ResolveCredentials(cfg.Marketplaces.Source, credentialRepo, domain.MarketplaceSource),
		logger,
	)
	targetClient := marketplace.NewTargetClient(
		cfg.Marketplaces.Target,
		marketplace.ResolveCredentials(cfg.Marketplaces.Target, credentialRepo, domain.MarketplaceTarget),
		logger,
	)

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, cfg.JWT)
	mappingService := service.NewMappingService(mappingRepo, logger)
	migrationService := service.NewMigrationService(migrationRepo, productRepo, mappingService, sourceClient, targetClient, logger)
	productService := service.NewProductService(productRepo, mappingRepo, migrationRepo, credentialRepo, sourceClient, targetClient, logger)
	marketplaceService := service.NewMarketplaceService(credentialRepo, sourceClient, targetClient, logger)

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, logger)
	productHandler := transport.NewProductHandler(productService, logger)
	mappingHandler := transport.NewMappingHandler(mappingService, logger)
	migrationHandler := transport.NewMigrationHandler(migrationService, logger)
	marketplaceHandler := transport.NewMarketplaceHandler(marketplaceService, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminMiddleware := custommiddleware.RequireAdmin(logger)

	// Migration endpoints fan out to the marketplace APIs, so they carry a
	// per-client rate limit on top of auth
	rateLimitMiddleware := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:migrate",
	}, logger)

	// Register routes
	userHandler.RegisterRoutes(router, authMiddleware)
	productHandler.RegisterRoutes(router, authMiddleware)
	mappingHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	migrationHandler.RegisterRoutes(router, authMiddleware, rateLimitMiddleware)
	marketplaceHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:     cfg,
		logger:     logger,
		db:         db,
		migrations: migrationService,
	}

	return server
}

// RecoverStuckMigrations finalizes migrations a previous process left
// in_progress. Called once on startup, before serving traffic.
func (s *Server) RecoverStuckMigrations(ctx context.Context) {
	recovered, err := s.migrations.RecoverStuck(ctx)
	if err != nil {
		s.logger.Error("Failed to recover stuck migrations", zap.Error(err))
		return
	}
	if recovered > 0 {
		s.logger.Info("Recovered stuck migrations", zap.Int("count", recovered))
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
