package server

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/ispnexus/webhook-service/internal/auth"
	"github.com/ispnexus/webhook-service/internal/catalog"
	"github.com/ispnexus/webhook-service/internal/config"
	"github.com/ispnexus/webhook-service/internal/delivery"
	"github.com/ispnexus/webhook-service/internal/endpoints"
	"github.com/ispnexus/webhook-service/internal/events"
	"github.com/ispnexus/webhook-service/internal/filters"
	"github.com/ispnexus/webhook-service/internal/storage"
)

type Server struct {
	config           *config.Config
	db               *storage.DB
	logger           zerolog.Logger
	authMiddleware   *auth.Middleware
	catalogHandlers  *catalog.Handlers
	endpointHandlers *endpoints.Handlers
	eventHandlers    *events.Handlers
	deliveryHandlers *delivery.Handlers
	deliveryService  *delivery.Service
	workerPool       *delivery.WorkerPool
}

func New(cfg *config.Config, db *storage.DB, logger zerolog.Logger) *Server {
	// Services in dependency order: catalog and endpoints first, then the
	// delivery engine, then the emitter that fans out into it.
	authService := auth.NewService(cfg.AdminTokenSecret, cfg.ServiceAPIKeys)
	authMiddleware := auth.NewMiddleware(authService)

	catalogService := catalog.NewService(catalog.NewRepository(db), logger)
	catalogHandlers := catalog.NewHandlers(catalogService)

	endpointService := endpoints.NewService(endpoints.NewRepository(db), catalogService, logger)
	endpointHandlers := endpoints.NewHandlers(endpointService)

	eventRepo := events.NewRepository(db)
	deliveryService := delivery.NewService(
		delivery.NewRepository(db),
		eventRepo,
		endpointService,
		delivery.Config{
			SignatureHeader: cfg.SignatureHeader,
			TimestampHeader: cfg.TimestampHeader,
			UserAgent:       cfg.UserAgent,
			DefaultTimeout:  cfg.DeliveryTimeout,
			RetryDelay:      cfg.DefaultRetryDelay,
		},
		logger.With().Str("component", "delivery").Logger(),
	)
	deliveryHandlers := delivery.NewHandlers(deliveryService)

	evaluator := filters.NewEvaluator()
	eventService := events.NewService(eventRepo, catalogService, endpointService, evaluator, deliveryService,
		logger.With().Str("component", "emitter").Logger())
	eventHandlers := events.NewHandlers(eventService)

	workerPool := delivery.NewWorkerPool(deliveryService,
		cfg.WorkerCount, cfg.WorkerPollInterval, cfg.WorkerBatchSize, cfg.ClaimLease)

	return &Server{
		config:           cfg,
		db:               db,
		logger:           logger,
		authMiddleware:   authMiddleware,
		catalogHandlers:  catalogHandlers,
		endpointHandlers: endpointHandlers,
		eventHandlers:    eventHandlers,
		deliveryHandlers: deliveryHandlers,
		deliveryService:  deliveryService,
		workerPool:       workerPool,
	}
}

// StartWorkers launches the delivery worker pool. Workers stop when ctx is
// cancelled; WaitWorkers blocks until in-flight deliveries finish.
func (s *Server) StartWorkers(ctx context.Context) {
	s.workerPool.Start(ctx)
}

func (s *Server) WaitWorkers() {
	s.workerPool.Wait()
}
