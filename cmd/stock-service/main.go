package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/consumers"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/events"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/handler"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/repository"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	batchRepo := repository.NewBatchRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	drugRepo := repository.NewDrugRepository(db)
	supplierRepo := repository.NewSupplierRepository(db)

	// Initialize services
	stockService := service.NewStockService(batchRepo, ledgerRepo, drugRepo, supplierRepo, publisher, log, cfg.Stock.MaxConflictRetries)
	reservationService := service.NewReservationService(batchRepo, reservationRepo, drugRepo, publisher, log, cfg.Stock.ReservationTTL, cfg.Stock.MaxConflictRetries)
	reportService := service.NewReportService(batchRepo, ledgerRepo, drugRepo, supplierRepo, log)

	// Initialize handlers
	batchHandler := handler.NewBatchHandler(stockService, log)
	stockHandler := handler.NewStockHandler(stockService, log)
	transactionHandler := handler.NewTransactionHandler(stockService, log)
	reservationHandler := handler.NewReservationHandler(reservationService, log)
	reportHandler := handler.NewReportHandler(reportService, log)

	// Start supplier event consumer
	supplierConsumer, err := consumers.NewSupplierConsumer(rmq, supplierRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create supplier event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := supplierConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start supplier event consumer")
	}

	// Start reservation expiry sweeper
	sweeper := service.NewReservationSweeper(reservationService, log, cfg.Stock.SweepInterval)
	sweeper.Start()

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/stock", func(r chi.Router) {
		r.Use(httputil.Auth(&cfg.JWT))
		handler.RegisterRoutes(r, batchHandler, stockHandler, transactionHandler, reservationHandler, reportHandler)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the sweeper and consumers
	sweeper.Stop()
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
