package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pos-service/config"
	"pos-service/internal/api"
	"pos-service/internal/broker"
	"pos-service/internal/redisclient"
	"pos-service/internal/sequence"
	"pos-service/internal/service"
	"pos-service/internal/store/postgres"
	"pos-service/internal/util"
	"pos-service/internal/worker"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting pos service")

	tp, err := util.InitTracer("pos-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := postgres.New(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	allocator := sequence.NewAllocator(db)
	ledger := service.NewInventoryLedger(db)
	statsService := service.NewStatsService(db, redisClient)
	productService := service.NewProductService(db, allocator, cfg.Business.BarcodeNamespace)
	saleService := service.NewSaleService(db, ledger, statsService, eventPublisher)
	returnService := service.NewReturnService(db, ledger, redisClient, statsService, eventPublisher,
		time.Duration(cfg.Business.SaleLockTTLSeconds)*time.Second)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	statsConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales, cfg.Kafka.ConsumerGroup)
	statsWorker := worker.NewStatisticsWorker(statsConsumer, statsService)
	go func() {
		if err := statsWorker.Start(workerCtx); err != nil {
			log.Printf("Statistics worker error: %v", err)
		}
	}()

	recoveryWorker := worker.NewRecoveryWorker(returnService,
		time.Duration(cfg.Business.RecoverySweepSeconds)*time.Second,
		time.Duration(cfg.Business.RecoveryGraceSeconds)*time.Second,
		cfg.Business.RecoverySweepBatchSize)
	go func() {
		if err := recoveryWorker.Start(workerCtx); err != nil {
			log.Printf("Recovery worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(productService, saleService, returnService, statsService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if err := statsWorker.Stop(); err != nil {
		log.Printf("Error stopping statistics worker: %v", err)
	}

	log.Println("Server exited")
}
