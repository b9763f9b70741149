package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/openlend/lending-platform/internal/observability"
)

func main() {
	serviceName := getEnv("SERVICE_NAME", "gateway")

	obs, err := observability.Setup(context.Background(), serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down observability: %v", err)
		}
	}()

	dbPool, err := initDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbPool.Close()

	clientTimeout := 10 * time.Second
	borrowings := NewBorrowingsClient(getEnv("BORROWINGS_SERVICE_URL", "http://localhost:8082"), clientTimeout)
	items := NewItemsClient(getEnv("ITEMS_SERVICE_URL", "http://localhost:8081"), clientTimeout)
	notifier := NewNotificationsClient(getEnv("NOTIFICATIONS_SERVICE_URL", "http://localhost:8084"), clientTimeout)

	store := NewSagaStore(dbPool)
	orchestrator := NewOrchestrator(borrowings, items, store, notifier, obs.Tracer(serviceName))
	handler := NewGatewayHandler(orchestrator)

	reconcileInterval, err := time.ParseDuration(getEnv("RECONCILE_INTERVAL", "30s"))
	if err != nil {
		log.Fatalf("Invalid RECONCILE_INTERVAL: %v", err)
	}
	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()
	go NewReconciler(store, items, reconcileInterval).Run(reconcilerCtx)

	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName))

	r.GET("/health", handler.HealthCheck)

	r.POST("/api/borrowings", handler.CreateBorrowing)
	r.GET("/api/borrowings", handler.ListBorrowings)
	r.GET("/api/borrowings/history", handler.History)
	r.GET("/api/borrowings/my/:userID", handler.ListMyBorrowings)
	r.GET("/api/borrowings/:id", handler.GetBorrowing)
	r.POST("/api/borrowings/:id/approve", handler.Approve)
	r.POST("/api/borrowings/:id/reject", handler.Reject)
	r.POST("/api/borrowings/:id/return", handler.Return)
	r.POST("/api/borrowings/:id/cancel", handler.Cancel)

	r.GET("/api/items", handler.ListItems)
	r.GET("/api/items/:id", handler.GetItem)

	port := getEnv("PORT", "8080")
	log.Printf("🚀 Gateway listening on port %s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func initDB() (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DATABASE_USER", "root"),
		getEnv("DATABASE_PASSWORD", "pass"),
		getEnv("DATABASE_HOST", "localhost"),
		getEnv("DATABASE_PORT", "5432"),
		getEnv("DATABASE_NAME", "gateway_db"),
	)

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			log.Println("✅ Connected to gateway database")
			return pool, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)
		time.Sleep(1 * time.Second)
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after 30 attempts")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
