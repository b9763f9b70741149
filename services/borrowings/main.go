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
	serviceName := getEnv("SERVICE_NAME", "borrowings-service")

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

	repository := NewBorrowRepository(dbPool)
	useCase := NewBorrowUseCase(repository)
	handler := NewBorrowHandler(useCase, obs.Tracer(serviceName))

	go sweepLoop(useCase)

	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName))

	r.GET("/health", handler.HealthCheck)

	r.POST("/api/borrowings", handler.Create)
	r.GET("/api/borrowings", handler.ListAll)
	r.GET("/api/borrowings/history", handler.History)
	r.GET("/api/borrowings/user/:userID", handler.ListByUser)
	r.GET("/api/borrowings/:id", handler.Get)
	r.POST("/api/borrowings/:id/status", handler.UpdateStatus)

	port := getEnv("PORT", "8082")
	log.Printf("🚀 Borrowings Service listening on port %s", port)

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

// sweepLoop periodically persists lateness; reads surface it lazily anyway,
// so the interval is generous.
func sweepLoop(useCase *BorrowUseCase) {
	interval, err := time.ParseDuration(getEnv("LATE_SWEEP_INTERVAL", "5m"))
	if err != nil {
		log.Printf("Invalid LATE_SWEEP_INTERVAL, defaulting to 5m: %v", err)
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := useCase.SweepLate(ctx); err != nil {
			log.Printf("❌ [SWEEP] failed: %v", err)
		}
		cancel()
	}
}

func initDB() (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DATABASE_USER", "root"),
		getEnv("DATABASE_PASSWORD", "pass"),
		getEnv("DATABASE_HOST", "localhost"),
		getEnv("DATABASE_PORT", "5432"),
		getEnv("DATABASE_NAME", "borrowings_db"),
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
			log.Println("✅ Connected to borrowings database")
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
