package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/openlend/lending-platform/internal/faults"
	"github.com/openlend/lending-platform/internal/observability"
)

// Notification is the fire-and-forget event the gateway emits. Delivery is
// best-effort: this sink logs it and answers immediately.
type Notification struct {
	UserID  string `json:"user_id" binding:"required"`
	Type    string `json:"type" binding:"required"`
	Message string `json:"message"`
}

func main() {
	serviceName := getEnv("SERVICE_NAME", "notifications-service")

	obs, err := observability.Setup(context.Background(), serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down observability: %v", err)
		}
	}()

	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})

	r.POST("/api/notifications", func(c *gin.Context) {
		var n Notification
		if err := c.ShouldBindJSON(&n); err != nil {
			c.JSON(faults.Response(faults.New(faults.KindInvalidArgument, err.Error())))
			return
		}

		log.Printf("📫 [NOTIFY] type=%s user=%s message=%q", n.Type, n.UserID, n.Message)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "notification logged"})
	})

	port := getEnv("PORT", "8084")
	log.Printf("🚀 Notifications Service listening on port %s", port)

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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
