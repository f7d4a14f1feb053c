package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dealerhub/platform/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	authServiceURL    = getEnv("AUTH_SERVICE_URL", "http://localhost:8081")
	userServiceURL    = getEnv("USER_SERVICE_URL", "http://localhost:8082")
	vehicleServiceURL = getEnv("VEHICLE_SERVICE_URL", "http://localhost:8083")
	clientServiceURL  = getEnv("CLIENT_SERVICE_URL", "http://localhost:8084")
)

func main() {
	gin.SetMode(gin.ReleaseMode)
	router := newRouter(originsFromEnv())

	srv := &http.Server{
		Addr:    ":" + getEnv("PORT", "8080"),
		Handler: router,
		// Uploads can be large; only bound the header read.
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("API gateway starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func newRouter(allowOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.LoggingMiddleware(), middleware.CORS(allowOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "api-gateway"})
	})

	// Each service owns everything below its prefix.
	mount(router, "/api/auth", authServiceURL)
	mount(router, "/api/users", userServiceURL)
	mount(router, "/api/vehicles", vehicleServiceURL)
	mount(router, "/api/clients", clientServiceURL)

	return router
}

func mount(router *gin.Engine, prefix, serviceURL string) {
	proxy := proxyTo(serviceURL)
	router.Any(prefix, proxy)
	router.Any(prefix+"/*path", proxy)
}

func originsFromEnv() []string {
	raw := os.Getenv("CORS_ALLOWED_ORIGINS")
	if raw == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		// Remove trailing slash if present
		return strings.TrimSuffix(value, "/")
	}
	return fallback
}
