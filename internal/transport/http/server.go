package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"finrag/internal/bootstrap"
	"finrag/internal/pkg/jwtutil"
	"finrag/internal/transport/http/handler"
	"finrag/internal/transport/http/middleware"
)

var errRabbitMQClosed = errors.New("rabbitmq connection closed")

func NewRouter(app *bootstrap.App) http.Handler {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(), middleware.Recovery())

	healthHandler := handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, healthChecks(app))
	router.GET("/healthz", healthHandler.Check)

	searchHandler := handler.NewSearchHandler(app.Search, app.Ingest)
	filingHandler := handler.NewFilingHandler(app.Ingest)
	authHandler := handler.NewAuthHandler(app.Auth)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/token", authHandler.Token)
	v1.POST("/match", searchHandler.Match)
	v1.POST("/search", searchHandler.Search)
	v1.POST("/search/context", searchHandler.Context)
	v1.GET("/stats", searchHandler.Stats)
	v1.GET("/filings", filingHandler.List)
	v1.GET("/filings/:ticker", filingHandler.Get)

	if app.Jobs != nil {
		ingestHandler := handler.NewIngestHandler(app.Jobs)
		ingestGroup := v1.Group("/ingest")
		ingestGroup.Use(middleware.AuthJWT(cfg.Auth.JWTSecret, jwtutil.RoleAdmin))
		ingestGroup.POST("/jobs", ingestHandler.Enqueue)
		ingestGroup.POST("/pdf", ingestHandler.UploadPDF)
		ingestGroup.GET("/jobs/:id", ingestHandler.Status)
	}

	return cors.New(cors.Options{
		AllowedOrigins: cfg.App.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(router)
}

func healthChecks(app *bootstrap.App) map[string]handler.Check {
	checks := map[string]handler.Check{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := app.Postgres.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(ctx context.Context) error {
			if app.MQConn.IsClosed() {
				return errRabbitMQClosed
			}
			return nil
		}
	}
	return checks
}
