package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/models"
	"github.com/controlink-dev/winmax4-sync/utils"
	"github.com/controlink-dev/winmax4-sync/winmax4"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("WINMAX4_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	// API endpoints (Winmax4 sync)
	r.POST("/api/winmax4/licenses", winmax4.CreateLicenseHandler())
	r.GET("/api/winmax4/status", winmax4.StatusHandler())
	r.POST("/api/winmax4/sync/:entity", winmax4.TriggerSyncHandler())
	r.GET("/api/winmax4/sync-runs", winmax4.SyncHistoryHandler())
	r.GET("/api/winmax4/sync-runs/:id", winmax4.SyncRunDetailHandler())
	r.POST("/api/winmax4/sync-runs/:id/retry", winmax4.RetrySyncRunHandler())

	// Push direction: locally authored records picked up by the next sync.
	r.POST("/api/winmax4/entities", winmax4.CreateEntityHandler())
	r.PUT("/api/winmax4/entities/:id", winmax4.UpdateEntityHandler())
	r.DELETE("/api/winmax4/entities/:id", winmax4.DeleteEntityHandler())
	r.POST("/api/winmax4/documents", winmax4.CreateDocumentHandler())
	r.GET("/api/winmax4/documents/:id", winmax4.GetDocumentHandler())

	// Pub/Sub push endpoint for sync worker.
	r.POST("/pubsub/winmax4-sync", winmax4.PubSubPushHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	go runScheduler(sigCtx, logger)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// runScheduler triggers an incremental pass for every entity type at a fixed
// interval. Per-license overlap is prevented downstream by the sync lock.
func runScheduler(ctx context.Context, logger *logrus.Logger) {
	intervalMinutes := intFromEnv("WINMAX4_SYNC_INTERVAL_MINUTES", 0)
	if intervalMinutes <= 0 {
		logger.WithFields(logrus.Fields{"field": "scheduler"}).Info("scheduled sync disabled")
		return
	}

	entityTypes := []string{
		winmax4.EntityCurrencies, winmax4.EntityWarehouses, winmax4.EntityDocumentTypes,
		winmax4.EntityPaymentTypes, winmax4.EntityFamilies, winmax4.EntityTaxes,
		winmax4.EntityArticles, winmax4.EntityEntities, winmax4.EntityDocuments,
	}

	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, entityType := range entityTypes {
				_, err := winmax4.TriggerSync(ctx, entityType, winmax4.SyncOptions{
					TriggeredBy: models.SyncTriggeredScheduled,
				})
				if err != nil {
					logger.WithFields(logrus.Fields{
						"field":       "scheduler",
						"entity_type": entityType,
					}).Warn("scheduled sync trigger failed: " + err.Error())
				}
			}
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		fields := logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}
		if licenseId, ok := utils.GetLicenseIdFromContext(c.Request.Context()); ok {
			fields["license_id"] = licenseId
		}
		logger.WithFields(fields).Info("request")
	}
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
