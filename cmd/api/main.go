package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendledger/internal/auth"
	"attendledger/internal/config"
	"attendledger/internal/device"
	"attendledger/internal/httpmiddleware"
	"attendledger/internal/ledger"
	"attendledger/internal/queue"
	"attendledger/internal/report"
	"attendledger/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	st, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendledger:events")
	}

	led := ledger.New(st, ledger.DefaultCollection)
	cache := report.NewCache(cfg.AnalyticsTTL)
	reports := report.NewService(led, cache, cfg.ExpectedUsers, cfg.AnomalyThreshold)
	devices := device.NewRegistry(st)
	ctx := context.Background()

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS middleware
	r.Use(corsMiddleware())

	// Security headers
	r.Use(securityHeaders())

	// Rate limiting
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		_, storeErr := st.Read(c.Request.Context(), ledger.DefaultCollection)
		status := http.StatusOK
		if !redisHealthy || storeErr != nil {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "store": storeErr == nil})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := devices.Register(c.Request.Context(), req.DeviceID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.DeviceID, "device", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/events", func(c *gin.Context) {
		var req struct {
			UserID   int64  `json:"user_id" binding:"required"`
			Username string `json:"username" binding:"required"`
			Action   string `json:"action" binding:"required"`
			Location string `json:"location"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		evt, err := led.Record(c.Request.Context(), req.UserID, req.Username, req.Action, req.Location)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}

		if err := q.Publish(ctx, queue.Message{Type: queue.TypeEventRecorded, EventID: evt.ID}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusCreated, gin.H{"event": evt})
	})

	authGroup.GET("/events", func(c *gin.Context) {
		events, err := led.FetchAll(c.Request.Context())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if v := c.Query("user_id"); v != "" {
			if userID, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				filtered := events[:0:0]
				for _, evt := range events {
					if evt.UserID == userID {
						filtered = append(filtered, evt)
					}
				}
				events = filtered
			}
		}
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, perr := strconv.Atoi(v); perr == nil && parsed > 0 {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, perr := strconv.Atoi(v); perr == nil && parsed >= 0 {
				offset = parsed
			}
		}
		if offset > len(events) {
			offset = len(events)
		}
		end := offset + limit
		if end > len(events) {
			end = len(events)
		}
		c.JSON(http.StatusOK, gin.H{"events": events[offset:end], "total": len(events)})
	})

	authGroup.GET("/reports/:window", func(c *gin.Context) {
		typ := report.WindowType(c.Param("window"))
		var bounds *report.Bounds
		if typ == report.WindowCustom {
			start, serr := time.Parse(time.RFC3339, c.Query("start"))
			end, eerr := time.Parse(time.RFC3339, c.Query("end"))
			if serr != nil || eerr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "custom window requires RFC3339 start and end"})
				return
			}
			bounds = &report.Bounds{Start: start, End: end}
		}
		w, err := reports.WindowReport(c.Request.Context(), typ, bounds)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, w)
	})

	authGroup.GET("/analytics/:kind", func(c *gin.Context) {
		opts := report.Options{Window: report.WindowType(c.Query("window"))}
		if v := c.Query("top"); v != "" {
			if parsed, perr := strconv.Atoi(v); perr == nil {
				opts.TopN = parsed
			}
		}
		snap, err := reports.Analytics(c.Request.Context(), c.Param("kind"), opts)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	authGroup.GET("/devices", func(c *gin.Context) {
		list, err := devices.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"devices": list})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// openStore picks the collection-store backend from config.
func openStore(cfg config.App) (store.Store, func(), error) {
	if cfg.StorageBackend == "postgres" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	}
	fs, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {}, nil
}

// statusFor maps the core error taxonomy to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAction),
		errors.Is(err, report.ErrInvalidWindow),
		errors.Is(err, report.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
