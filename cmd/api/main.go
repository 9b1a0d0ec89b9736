package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"makerspace/internal/auth"
	"makerspace/internal/cloudinary"
	"makerspace/internal/config"
	"makerspace/internal/directory"
	"makerspace/internal/httpmiddleware"
	"makerspace/internal/identity"
	"makerspace/internal/queue"
	"makerspace/internal/report"
	"makerspace/internal/session"
	"makerspace/internal/store"
)

var (
	checkinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "makerspace_checkins_total",
		Help: "Sessions opened since process start.",
	})
	checkoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "makerspace_checkouts_total",
		Help: "Sessions closed since process start.",
	})
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
	var db *store.DB
	var sessions session.Store

	if cfg.StoreBackend == "memory" {
		sessions = session.NewMemStore()
		log.Println("using in-memory session store")
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			return err
		}
		sessions = session.NewRepository(db.Client)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "makerspace:sessions")
	}

	svc := session.NewService(sessions, nil)
	reports := report.NewService(sessions, nil)
	guard := auth.NewGuard(cfg.AdminEmail, cfg.AdminPassword, cfg.AdminJWTSecret, cfg.JWTIssuer, cfg.AdminTokenTTL)
	members := directory.New(cfg.DirectoryURL, cfg.DirectorySkip)
	ctx := context.Background()

	// Cloudinary client (nil when not configured)
	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()

	r.Use(gin.Recovery())

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisFixedWindow(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}
	r.Use(limiter.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil || cfg.StoreBackend == "memory"
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Photo upload — accepts a multipart file or a base64 data URL and
	// returns the public Cloudinary URL used as check_in_photo_url.
	r.POST("/v1/upload", func(c *gin.Context) {
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}

		contentType := c.ContentType()
		var result *cloudinary.UploadResult
		var err error

		switch {
		case strings.Contains(contentType, "multipart/form-data"):
			file, header, ferr := c.Request.FormFile("file")
			if ferr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(file)
			if ferr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
				return
			}
			result, err = cdnClient.UploadBytes(data, header.Filename)

		default:
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
				return
			}
			result, err = cdnClient.UploadBase64(body.Data, "")
		}

		if err != nil {
			log.Printf("cloudinary upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"url":       result.SecureURL,
			"public_id": result.PublicID,
			"width":     result.Width,
			"height":    result.Height,
			"bytes":     result.Bytes,
		})
	})

	r.POST("/v1/checkins", func(c *gin.Context) {
		var req struct {
			UserType     string `json:"user_type" binding:"required"`
			Role         string `json:"role"`
			Name         string `json:"name" binding:"required"`
			RegNo        string `json:"reg_no" binding:"required"`
			Email        string `json:"email"`
			Department   string `json:"department"`
			Year         string `json:"year"`
			Organization string `json:"organization"`
			Purpose      string `json:"purpose" binding:"required"`
			PhotoURL     string `json:"photo_url"`
			PhotoBase64  string `json:"photo_base64"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		photoURL := req.PhotoURL
		if photoURL == "" && req.PhotoBase64 != "" {
			if cdnClient == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
				return
			}
			publicID := ""
			if id, err := identity.Normalize(req.RegNo); err == nil {
				publicID = id.Value + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10)
			}
			result, err := cdnClient.UploadBase64(req.PhotoBase64, publicID)
			if err != nil {
				log.Printf("cloudinary upload failed: %v", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
				return
			}
			photoURL = result.SecureURL
		}

		sess, err := svc.CheckIn(c.Request.Context(), session.CheckInInput{
			UserType:     req.UserType,
			Role:         req.Role,
			Name:         req.Name,
			RegNo:        req.RegNo,
			Email:        req.Email,
			Department:   req.Department,
			Year:         req.Year,
			Organization: req.Organization,
			Purpose:      req.Purpose,
			PhotoURL:     photoURL,
			DeviceInfo:   c.Request.UserAgent(),
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		checkinsTotal.Inc()
		if err := q.Publish(ctx, queue.Message{Type: queue.TypeCheckin, Body: []byte(sess.ID)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusCreated, gin.H{
			"ok":     true,
			"action": "checked-in",
			"id":     sess.ID,
			"status": sess.Status,
		})
	})

	r.POST("/v1/checkouts", func(c *gin.Context) {
		var req struct {
			Identifier string `json:"identifier" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sess, err := svc.CheckOut(c.Request.Context(), req.Identifier)
		if err != nil {
			respondErr(c, err)
			return
		}

		checkoutsTotal.Inc()
		if err := q.Publish(ctx, queue.Message{Type: queue.TypeCheckout, Body: []byte(sess.ID)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":               true,
			"action":           "checked-out",
			"id":               sess.ID,
			"duration_minutes": sess.DurationMinutes,
		})
	})

	r.POST("/v1/lookup", func(c *gin.Context) {
		var req struct {
			Identifier string `json:"identifier" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sess, elapsed, err := svc.Lookup(c.Request.Context(), req.Identifier)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":              true,
			"session":         sess,
			"elapsed_minutes": elapsed,
		})
	})

	// Proxy lookup against the external membership directory. Every
	// upstream failure mode surfaces as a plain not-found.
	r.GET("/v1/members/:id", func(c *gin.Context) {
		member, err := members.Lookup(c.Request.Context(), c.Param("id"))
		if err != nil {
			if !errors.Is(err, directory.ErrMemberNotFound) {
				log.Printf("directory lookup failed: %v", err)
			}
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": member})
	})

	r.POST("/v1/admin/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, err := guard.Login(req.Email, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "token": token})
	})

	admin := r.Group("/v1/admin", auth.AdminAuth(guard))

	admin.GET("/stats", func(c *gin.Context) {
		stats, err := reports.StatsForToday(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "stats": stats})
	})

	admin.GET("/today", func(c *gin.Context) {
		list, err := reports.SessionsForToday(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": list})
	})

	admin.GET("/live", func(c *gin.Context) {
		list, err := reports.SessionsLive(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": list})
	})

	admin.GET("/monthly", func(c *gin.Context) {
		list, err := reports.SessionsForMonth(c.Request.Context(), c.Query("month"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": list})
	})

	admin.POST("/sessions/:id/checkout", func(c *gin.Context) {
		sess, err := svc.ForceCheckOut(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}

		checkoutsTotal.Inc()
		if err := q.Publish(ctx, queue.Message{Type: queue.TypeCheckout, Body: []byte(sess.ID)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":               true,
			"action":           "checked-out",
			"id":               sess.ID,
			"duration_minutes": sess.DurationMinutes,
		})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

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

// respondErr maps domain errors onto HTTP statuses. Storage and other
// unknown failures become a generic 500 with no internal detail.
func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrDuplicateOpenSession),
		errors.Is(err, session.ErrAlreadyClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNoOpenSession),
		errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidUserType),
		errors.Is(err, session.ErrMissingName),
		errors.Is(err, session.ErrInvalidPurpose),
		errors.Is(err, session.ErrMissingPhoto),
		errors.Is(err, identity.ErrInvalidIdentifier),
		errors.Is(err, identity.ErrInvalidRegNo),
		errors.Is(err, identity.ErrInvalidMemberID),
		errors.Is(err, report.ErrInvalidMonthFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
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
