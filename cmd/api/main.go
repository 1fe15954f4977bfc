package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"schoolops/internal/auth"
	"schoolops/internal/config"
	"schoolops/internal/engine"
	"schoolops/internal/httpmiddleware"
	"schoolops/internal/logging"
	"schoolops/internal/queue"
	"schoolops/internal/roster"
	"schoolops/internal/store"
)

var statusResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "schoolops_status_resolutions_total",
	Help: "Daily status resolutions served, by resolved status.",
}, []string{"status"})

var checkIns = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "schoolops_checkins_total",
	Help: "Check-ins recorded, by status tag.",
}, []string{"status"})

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App, log *logrus.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "schoolops:checkins")
	}

	repo := roster.NewRepository(db.Client)
	ctx := context.Background()
	svc, err := roster.NewService(ctx, repo, redisClient.Client, log,
		engine.WithLocation(loadLocation(cfg.Timezone, log)),
		engine.WithLateWindow(cfg.LateWindowMinutes),
		engine.WithStreakLookback(cfg.StreakLookbackDays),
	)
	if err != nil {
		return err
	}

	prometheus.MustRegister(statusResolutions, checkIns)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/staff/register", func(c *gin.Context) {
		var req struct {
			StaffID string `json:"staff_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := repo.UpsertStaff(c.Request.Context(), req.StaffID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.StaffID, "staff", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		_ = repo.SaveRefreshToken(c.Request.Context(), req.StaffID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.StaffAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/checkins", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, created, err := svc.CheckIn(c.Request.Context(), req.StudentID, time.Now())
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		if created {
			checkIns.WithLabelValues(rec.Status).Inc()
			if err := q.Publish(c.Request.Context(), queue.NewCheckIn(rec.StudentID, rec.Date)); err != nil {
				log.WithError(err).Warn("queue publish failed")
			}
		}

		code := http.StatusCreated
		if !created {
			code = http.StatusOK // duplicate check-in returns the existing record
		}
		timeIn := ""
		if rec.TimeIn != nil {
			timeIn = rec.TimeIn.String()
		}
		c.JSON(code, gin.H{
			"record_id": rec.ID,
			"date":      rec.Date,
			"status":    rec.Status,
			"time_in":   timeIn,
		})
	})

	authGroup.GET("/students/:id/status", func(c *gin.Context) {
		dateKey := c.Query("date")
		if dateKey == "" {
			dateKey = svc.Engine().DateKey(time.Now())
		}
		verdict, err := svc.DailyStatus(c.Request.Context(), c.Param("id"), dateKey)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		statusResolutions.WithLabelValues(string(verdict.Status)).Inc()
		c.JSON(http.StatusOK, gin.H{"date": dateKey, "status": verdict.Status, "time": verdict.Time})
	})

	authGroup.GET("/students/:id/streak", func(c *gin.Context) {
		streak, err := svc.Streak(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": streak.Count, "dates": streak.Dates})
	})

	authGroup.GET("/students/:id/summary", func(c *gin.Context) {
		monthKey := c.Query("month")
		if monthKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "month query param required (YYYY-MM)"})
			return
		}
		summary, err := svc.MonthSummary(c.Request.Context(), c.Param("id"), monthKey)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"month": monthKey, "lates": summary.Lates, "absences": summary.Absences})
	})

	authGroup.GET("/classes/:class/scoreboard", func(c *gin.Context) {
		start, end := c.Query("start"), c.Query("end")
		if start == "" || end == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start and end query params required (YYYY-MM-DD)"})
			return
		}
		scores, err := svc.Scoreboard(c.Request.Context(), c.Param("class"), start, end)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scores": scores})
	})

	authGroup.POST("/permissions", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
			StartDate string `json:"start_date" binding:"required"`
			EndDate   string `json:"end_date" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		perm, err := svc.FilePermission(c.Request.Context(), req.StudentID, req.StartDate, req.EndDate)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, perm)
	})

	authGroup.POST("/permissions/:id/review", func(c *gin.Context) {
		var req struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.ReviewPermission(c.Request.Context(), c.Param("id"), req.Status); err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
	})

	authGroup.GET("/students/:id/permissions", func(c *gin.Context) {
		perms, err := svc.Permissions(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"permissions": perms})
	})

	authGroup.POST("/admin/reload", func(c *gin.Context) {
		if err := svc.Reload(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("server forced shutdown: %v", err)
	}

	log.Info("server exited")
	return nil
}

func statusForError(err error) int {
	if errors.Is(err, roster.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// loadLocation resolves the configured timezone, falling back to the
// fixed UTC+7 zone the data anchors to when tzdata is unavailable.
func loadLocation(name string, log *logrus.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnf("timezone %q unavailable, using fixed UTC+7: %v", name, err)
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
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

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
