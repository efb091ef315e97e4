// Package app builds the HTTP router and wires every handler to its dependencies
package app

import (
	"bitwise74/docstring-api/app/admin"
	"bitwise74/docstring-api/app/generate"
	"bitwise74/docstring-api/app/history"
	"bitwise74/docstring-api/app/root"
	"bitwise74/docstring-api/app/user"
	"bitwise74/docstring-api/db"
	"bitwise74/docstring-api/internal"
	"bitwise74/docstring-api/internal/service"
	"bitwise74/docstring-api/pkg/middleware"
	"bitwise74/docstring-api/pkg/security"
	"context"
	"fmt"
	"net/http"
	"time"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

// Options are the router settings that don't live in Deps
type Options struct {
	CORSOrigins    []string
	TrustedProxies []string
	MaxBodySize    int64
	// Limiter guards POST /api/generate, nil disables per-IP rate limiting
	Limiter       middleware.Limiter
	StatsCacheTTL time.Duration
	Sentry        bool
}

// New builds the router on top of already constructed dependencies
func New(d *internal.Deps, o Options) (*gin.Engine, error) {
	router := gin.New()

	if len(o.CORSOrigins) == 0 {
		o.CORSOrigins = []string{"http://localhost:5173"}
	}

	if err := router.SetTrustedProxies(o.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies, %w", err)
	}

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     o.CORSOrigins,
			AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "x-auth-token"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == http.MethodHead
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("identityID"); v != "" {
					fields = append(fields, zap.String("identityID", v))
				}

				return fields
			},
		}),
	)

	if o.Sentry {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	if o.MaxBodySize <= 0 {
		o.MaxBodySize = 1 << 20
	}

	if o.StatsCacheTTL <= 0 {
		o.StatsCacheTTL = 5 * time.Second
	}

	store := persist.NewMemoryStore(time.Minute)

	jwt := middleware.NewJWTMiddleware(d.DB, d.Tokens)
	optionalJWT := middleware.NewOptionalJWTMiddleware(d.Tokens)
	adminOnly := middleware.NewAdminMiddleware()
	body := middleware.BodySizeLimiter(o.MaxBodySize)

	var rateLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if o.Limiter != nil {
		rateLimit = middleware.NewRateLimitMiddleware(o.Limiter)
	}

	main := router.Group("/api")
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		main.HEAD("/heartbeat", root.Heartbeat)
		main.GET("/heartbeat", root.Heartbeat)
	}

	gen := main.Group("/generate")
	{
		// POST /api/generate			-> Generates a docstring for a code snippet
		gen.POST("", optionalJWT, rateLimit, body, func(c *gin.Context) { generate.Generate(c, d) })

		// GET /api/generate/history		-> Lists the caller's past generations, newest first
		gen.GET("/history", optionalJWT, func(c *gin.Context) { history.HistoryList(c, d) })

		// PUT /api/generate/history/:id	-> Replaces the docstring of an owned generation
		gen.PUT("/history/:id", jwt, body, func(c *gin.Context) { history.HistoryUpdate(c, d) })

		// DELETE /api/generate/history/:id	-> Deletes an owned generation
		gen.DELETE("/history/:id", jwt, func(c *gin.Context) { history.HistoryDelete(c, d) })
	}

	auth := main.Group("/auth")
	{
		// POST /api/auth/register	-> Registers a new user and returns a JWT token
		auth.POST("/register", body, func(c *gin.Context) { user.UserRegister(c, d) })

		// POST /api/auth/login		-> Logs in a user and returns a JWT token
		auth.POST("/login", body, func(c *gin.Context) { user.UserLogin(c, d) })

		// GET /api/auth/me		-> Returns the logged in identity
		auth.GET("/me", jwt, user.UserMe)
	}

	adm := main.Group("/admin", jwt, adminOnly)
	{
		// GET /api/admin/stats		-> Dashboard metrics
		adm.GET("/stats", cache.CacheByRequestURI(store, o.StatsCacheTTL), func(c *gin.Context) { admin.AdminStats(c, d) })

		// GET /api/admin/users		-> Lists registered users, newest first
		adm.GET("/users", func(c *gin.Context) { admin.AdminUsers(c, d) })

		// PUT /api/admin/users/:id/block	-> Blocks or unblocks a user
		adm.PUT("/users/:id/block", func(c *gin.Context) { admin.AdminToggleBlock(c, d) })

		// PUT /api/admin/users/:id/plan	-> Switches a user between the free and pro plan
		adm.PUT("/users/:id/plan", func(c *gin.Context) { admin.AdminTogglePlan(c, d) })
	}

	return router, nil
}

// NewDeps builds every service from the loaded configuration
func NewDeps() (*internal.Deps, error) {
	conn, err := db.New(viper.GetString("database.driver"), viper.GetString("database.dsn"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	identities := service.NewIdentities(conn)
	argon := security.New()

	d := &internal.Deps{
		DB:         conn,
		Argon:      argon,
		Tokens:     security.NewTokens(viper.GetString("jwt.secret"), viper.GetDuration("jwt.ttl")),
		Identities: identities,
		Docstrings: &service.Docstrings{
			DB:         conn,
			Identities: identities,
			Quota: service.NewQuota(service.Limits{
				GuestDaily:   viper.GetInt("quota.guest_daily"),
				FreeDaily:    viper.GetInt("quota.free_daily"),
				FreeLanguage: viper.GetString("quota.free_language"),
			}),
			Generator: &service.ChatClient{
				BaseURL:     viper.GetString("generator.base_url"),
				APIKey:      viper.GetString("generator.api_key"),
				Model:       viper.GetString("generator.model"),
				Temperature: viper.GetFloat64("generator.temperature"),
				MaxTokens:   viper.GetInt("generator.max_tokens"),
				HTTP:        &http.Client{},
				Throttle:    generatorThrottle(viper.GetInt("generator.requests_per_minute")),
			},
			Timeout: viper.GetDuration("generator.timeout"),
			Now:     time.Now,
		},
		History:  &service.History{DB: conn},
		Admin:    &service.Admin{DB: conn, Now: time.Now},
		Accounts: &service.Accounts{DB: conn, Argon: argon},
	}

	return d, nil
}

// NewRouter sets up logging, error tracking, every service and the background
// cleanup jobs from the loaded configuration. The jobs stop when ctx is done
func NewRouter(ctx context.Context) (*gin.Engine, error) {
	if err := makeLogger(viper.GetString("app.log_level")); err != nil {
		return nil, err
	}

	d, err := NewDeps()
	if err != nil {
		return nil, err
	}

	sentryEnabled := false
	if dsn := viper.GetString("sentry.dsn"); dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      viper.GetString("sentry.environment"),
		})
		if err != nil {
			zap.L().Error("Sentry init failed", zap.Error(err))
		} else {
			sentryEnabled = true
		}
	}

	limiter, err := newLimiter(ctx)
	if err != nil {
		return nil, err
	}

	router, err := New(d, Options{
		CORSOrigins:    viper.GetStringSlice("host.cors_origins"),
		TrustedProxies: viper.GetStringSlice("host.trusted_proxies"),
		MaxBodySize:    viper.GetInt64("security.max_body_size"),
		Limiter:        limiter,
		Sentry:         sentryEnabled,
	})
	if err != nil {
		return nil, err
	}

	interval := viper.GetDuration("cleanup.interval")

	// Failures only feed today's stats, guests come back rarely after months
	service.FailureCleanup(ctx, interval, viper.GetDuration("cleanup.failure_retention"), d.DB)
	service.GuestCleanup(ctx, interval, viper.GetDuration("cleanup.guest_retention"), d.DB)

	return router, nil
}

// generatorThrottle spaces out calls to the LLM provider, 0 disables it
func generatorThrottle(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

func newLimiter(ctx context.Context) (middleware.Limiter, error) {
	requests := viper.GetInt("security.rate_limit.requests")
	window := viper.GetDuration("security.rate_limit.window")

	if viper.GetString("security.rate_limit.backend") != "redis" {
		return middleware.NewMemoryLimiter(requests, window)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis, %w", err)
	}

	zap.L().Debug("Rate limiter using redis", zap.String("addr", viper.GetString("redis.addr")))
	return middleware.NewRedisLimiter(rdb, requests, window)
}

func makeLogger(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level, %w", err)
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger, %w", err)
	}

	zap.ReplaceGlobals(log)
	return nil
}
