package middleware

import (
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/pkg/security"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	d, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate(&model.Identity{}))

	sqlDB, err := d.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return d
}

func do(r http.Handler, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "10.1.1.1:4321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(NewRequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.MustGet("requestID").(string))
	})

	w := do(r, http.MethodGet, "/", nil, nil)
	assert.Len(t, w.Body.String(), 10)
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))
}

func TestBodySizeLimiter(t *testing.T) {
	r := gin.New()
	r.Use(NewRequestIDMiddleware(), BodySizeLimiter(16))
	r.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			if IsBodyTooLarge(err) {
				c.Status(http.StatusRequestEntityTooLarge)
				return
			}

			c.Status(http.StatusBadRequest)
			return
		}

		c.Status(http.StatusOK)
	})

	w := do(r, http.MethodPost, "/", strings.NewReader(`{"a":1}`), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/", strings.NewReader(`{"a":"aaaaaaaaaaaaaaaaaaaaaaaaaaa"}`), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	// Without a Content-Length the cap kicks in while reading
	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(`{"a":"aaaaaaaaaaaaaaaaaaaaaaaaaaa"}`)))
	req.ContentLength = -1
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer abc"}, "abc"},
		{"lowercase scheme", map[string]string{"Authorization": "bearer abc"}, "abc"},
		{"x-auth-token", map[string]string{"x-auth-token": "abc"}, "abc"},
		{"basic falls through", map[string]string{"Authorization": "Basic Zm9v", "x-auth-token": "abc"}, "abc"},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, tokenFromRequest(c))
		})
	}
}

func TestJWTMiddleware(t *testing.T) {
	d := newTestDB(t)
	tokens := security.NewTokens("secret", time.Hour)

	email := "u@x.io"
	user := model.Identity{ID: "useruseruseruser", Email: &email, IPAddress: "1.1.1.1", Role: model.RoleUser, LastResetDate: time.Now(), JoinedAt: time.Now()}
	admin := model.Identity{ID: "adminadminadmina", IPAddress: "1.1.1.2", Role: model.RoleAdmin, LastResetDate: time.Now(), JoinedAt: time.Now()}
	adminEmail := "a@x.io"
	admin.Email = &adminEmail
	require.NoError(t, d.Create(&user).Error)
	require.NoError(t, d.Create(&admin).Error)

	r := gin.New()
	r.Use(NewRequestIDMiddleware())
	r.GET("/me", NewJWTMiddleware(d, tokens), func(c *gin.Context) {
		c.String(http.StatusOK, c.MustGet("identityID").(string))
	})
	r.GET("/admin", NewJWTMiddleware(d, tokens), NewAdminMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	userToken, err := tokens.Issue(user.ID, user.Role)
	require.NoError(t, err)
	adminToken, err := tokens.Issue(admin.ID, admin.Role)
	require.NoError(t, err)
	ghostToken, err := tokens.Issue("ghostghostghostg", model.RoleUser)
	require.NoError(t, err)
	otherToken, err := security.NewTokens("other", time.Hour).Issue(user.ID, user.Role)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + otherToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid signature, but the account is gone
	w = do(r, http.MethodGet, "/me", nil, map[string]string{"x-auth-token": ghostToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + userToken})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.ID, w.Body.String())

	w = do(r, http.MethodGet, "/admin", nil, map[string]string{"Authorization": "Bearer " + userToken})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/admin", nil, map[string]string{"Authorization": "Bearer " + adminToken})
	assert.Equal(t, http.StatusOK, w.Code)

	// A token claiming admin means nothing once the row says otherwise
	forged, err := tokens.Issue(user.ID, model.RoleAdmin)
	require.NoError(t, err)
	w = do(r, http.MethodGet, "/admin", nil, map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOptionalJWTMiddleware(t *testing.T) {
	tokens := security.NewTokens("secret", time.Hour)

	r := gin.New()
	r.Use(NewRequestIDMiddleware())
	r.GET("/", NewOptionalJWTMiddleware(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("identityID"))
	})

	token, err := tokens.Issue("useruseruseruser", model.RoleUser)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "useruseruseruser", w.Body.String())

	w = do(r, http.MethodGet, "/", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = do(r, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestMemoryLimiter(t *testing.T) {
	l, err := NewMemoryLimiter(5, time.Minute)
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()

	for i := range 5 {
		res, err := l.Allow(ctx, "1.1.1.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 4-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	// Blocked until the window that started with the first request ends
	assert.Greater(t, res.RetryAfter, 50*time.Second)
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)

	res, err = l.Allow(ctx, "2.2.2.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiterBlocksForWholeWindow(t *testing.T) {
	const window = 300 * time.Millisecond

	l, err := NewMemoryLimiter(5, window)
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()

	for range 5 {
		res, err := l.Allow(ctx, "1.1.1.1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	// Well inside the window, nothing has been given back yet
	time.Sleep(window / 2)

	res, err := l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.LessOrEqual(t, res.RetryAfter, window/2)

	time.Sleep(window)

	res, err = l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestMemoryLimiterSteadyTrafficWithinWindow(t *testing.T) {
	const window = 500 * time.Millisecond

	l, err := NewMemoryLimiter(5, window)
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	start := time.Now()
	allowed := 0

	for time.Since(start) < window*9/10 {
		res, err := l.Allow(ctx, "1.1.1.1")
		require.NoError(t, err)
		if res.Allowed {
			allowed++
		}

		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, 5, allowed)
}

func TestNewLimiterRejectsBadConfig(t *testing.T) {
	_, err := NewMemoryLimiter(0, time.Minute)
	assert.Error(t, err)

	_, err = NewRedisLimiter(nil, 5, 0)
	assert.Error(t, err)
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l, err := NewRedisLimiter(rdb, 5, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()

	for i := range 5 {
		res, err := l.Allow(ctx, "1.1.1.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 4-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)
	assert.True(t, mr.Exists("rl:1.1.1.1"))

	mr.FastForward(time.Minute + time.Second)

	res, err = l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	l, err := NewMemoryLimiter(5, time.Minute)
	require.NoError(t, err)
	defer l.Close()

	r := gin.New()
	r.Use(NewRequestIDMiddleware())
	r.POST("/", NewRateLimitMiddleware(l), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for range 5 {
		w := do(r, http.MethodPost, "/", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	}

	w := do(r, http.MethodPost, "/", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many requests, please try again later.")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()

	l, err := NewRedisLimiter(rdb, 1, time.Minute)
	require.NoError(t, err)
	mr.Close()

	r := gin.New()
	r.Use(NewRequestIDMiddleware())
	r.POST("/", NewRateLimitMiddleware(l), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for range 3 {
		w := do(r, http.MethodPost, "/", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
