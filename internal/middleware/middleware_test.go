package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gameshop/internal/config"
	"gameshop/internal/monitor"
	authutil "gameshop/internal/utils"
	"gameshop/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func TestAuth(t *testing.T) {
	validator := func(token string) (*UserInfo, error) {
		switch token {
		case "buyer":
			return &UserInfo{ID: 7, Role: "user"}, nil
		case "admin":
			return &UserInfo{ID: 1, Role: "admin"}, nil
		}
		return nil, errors.New("bad token")
	}

	router := gin.New()
	router.GET("/me", Auth(validator), func(c *gin.Context) {
		id, ok := GetUserID(c)
		assert.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	router.GET("/admin", Auth(validator), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic abc", http.StatusUnauthorized},
		{"empty token", "/me", "Bearer ", http.StatusUnauthorized},
		{"rejected token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "/me", "Bearer buyer", http.StatusOK},
		{"non admin", "/admin", "Bearer buyer", http.StatusForbidden},
		{"admin", "/admin", "Bearer admin", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(AuthorizationHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestJWTValidator(t *testing.T) {
	m := authutil.NewJWTManager("test-secret", "gameshop", time.Hour)
	token, err := m.GenerateAccessToken(42, "alice", "user")
	require.NoError(t, err)

	info, err := JWTValidator(m)(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), info.ID)
	assert.Equal(t, "user", info.Role)

	_, err = JWTValidator(m)(token + "x")
	assert.Error(t, err)
}

func TestGetUserID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetUserID(c)
	assert.False(t, ok)

	c.Set(UserIDKey, int64(5))
	_, ok = GetUserID(c)
	assert.False(t, ok, "only uint64 ids are accepted")

	c.Set(UserIDKey, uint64(5))
	id, ok := GetUserID(c)
	assert.True(t, ok)
	assert.Equal(t, uint64(5), id)
	assert.Equal(t, uint64(5), MustGetUserID(c))
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	})
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, int(utils.CodeInternalError), decodeCode(t, w))
}

func TestRateLimit(t *testing.T) {
	t.Run("per ip burst", func(t *testing.T) {
		router := gin.New()
		router.Use(IPRateLimit(1, 2))
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("per user buckets are independent", func(t *testing.T) {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			if c.GetHeader("X-User") == "a" {
				c.Set(UserIDKey, uint64(1))
			} else {
				c.Set(UserIDKey, uint64(2))
			}
			c.Next()
		})
		router.Use(UserRateLimit(1, 1))
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		send := func(user string) int {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-User", user)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w.Code
		}

		assert.Equal(t, http.StatusOK, send("a"))
		assert.Equal(t, http.StatusTooManyRequests, send("a"))
		assert.Equal(t, http.StatusOK, send("b"))
	})

	t.Run("concurrent access", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimitWithConfig(RateLimitConfig{
			Rate:    1,
			Burst:   5,
			KeyFunc: func(c *gin.Context) string { return c.GetHeader("X-Key") },
		}))
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		var (
			wg sync.WaitGroup
			mu sync.Mutex
			ok int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("X-Key", "shared")
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)
				if w.Code == http.StatusOK {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 5, ok)
	})
}

type fakeWindow struct {
	mu    sync.Mutex
	seen  map[string]int
	limit int
	err   error
}

func (f *fakeWindow) Allow(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.seen[key]++
	return f.seen[key] <= f.limit, nil
}

func (f *fakeWindow) Limit() int { return f.limit }

func TestSharedUserLimit(t *testing.T) {
	build := func(l WindowLimiter) *gin.Engine {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			c.Set(UserIDKey, uint64(3))
			c.Next()
		})
		router.POST("/checkout", SharedUserLimit(l), func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}
	send := func(router *gin.Engine) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/checkout", nil))
		return w
	}

	window := &fakeWindow{seen: map[string]int{}, limit: 1}
	router := build(window)
	assert.Equal(t, http.StatusOK, send(router).Code)

	w := send(router)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, 2, window.seen["user:3"])

	down := build(&fakeWindow{err: errors.New("redis down")})
	assert.Equal(t, http.StatusOK, send(down).Code, "backend failure lets the request through")
}

func TestTimeout(t *testing.T) {
	router := gin.New()
	router.Use(Timeout(20 * time.Millisecond))
	router.GET("/", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			utils.Error(c, utils.CodeServiceError, "timeout")
		case <-time.After(time.Second):
			c.Status(http.StatusOK)
		}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORS(t *testing.T) {
	var cfg config.SecurityConfig
	cfg.CORS.AllowOrigins = []string{"https://shop.example"}
	cfg.CORS.AllowMethods = []string{"GET", "POST"}

	router := gin.New()
	router.Use(CORS(cfg))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(reg, "test")

	router := gin.New()
	router.Use(Observe(metrics))
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/9", nil))
	}

	n, err := testutil.GatherAndCount(reg, "test_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
