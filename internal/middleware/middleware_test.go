package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"wallet_ledger/internal/auth"
	"wallet_ledger/internal/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupIdempotentRouter(t *testing.T, status int) (*gin.Engine, *int32, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls int32
	handler := func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(status, gin.H{"call": n})
	}
	idem := Idempotency(cache, time.Minute, logging.Discard())
	r := gin.New()
	r.POST("/resource", RequireIdempotencyKey(), idem, handler)
	r.POST("/other", RequireIdempotencyKey(), idem, handler)
	return r, &calls, mr
}

func post(r http.Handler, key string) *httptest.ResponseRecorder {
	return postTo(r, "/resource", key, "{}")
}

func postTo(r http.Handler, path, key, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_RequiresHeader(t *testing.T) {
	r, calls, _ := setupIdempotentRouter(t, http.StatusOK)

	w := post(r, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	r, calls, _ := setupIdempotentRouter(t, http.StatusCreated)

	first := post(r, "abc123")
	second := post(r, "abc123")

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestIdempotency_DistinctKeysRunHandler(t *testing.T) {
	r, calls, _ := setupIdempotentRouter(t, http.StatusOK)

	post(r, "k1")
	post(r, "k2")

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestIdempotency_KeyReusedOnAnotherRoute(t *testing.T) {
	r, calls, _ := setupIdempotentRouter(t, http.StatusOK)

	first := postTo(r, "/resource", "shared", `{"amount":"10"}`)
	second := postTo(r, "/other", "shared", `{"amount":"10"}`)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.Empty(t, second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestIdempotency_KeyReusedWithAnotherBody(t *testing.T) {
	r, calls, _ := setupIdempotentRouter(t, http.StatusOK)

	postTo(r, "/resource", "body-key", `{"amount":"10"}`)
	w := postTo(r, "/resource", "body-key", `{"amount":"99"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestIdempotency_PanicReleasesKey(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls int32
	r := gin.New()
	r.Use(gin.RecoveryWithWriter(io.Discard))
	r.POST("/resource",
		RequireIdempotencyKey(),
		Idempotency(cache, time.Minute, logging.Discard()),
		func(c *gin.Context) {
			if atomic.AddInt32(&calls, 1) == 1 {
				panic("handler blew up")
			}
			c.JSON(http.StatusOK, gin.H{"ok": true})
		},
	)

	first := post(r, "crash")
	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.False(t, mr.Exists(idempotencyPrefix+"anonymous:crash"))

	second := post(r, "crash")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_InProgressIsConflict(t *testing.T) {
	r, calls, mr := setupIdempotentRouter(t, http.StatusOK)
	require.NoError(t, mr.Set(idempotencyPrefix+"anonymous:busy", inProgressMarker))

	w := post(r, "busy")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	r, calls, mr := setupIdempotentRouter(t, http.StatusServiceUnavailable)

	post(r, "retry-me")
	assert.False(t, mr.Exists(idempotencyPrefix+"anonymous:retry-me"))

	post(r, "retry-me")
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestIdempotency_StoreDownIsUnavailable(t *testing.T) {
	r, calls, mr := setupIdempotentRouter(t, http.StatusOK)
	mr.Close()

	w := post(r, "abc")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func mockedIdempotentRouter(cache *redis.Client) (*gin.Engine, *int32) {
	var calls int32
	r := gin.New()
	r.POST("/resource",
		RequireIdempotencyKey(),
		Idempotency(cache, time.Minute, logging.Discard()),
		func(c *gin.Context) {
			atomic.AddInt32(&calls, 1)
			c.JSON(http.StatusOK, gin.H{"ok": true})
		},
	)
	return r, &calls
}

func TestIdempotency_ReservationFailure(t *testing.T) {
	cache, mock := redismock.NewClientMock()
	cacheKey := idempotencyPrefix + "anonymous:k1"
	mock.ExpectGet(cacheKey).RedisNil()
	mock.ExpectSetNX(cacheKey, inProgressMarker, time.Minute).SetErr(errors.New("READONLY replica"))

	r, calls := mockedIdempotentRouter(cache)
	w := post(r, "k1")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, atomic.LoadInt32(calls))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_PersistFailureReleasesKey(t *testing.T) {
	cache, mock := redismock.NewClientMock()
	cacheKey := idempotencyPrefix + "anonymous:k2"
	mock.ExpectGet(cacheKey).RedisNil()
	mock.ExpectSetNX(cacheKey, inProgressMarker, time.Minute).SetVal(true)
	mock.Regexp().ExpectSet(cacheKey, `.*`, time.Minute).SetErr(errors.New("OOM"))
	mock.ExpectDel(cacheKey).SetVal(1)

	r, calls := mockedIdempotentRouter(cache)
	w := post(r, "k2")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJWTAuth(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	userID := uuid.New()
	token, err := tokens.Issue(userID)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", JWTAuth(tokens), func(c *gin.Context) {
		id, ok := UserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.String())
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, userID.String(), w.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(logging.Discard()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req.Header.Set(RequestIDHeader, "fixed")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "fixed", w.Header().Get(RequestIDHeader))
}
