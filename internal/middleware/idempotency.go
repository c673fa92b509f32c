package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyKeyCtx    = "idempotencyKey"
	idempotencyPrefix    = "idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	maxIdempotencyKeyLen = 128
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// RequireIdempotencyKey rejects requests without a usable Idempotency-Key
// header and stores the key on the context.
func RequireIdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" || len(key) > maxIdempotencyKeyLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"status": "fail",
				"error":  "Idempotency-Key header is required (max 128 characters)",
			})
			return
		}
		c.Set(idempotencyKeyCtx, key)
		c.Next()
	}
}

func IdempotencyKey(c *gin.Context) string {
	return c.GetString(idempotencyKeyCtx)
}

// Idempotency replays the stored response for a repeated key. The first
// request reserves the key with an in-progress marker; a duplicate that
// arrives while it runs gets 409. A key is bound to the route and body it
// was first used with, reusing it for anything else gets 422. 5xx
// responses are not stored so the client can retry them.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := IdempotencyKey(c)
		if key == "" {
			c.Next()
			return
		}
		scope := "anonymous"
		if id, ok := UserID(c); ok {
			scope = id.String()
		}
		cacheKey := idempotencyPrefix + scope + ":" + key

		fingerprint, err := requestFingerprint(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "fail", "error": "unreadable request body"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			replay(c, cached, key, fingerprint, logger)
			return
		case !errors.Is(err, redis.Nil):
			logger.Error("Idempotency lookup failed", slog.String("key", key), slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "idempotency store unavailable"})
			return
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error("Idempotency reservation failed", slog.String("key", key), slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "idempotency store unavailable"})
			return
		}
		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"status": "fail", "error": "duplicate request currently processing"})
			return
		}

		// A panicking handler must not leave the key reserved until the TTL.
		completed := false
		defer func() {
			if !completed {
				releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
				defer releaseCancel()
				cache.Del(releaseCtx, cacheKey)
			}
		}()

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()
		completed = true

		persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
		defer persistCancel()

		if w.Status() >= http.StatusInternalServerError {
			cache.Del(persistCtx, cacheKey)
			return
		}
		payload, err := json.Marshal(storedResponse{
			Status:      w.Status(),
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.String(),
			Fingerprint: fingerprint,
		})
		if err == nil {
			err = cache.Set(persistCtx, cacheKey, payload, ttl).Err()
		}
		if err != nil {
			logger.Error("Failed to persist idempotent response", slog.String("key", key), slog.Any("err", err))
			cache.Del(persistCtx, cacheKey)
		}
	}
}

func replay(c *gin.Context, cached, key, fingerprint string, logger *slog.Logger) {
	if cached == inProgressMarker {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"status": "fail", "error": "duplicate request currently processing"})
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("Failed to decode stored idempotent response", slog.String("key", key), slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"status": "fail", "error": "duplicate request"})
		return
	}
	if stored.Fingerprint != fingerprint {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"status": "fail",
			"error":  "Idempotency-Key was already used for a different request",
		})
		return
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(stored.Status, stored.ContentType, []byte(stored.Body))
	c.Abort()
}

// requestFingerprint hashes the method, route and body. The body is
// restored so the handler can still bind it.
func requestFingerprint(c *gin.Context) (string, error) {
	h := sha256.New()
	h.Write([]byte(c.Request.Method + " " + c.FullPath() + "\n"))
	if c.Request.Body != nil {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return "", err
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		h.Write(body)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
