package idempotency

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/pharmacy-platform/pharmacy-service/pkg/errors"
	"github.com/pharmacy-platform/pharmacy-service/pkg/middleware"
)

// HeaderReplayed is set on responses served from the idempotency cache
const HeaderReplayed = "Idempotent-Replayed"

// Results recorded in the idempotency metric
const (
	resultMiss         = "miss"
	resultReplay       = "replay"
	resultConflict     = "conflict"
	resultMismatch     = "mismatch"
	resultStorageError = "storage_error"
)

// responseWriter wraps gin.ResponseWriter to capture response data
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware returns a Gin middleware that replays the stored response of a
// request whose Idempotency-Key was already used with the same parameters
func Middleware(config *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.OnlyMutating && !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(middleware.HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				middleware.AbortWithAppError(c, apperrors.NewAppError(
					"IDEMPOTENCY_KEY_REQUIRED",
					"Idempotency-Key header is required for this operation",
					http.StatusBadRequest,
				))
				return
			}
			c.Next()
			return
		}

		if err := ValidateKeyWithMaxLength(key, config.MaxKeyLength); err != nil {
			middleware.AbortWithAppError(c, apperrors.NewAppError(
				"IDEMPOTENCY_KEY_INVALID",
				"Invalid idempotency key: "+err.Error(),
				http.StatusBadRequest,
			))
			return
		}

		var userID string
		if config.UserIDExtractor != nil {
			userID = config.UserIDExtractor(c)
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		}

		process(c, config, key, userID, ComputeFingerprint(c.Request.Method, c.Request.URL.Path, body))
	}
}

func process(c *gin.Context, config *Config, key, userID, fingerprint string) {
	ctx := c.Request.Context()
	log := config.Logger.WithContext(ctx).With(
		"idempotencyKey", key,
		"path", c.Request.URL.Path,
	)
	now := time.Now().UTC().Truncate(time.Millisecond)

	stored, isNew, err := config.Repository.AcquireLock(ctx, &IdempotencyKey{
		Key:                key,
		UserID:             userID,
		ServiceID:          config.ServiceName,
		RequestPath:        c.Request.URL.Path,
		RequestMethod:      c.Request.Method,
		RequestFingerprint: fingerprint,
		CreatedAt:          now,
		ExpiresAt:          now.Add(config.RetentionPeriod),
	})
	if err != nil {
		log.Error("Failed to acquire idempotency lock", "error", err)
		record(config, resultStorageError)
		middleware.AbortWithAppError(c, apperrors.ErrServiceUnavailable("idempotency storage"))
		return
	}

	if !isNew {
		if stored.RequestFingerprint != fingerprint {
			log.Warn("Idempotency key reused with different parameters")
			record(config, resultMismatch)
			middleware.AbortWithAppError(c, apperrors.NewAppError(
				"IDEMPOTENCY_PARAMETER_MISMATCH",
				"Request parameters differ from original request with this idempotency key",
				http.StatusUnprocessableEntity,
			))
			return
		}

		if stored.IsCompleted() {
			log.Info("Idempotency cache hit", "statusCode", stored.ResponseCode)
			record(config, resultReplay)
			for k, v := range stored.ResponseHeaders {
				c.Header(k, v)
			}
			c.Header(HeaderReplayed, "true")
			c.Data(stored.ResponseCode, "application/json; charset=utf-8", stored.ResponseBody)
			c.Abort()
			return
		}

		if !stored.IsStale(now, config.LockTimeout) {
			log.Warn("Concurrent idempotency request")
			record(config, resultConflict)
			middleware.AbortWithAppError(c, apperrors.ErrConflict("A request with this idempotency key is currently being processed"))
			return
		}

		if err := config.Repository.RefreshLock(ctx, stored); err != nil {
			log.Warn("Could not take over stale idempotency key", "error", err)
			record(config, resultConflict)
			middleware.AbortWithAppError(c, apperrors.ErrConflict("A request with this idempotency key is currently being processed"))
			return
		}
		log.Info("Took over stale idempotency key")
	}

	record(config, resultMiss)

	writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
	c.Writer = writer

	c.Next()

	// The request context may already be cancelled by a disconnected client;
	// the outcome must still be stored.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	status := writer.Status()
	if status >= http.StatusInternalServerError || writer.body.Len() > config.MaxResponseSize {
		if err := config.Repository.ReleaseLock(storeCtx, stored); err != nil {
			log.Error("Failed to release idempotency key", "error", err)
			record(config, resultStorageError)
		}
		return
	}

	if err := config.Repository.StoreResponse(storeCtx, stored, status, writer.body.Bytes(), responseHeaders(c)); err != nil {
		log.Error("Failed to store idempotency response", "error", err)
		record(config, resultStorageError)
	}
}

func record(config *Config, result string) {
	if config.Metrics != nil {
		config.Metrics.RecordIdempotency(result)
	}
}

func isMutatingMethod(method string) bool {
	return method == http.MethodPost ||
		method == http.MethodPut ||
		method == http.MethodPatch ||
		method == http.MethodDelete
}

// responseHeaders keeps the headers worth replaying
func responseHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string)
	for k, v := range c.Writer.Header() {
		if len(v) == 0 || k == middleware.HeaderRequestID || k == middleware.HeaderCorrelationID {
			continue
		}
		headers[k] = v[0]
	}
	return headers
}
