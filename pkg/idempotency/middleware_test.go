package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/middleware"
)

// memoryKeyRepository is an in-memory KeyRepository
type memoryKeyRepository struct {
	mu         sync.Mutex
	keys       map[string]*IdempotencyKey
	acquireErr error
}

func newMemoryKeyRepository() *memoryKeyRepository {
	return &memoryKeyRepository{keys: map[string]*IdempotencyKey{}}
}

func scope(k *IdempotencyKey) string {
	return k.ServiceID + "|" + k.UserID + "|" + k.Key
}

func (m *memoryKeyRepository) AcquireLock(_ context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return nil, false, m.acquireErr
	}
	if existing, ok := m.keys[scope(key)]; ok {
		c := *existing
		return &c, false, nil
	}
	now := time.Now().UTC()
	key.ID = primitive.NewObjectID()
	key.LockedAt = &now
	c := *key
	m.keys[scope(key)] = &c
	return key, true, nil
}

func (m *memoryKeyRepository) ReleaseLock(_ context.Context, key *IdempotencyKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, scope(key))
	return nil
}

func (m *memoryKeyRepository) RefreshLock(_ context.Context, key *IdempotencyKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.keys[scope(key)]
	if !ok || stored.IsCompleted() || !stored.LockedAt.Equal(*key.LockedAt) {
		return ErrConcurrentRequest
	}
	now := time.Now().UTC()
	stored.LockedAt = &now
	return nil
}

func (m *memoryKeyRepository) StoreResponse(_ context.Context, key *IdempotencyKey, code int, body []byte, headers map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.keys[scope(key)]
	now := time.Now().UTC()
	stored.ResponseCode = code
	stored.ResponseBody = append([]byte{}, body...)
	stored.ResponseHeaders = headers
	stored.CompletedAt = &now
	stored.LockedAt = nil
	return nil
}

func (m *memoryKeyRepository) EnsureIndexes(context.Context) error { return nil }

func (m *memoryKeyRepository) set(key *IdempotencyKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[scope(key)] = key
}

func setupRouter(repo KeyRepository, configure func(*Config), handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	config := DefaultConfig("pharmacy-test", repo, logging.NewNop())
	config.UserIDExtractor = func(c *gin.Context) string { return c.GetHeader(middleware.HeaderUserID) }
	if configure != nil {
		configure(config)
	}

	router := gin.New()
	router.Use(Middleware(config))
	router.POST("/orders", handler)
	router.GET("/orders", handler)
	return router
}

func post(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "user-1")
	if key != "" {
		req.Header.Set(middleware.HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func countingHandler(calls *int, status int) gin.HandlerFunc {
	return func(c *gin.Context) {
		*calls++
		c.JSON(status, gin.H{"call": *calls})
	}
}

func TestMiddleware_NoKey(t *testing.T) {
	calls := 0
	router := setupRouter(newMemoryKeyRepository(), nil, countingHandler(&calls, http.StatusCreated))

	assert.Equal(t, http.StatusCreated, post(router, "", `{}`).Code)
	assert.Equal(t, http.StatusCreated, post(router, "", `{}`).Code)
	assert.Equal(t, 2, calls)

	required := setupRouter(newMemoryKeyRepository(), func(c *Config) { c.RequireKey = true }, countingHandler(&calls, http.StatusCreated))
	w := post(required, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_KEY_REQUIRED")
}

func TestMiddleware_InvalidKey(t *testing.T) {
	calls := 0
	router := setupRouter(newMemoryKeyRepository(), nil, countingHandler(&calls, http.StatusCreated))

	w := post(router, "invalid key with spaces", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_KEY_INVALID")
	assert.Zero(t, calls)
}

func TestMiddleware_ReplaysCompletedRequest(t *testing.T) {
	calls := 0
	router := setupRouter(newMemoryKeyRepository(), nil, countingHandler(&calls, http.StatusCreated))

	first := post(router, "order-key-1", `{"items":1}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := post(router, "order-key-1", `{"items":1}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Equal(t, 1, calls, "handler runs once per key")
}

func TestMiddleware_ParameterMismatch(t *testing.T) {
	calls := 0
	router := setupRouter(newMemoryKeyRepository(), nil, countingHandler(&calls, http.StatusCreated))

	require.Equal(t, http.StatusCreated, post(router, "order-key-2", `{"items":1}`).Code)

	w := post(router, "order-key-2", `{"items":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_PARAMETER_MISMATCH")
	assert.Equal(t, 1, calls)
}

func TestMiddleware_KeysAreScopedPerUser(t *testing.T) {
	calls := 0
	router := setupRouter(newMemoryKeyRepository(), nil, countingHandler(&calls, http.StatusCreated))

	require.Equal(t, http.StatusCreated, post(router, "shared-key", `{}`).Code)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "user-2")
	req.Header.Set(middleware.HeaderIdempotencyKey, "shared-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_ConcurrentRequestConflicts(t *testing.T) {
	repo := newMemoryKeyRepository()
	calls := 0
	router := setupRouter(repo, nil, countingHandler(&calls, http.StatusCreated))

	fingerprint := ComputeFingerprint(http.MethodPost, "/orders", []byte(`{}`))
	lockedAt := time.Now().UTC()
	repo.set(&IdempotencyKey{
		ID: primitive.NewObjectID(), Key: "busy-key", UserID: "user-1", ServiceID: "pharmacy-test",
		RequestFingerprint: fingerprint, LockedAt: &lockedAt,
	})

	w := post(router, "busy-key", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, calls)
}

func TestMiddleware_StaleLockIsTakenOver(t *testing.T) {
	repo := newMemoryKeyRepository()
	calls := 0
	router := setupRouter(repo, func(c *Config) { c.LockTimeout = time.Second }, countingHandler(&calls, http.StatusCreated))

	fingerprint := ComputeFingerprint(http.MethodPost, "/orders", []byte(`{}`))
	lockedAt := time.Now().UTC().Add(-time.Minute)
	repo.set(&IdempotencyKey{
		ID: primitive.NewObjectID(), Key: "stale-key", UserID: "user-1", ServiceID: "pharmacy-test",
		RequestFingerprint: fingerprint, LockedAt: &lockedAt,
	})

	assert.Equal(t, http.StatusCreated, post(router, "stale-key", `{}`).Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_ServerErrorsAreNotCached(t *testing.T) {
	calls := 0
	router := setupRouter(newMemoryKeyRepository(), nil, countingHandler(&calls, http.StatusInternalServerError))

	assert.Equal(t, http.StatusInternalServerError, post(router, "retry-key", `{}`).Code)
	assert.Equal(t, http.StatusInternalServerError, post(router, "retry-key", `{}`).Code)
	assert.Equal(t, 2, calls, "a failed request can be retried with the same key")
}

func TestMiddleware_ClientErrorsAreCached(t *testing.T) {
	calls := 0
	router := setupRouter(newMemoryKeyRepository(), nil, countingHandler(&calls, http.StatusBadRequest))

	post(router, "bad-key", `{}`)
	w := post(router, "bad-key", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_StorageUnavailable(t *testing.T) {
	repo := newMemoryKeyRepository()
	repo.acquireErr = errors.New("connection refused")
	calls := 0
	router := setupRouter(repo, nil, countingHandler(&calls, http.StatusCreated))

	w := post(router, "any-key", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, calls)
}

func TestMiddleware_SkipsReads(t *testing.T) {
	repo := newMemoryKeyRepository()
	repo.acquireErr = errors.New("must not be called")
	calls := 0
	router := setupRouter(repo, nil, countingHandler(&calls, http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(middleware.HeaderIdempotencyKey, "read-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}
