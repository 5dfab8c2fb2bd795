package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := gin.New()
	router.Use(Identify())
	router.GET("/whoami", func(c *gin.Context) {
		identity := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{
			"userId":    identity.UserID,
			"role":      identity.Role,
			"ctxUserId": logging.UserIDFromContext(c.Request.Context()),
		})
	})
	router.GET("/admin", RequireRole(logger, RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/users/:userId", RequireOwnerOrAdmin(logger, "userId"), func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func get(router *gin.Engine, path, userID, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdentify(t *testing.T) {
	router := newAuthRouter()

	w := get(router, "/whoami", " user-1 ", "ADMIN")
	assert.JSONEq(t, `{"userId":"user-1","role":"admin","ctxUserId":"user-1"}`, w.Body.String())

	w = get(router, "/whoami", "user-2", "superuser")
	assert.JSONEq(t, `{"userId":"user-2","role":"user","ctxUserId":"user-2"}`, w.Body.String())

	w = get(router, "/whoami", "", "")
	assert.JSONEq(t, `{"userId":"","role":"user","ctxUserId":""}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	router := newAuthRouter()

	assert.Equal(t, http.StatusOK, get(router, "/admin", "a", RoleAdmin).Code)
	assert.Equal(t, http.StatusForbidden, get(router, "/admin", "u", RoleUser).Code)
	assert.Equal(t, http.StatusForbidden, get(router, "/admin", "", "").Code)
}

func TestRequireOwnerOrAdmin(t *testing.T) {
	router := newAuthRouter()

	assert.Equal(t, http.StatusOK, get(router, "/users/u1", "u1", RoleUser).Code)
	assert.Equal(t, http.StatusForbidden, get(router, "/users/u1", "u2", RoleUser).Code)
	assert.Equal(t, http.StatusForbidden, get(router, "/users/u1", "", "").Code)
	assert.Equal(t, http.StatusOK, get(router, "/users/u1", "a", RoleAdmin).Code)
}
