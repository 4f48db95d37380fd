package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"chainqa-go/internal/model"
	"chainqa-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubUserRepo map[uint]*model.User

func (s stubUserRepo) FindByID(_ context.Context, id uint) (*model.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newRouter(m *token.JWTManager, users stubUserRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/me", AuthMiddleware(m, users), func(c *gin.Context) {
		u, _ := c.Get("user")
		c.JSON(http.StatusOK, gin.H{"id": u.(*model.User).ID})
	})
	r.GET("/admin", AuthMiddleware(m, users), AdminAuthMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func request(r http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	m := token.NewJWTManager("secret", 1)
	users := stubUserRepo{2: {ID: 2, Role: model.RoleUser}}
	r := newRouter(m, users)

	valid, err := m.GenerateToken(2, model.RoleUser)
	require.NoError(t, err)
	deleted, err := m.GenerateToken(99, model.RoleUser)
	require.NoError(t, err)

	w := request(r, "/me", "Bearer "+valid)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":2}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	assert.Equal(t, http.StatusUnauthorized, request(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, "/me", valid).Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, "/me", "Bearer garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, "/me", "Bearer "+deleted).Code)
}

func TestAdminAuthMiddleware(t *testing.T) {
	m := token.NewJWTManager("secret", 1)
	users := stubUserRepo{
		1: {ID: 1, Role: model.RoleAdmin},
		2: {ID: 2, Role: model.RoleUser},
	}
	r := newRouter(m, users)

	admin, err := m.GenerateToken(1, model.RoleAdmin)
	require.NoError(t, err)
	user, err := m.GenerateToken(2, model.RoleUser)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, request(r, "/admin", "Bearer "+admin).Code)
	assert.Equal(t, http.StatusForbidden, request(r, "/admin", "Bearer "+user).Code)
}

func TestRequestLoggerKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
}
