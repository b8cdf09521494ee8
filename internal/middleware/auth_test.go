package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

type stubUsers map[uuid.UUID]*models.User

func (s stubUsers) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s[id]; ok {
		return user, nil
	}
	return nil, utils.ErrUserNotFound
}

func newUser(role models.UserRole, blocked bool) *models.User {
	user := &models.User{Role: role, IsBlocked: blocked}
	user.ID = uuid.New()
	return user
}

func setupAuthRouter(t *testing.T, users stubUsers) (*gin.Engine, *utils.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtManager := utils.NewJWTManager("middleware-secret", 1)
	auth := NewAuthenticator(jwtManager, users, "agrilink_token")

	router := gin.New()
	router.GET("/me", auth.AuthRequired(), func(c *gin.Context) {
		id, _ := utils.GetUserIDFromContext(c)
		role, _ := utils.GetUserRoleFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": id.String(), "role": role})
	})
	router.GET("/admin", auth.AuthRequired(), AdminRequired(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/feed", auth.OptionalAuth(), func(c *gin.Context) {
		_, ok := utils.GetUserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})
	return router, jwtManager
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	return body.Code
}

func TestAuthRequired(t *testing.T) {
	active := newUser(models.RoleBuyer, false)
	blocked := newUser(models.RoleFarmer, true)
	router, jwtManager := setupAuthRouter(t, stubUsers{active.ID: active, blocked.ID: blocked})

	token := func(id uuid.UUID, role string) string {
		signed, err := jwtManager.Generate(id, role)
		require.NoError(t, err)
		return signed
	}
	forged, err := utils.NewJWTManager("someone-else", 1).Generate(active.ID, "buyer")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"wrong scheme", "Basic " + token(active.ID, "buyer"), http.StatusUnauthorized, "MISSING_TOKEN"},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"foreign signature", "Bearer " + forged, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"unknown user", "Bearer " + token(uuid.New(), "buyer"), http.StatusUnauthorized, "USER_NOT_FOUND"},
		{"blocked", "Bearer " + token(blocked.ID, "farmer"), http.StatusForbidden, "ACCOUNT_BLOCKED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestAuthRequired_RoleFromStoredAccount(t *testing.T) {
	user := newUser(models.RoleBuyer, false)
	router, jwtManager := setupAuthRouter(t, stubUsers{user.ID: user})

	// A token claiming admin does not override the stored role.
	token, err := jwtManager.Generate(user.ID, "admin")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, user.ID.String(), body["id"])
	assert.Equal(t, "buyer", body["role"])

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))
}

func TestAuthRequired_Cookie(t *testing.T) {
	admin := newUser(models.RoleAdmin, false)
	router, jwtManager := setupAuthRouter(t, stubUsers{admin.ID: admin})

	token, err := jwtManager.Generate(admin.ID, "admin")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "agrilink_token", Value: token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	user := newUser(models.RoleBuyer, false)
	router, jwtManager := setupAuthRouter(t, stubUsers{user.ID: user})
	token, err := jwtManager.Generate(user.ID, "buyer")
	require.NoError(t, err)

	for header, want := range map[string]bool{
		"":                false,
		"Bearer broken":   false,
		"Bearer " + token: true,
	} {
		req := httptest.NewRequest(http.MethodGet, "/feed", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]bool
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, want, body["authenticated"], header)
	}
}

func TestRateLimits(t *testing.T) {
	gin.SetMode(gin.TestMode)

	disabled := NewRateLimits(false)
	router := gin.New()
	router.GET("/", disabled.Auth(), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	limiter := NewRateLimiter(rate.Every(time.Hour), 2)
	router = gin.New()
	router.GET("/", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS([]string{"https://agrilink.example"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://agrilink.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://agrilink.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
