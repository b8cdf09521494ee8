// internal/handlers/auth.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agrilink/marketplace-backend/internal/config"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	cookie      config.JWTConfig
}

func NewAuthHandler(authService *services.AuthService, userService *services.UserService, cookie config.JWTConfig) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		cookie:      cookie,
	}
}

func (h *AuthHandler) setTokenCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.CookieName, token, maxAge, "/", "", h.cookie.CookieSecure, true)
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	authResponse, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	h.setTokenCookie(c, authResponse.AccessToken, authResponse.ExpiresIn)
	utils.CreatedResponse(c, "Registration successful", authResponse)
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	authResponse, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	h.setTokenCookie(c, authResponse.AccessToken, authResponse.ExpiresIn)
	utils.SuccessResponse(c, "Login successful", authResponse)
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setTokenCookie(c, "", -1)
	utils.SuccessResponse(c, "Logged out", nil)
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := utils.GetUserIDFromContext(c)

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, "", user)
}
