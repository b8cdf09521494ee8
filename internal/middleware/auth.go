// internal/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

// UserLookup loads the account behind a token so that blocked or deleted
// users are refused even while their token is still valid.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Authenticator struct {
	jwt        *utils.JWTManager
	users      UserLookup
	cookieName string
}

func NewAuthenticator(jwtManager *utils.JWTManager, users UserLookup, cookieName string) *Authenticator {
	return &Authenticator{jwt: jwtManager, users: users, cookieName: cookieName}
}

func (a *Authenticator) extractToken(c *gin.Context) string {
	if a.cookieName != "" {
		if token, err := c.Cookie(a.cookieName); err == nil && token != "" {
			return token
		}
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	// Extract token from "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// authenticate resolves the caller or returns one of MISSING_TOKEN,
// INVALID_TOKEN, USER_NOT_FOUND or ACCOUNT_BLOCKED.
func (a *Authenticator) authenticate(c *gin.Context) (*models.User, error) {
	token := a.extractToken(c)
	if token == "" {
		return nil, utils.ErrMissingToken
	}

	claims, err := a.jwt.Validate(token)
	if err != nil {
		return nil, utils.ErrInvalidToken.Wrap(err)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, utils.ErrInvalidToken.Wrap(err)
	}

	user, err := a.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, utils.ErrUserNotFound) {
			return nil, utils.ErrUserNotFound
		}
		return nil, err
	}

	if user.IsBlocked {
		return nil, utils.ErrAccountBlocked
	}
	return user, nil
}

func (a *Authenticator) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := a.authenticate(c)
		if err != nil {
			utils.AbortWithError(c, err)
			return
		}

		// Role comes from the stored account, not the token.
		c.Set(utils.ContextUserID, user.ID)
		c.Set(utils.ContextUserRole, string(user.Role))
		c.Next()
	}
}

// OptionalAuth populates the context when a usable token is present and
// otherwise lets the request through anonymously.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, err := a.authenticate(c); err == nil {
			c.Set(utils.ContextUserID, user.ID)
			c.Set(utils.ContextUserRole, string(user.Role))
		}
		c.Next()
	}
}

func RoleRequired(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := utils.GetUserRoleFromContext(c)
		for _, allowed := range roles {
			if role == string(allowed) {
				c.Next()
				return
			}
		}
		utils.AbortWithError(c, utils.ErrForbidden)
	}
}

func AdminRequired() gin.HandlerFunc {
	return RoleRequired(models.RoleAdmin)
}
