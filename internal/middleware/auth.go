package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/service"
	appErrors "storefront/pkg/errors"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys set by RequireRole.
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

const accessTokenCookie = "access_token"

// Claims is the subset of the JWT the API relies on.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

// ParseToken verifies an HS256 token and extracts its subject and role.
func ParseToken(secret []byte, tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, errors.New("token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid subject: %w", err)
	}

	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return Claims{}, errors.New("role not found in token")
	}

	return Claims{UserID: userID, Role: role}, nil
}

// RoleFromToken adapts ParseToken for callers that only need the role, such as the websocket hub.
func RoleFromToken(secret []byte) func(string) (string, error) {
	return func(tokenString string) (string, error) {
		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			return "", err
		}
		return claims.Role, nil
	}
}

// SetTokenCookie stores the access token as an HttpOnly cookie. Secure
// deployments are cross-origin and need SameSite=None.
func SetTokenCookie(c *gin.Context, accessToken string, ttl time.Duration, secure bool) {
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(accessTokenCookie, accessToken, int(ttl.Seconds()), "/", "", secure, true)
}

// ClearTokenCookie removes the access_token cookie
func ClearTokenCookie(c *gin.Context, secure bool) {
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(accessTokenCookie, "", -1, "/", "", secure, true)
}

// RequireRole validates the JWT and checks the caller's role against allowedRoles.
// With no roles given, any authenticated caller passes.
func RequireRole(secret []byte, allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie(accessTokenCookie)
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization format, expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			response.Abort(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token"))
			return
		}

		if len(allowedRoles) > 0 {
			roleAllowed := false
			for _, role := range allowedRoles {
				if claims.Role == role {
					roleAllowed = true
					break
				}
			}
			if !roleAllowed {
				response.Abort(c, appErrors.Clone(appErrors.ErrNotAuthorized, "access denied: insufficient permissions"))
				return
			}
		}

		c.Set(ContextUserID, claims.UserID.String())
		c.Set(ContextUserRole, claims.Role)

		c.Next()
	}
}

// ActorFromContext returns the authenticated caller set by RequireRole.
func ActorFromContext(c *gin.Context) (service.Actor, error) {
	rawID, ok := c.Get(ContextUserID)
	if !ok {
		return service.Actor{}, appErrors.ErrUnauthorized
	}
	id, err := uuid.Parse(fmt.Sprint(rawID))
	if err != nil {
		return service.Actor{}, appErrors.Clone(appErrors.ErrUnauthorized, "invalid user id in token")
	}
	role, _ := c.Get(ContextUserRole)
	return service.Actor{ID: id, Role: fmt.Sprint(role)}, nil
}

// Guard builds role-checking middleware bound to one signing secret.
type Guard func(allowedRoles ...string) gin.HandlerFunc

// NewGuard returns a Guard that validates tokens signed with secret.
func NewGuard(secret []byte) Guard {
	return func(allowedRoles ...string) gin.HandlerFunc {
		return RequireRole(secret, allowedRoles...)
	}
}
