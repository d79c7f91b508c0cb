package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/model"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, sub, role string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func newGuardedRouter(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", RequireRole(testSecret, roles...), func(c *gin.Context) {
		a, err := ActorFromContext(c)
		if err != nil {
			response.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": a.ID.String(), "role": a.Role})
	})
	return r
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var env response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestRequireRoleAcceptsBearerAndCookie(t *testing.T) {
	r := newGuardedRouter(model.RoleAdmin, model.RoleStocker)
	userID := uuid.New()
	token := signToken(t, testSecret, userID.String(), model.RoleStocker, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), userID.String())

	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: token})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"role":"stocker"`)
}

func TestRequireRoleRejections(t *testing.T) {
	r := newGuardedRouter(model.RoleAdmin)
	id := uuid.NewString()

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "Token abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad signature", "Bearer " + signToken(t, []byte("other"), id, model.RoleAdmin, time.Hour), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"expired", "Bearer " + signToken(t, testSecret, id, model.RoleAdmin, -time.Minute), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad subject", "Bearer " + signToken(t, testSecret, "not-a-uuid", model.RoleAdmin, time.Hour), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"role not allowed", "Bearer " + signToken(t, testSecret, id, model.RoleSale, time.Hour), http.StatusForbidden, "NOT_AUTHORIZED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			env := decodeEnvelope(t, rec)
			require.False(t, env.Success)
			require.Equal(t, tc.code, env.Code)
		})
	}
}

func TestRequireRoleWithoutRolesAcceptsAnyCaller(t *testing.T) {
	r := newGuardedRouter()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, uuid.NewString(), model.RoleUser, time.Hour))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRoleFromToken(t *testing.T) {
	parse := RoleFromToken(testSecret)

	role, err := parse(signToken(t, testSecret, uuid.NewString(), model.RoleSale, time.Hour))
	require.NoError(t, err)
	require.Equal(t, model.RoleSale, role)

	_, err = parse("garbage")
	require.Error(t, err)
}
