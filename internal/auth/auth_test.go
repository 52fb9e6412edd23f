package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *TokenService {
	return NewTokenService("test-secret-key-for-admin-tokens", time.Hour)
}

func TestIssueAndVerify(t *testing.T) {
	service := newTestService()

	token, expiresAt, err := service.IssueAdminToken("operator")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := service.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "operator", claims.Subject)
}

func TestVerifyExpired(t *testing.T) {
	service := newTestService()
	service.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := service.IssueAdminToken("operator")
	require.NoError(t, err)

	service.now = time.Now
	_, err = service.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejects(t *testing.T) {
	other, _, err := NewTokenService("another-secret", time.Hour).IssueAdminToken("operator")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleAdmin})
	noneSigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", other},
		{"unsigned", noneSigned},
	}

	service := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestVerifyRequiresAdminRole(t *testing.T) {
	service := newTestService()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "customer",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := token.SignedString(service.secretKey)
	require.NoError(t, err)

	_, err = service.Verify(signed)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestMiddleware(t *testing.T) {
	service := newTestService()
	token, _, err := service.IssueAdminToken("operator")
	require.NoError(t, err)

	var subject string
	protected := service.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		subject = claims.Subject
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		status int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, "/api/admin/stats", http.StatusNoContent},
		{"query token", func(r *http.Request) {}, "/ws/admin?token=" + token, http.StatusNoContent},
		{"missing", func(r *http.Request) {}, "/api/admin/stats", http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "/api/admin/stats", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject = ""
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			protected.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "operator", subject)
			} else {
				assert.Contains(t, rec.Body.String(), `"success":false`)
			}
		})
	}
}
