package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret:    "test-secret",
		TTL:       time.Minute,
		Operators: map[string]string{"ops": "hunter2"},
	})
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(Config{})
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestAuthenticate(t *testing.T) {
	m := newTestManager(t)

	assert.NoError(t, m.Authenticate("ops", "hunter2"))
	assert.ErrorIs(t, m.Authenticate("ops", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, m.Authenticate("nobody", "hunter2"), ErrInvalidCredentials)
	assert.ErrorIs(t, m.Authenticate("", ""), ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, err := m.GenerateToken("ops", []string{RoleOperator})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, []string{RoleOperator}, claims.Roles)

	other, err := NewManager(Config{Secret: "different"})
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	m := newTestManager(t)
	protected := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(claims.Subject))
	}))

	t.Run("MissingHeader", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pointer", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ValidToken", func(t *testing.T) {
		token, err := m.GenerateToken("ops", []string{RoleOperator})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/pointer", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ops", rec.Body.String())
	})
}
