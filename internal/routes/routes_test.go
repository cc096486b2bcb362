package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-Sylos/Sylos-Cutover/internal/auth"
	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
)

// pointerOnly answers pointer reads; any other call panics.
type pointerOnly struct {
	corebridge.Bridge
}

func (pointerOnly) Pointer(context.Context) (corebridge.PointerView, error) {
	return corebridge.PointerView{ActiveKey: "DB_DATABASE", Active: "app_new"}, nil
}

func TestRouterRequiresToken(t *testing.T) {
	authManager, err := auth.NewManager(auth.Config{
		Secret:    "test-secret",
		TTL:       time.Minute,
		Operators: map[string]string{"ops": "hunter2"},
	})
	require.NoError(t, err)

	router := New(Dependencies{
		Logger:      zerolog.Nop(),
		CoreBridge:  pointerOnly{},
		AuthManager: authManager,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pointer", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec = login(`{"username":"ops","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = login(`{"username":"ops","password":"hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var token struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&token))
	require.NotEmpty(t, token.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/pointer", nil)
	req.Header.Set("Authorization", "Bearer "+token.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var ptr corebridge.PointerView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ptr))
	assert.Equal(t, "app_new", ptr.Active)
}
