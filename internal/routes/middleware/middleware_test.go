package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIDTagging(t *testing.T) {
	var logs bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "runtime.log")
	mw, err := New(zerolog.New(&logs), logPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mw.Close() })

	t.Run("ErrorCarriesRunID", func(t *testing.T) {
		handler := NoBody(mw, func(ctx *Context) {
			ctx.SetRunID("cs1abc")
			ctx.Error(http.StatusNotFound, "cutover run not found", errors.New("run not found"))
		})

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/api/cutovers/cs1abc", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"cutover run not found"}`, rec.Body.String())
		assert.Contains(t, logs.String(), `"run_id":"cs1abc"`)
	})

	t.Run("RuntimeLogNamesRun", func(t *testing.T) {
		handler := NoBody(mw, func(ctx *Context) {
			ctx.SetRunID("cs2def")
			ctx.Response(http.StatusAccepted, map[string]string{"id": "cs2def"})
		})

		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/api/cutovers", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "POST /api/cutovers 202")
		assert.Contains(t, string(data), "run=cs2def")
	})
}
