package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/apperr"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"id": 7})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decode(t, rec)
	assert.Equal(t, CodeOK, env.Code)
	assert.Equal(t, map[string]any{"id": float64(7)}, env.Data)
}

func TestErrorClassified(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, zap.NewNop().Sugar(), apperr.Permission("admins only"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, 40101, env.Code)
	assert.Equal(t, "admins only", env.Message)
	assert.Nil(t, env.Data)
}

func TestErrorUnclassifiedHidesCause(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	rec := httptest.NewRecorder()
	Error(rec, logger, errors.New("pq: relation \"users\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, 50000, env.Code)
	assert.Equal(t, "system error", env.Message)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "unhandled error", logs.All()[0].Message)
}
