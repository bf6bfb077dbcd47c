package apierrors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierr "github.com/gafaelfawr/gafaelfawr/pkg/errors"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) body {
	t.Helper()
	var b body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func TestErrorHandlerNoError(t *testing.T) {
	h := ErrorHandler(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestErrorHandlerDomainError(t *testing.T) {
	h := ErrorHandler(func(w http.ResponseWriter, r *http.Request) error {
		return apierr.NewNotFoundError("token not found", nil)
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	b := decodeBody(t, rec)
	require.Len(t, b.Detail, 1)
	assert.Equal(t, "not_found", b.Detail[0].Type)
	assert.Equal(t, "token not found", b.Detail[0].Msg)
}

func TestErrorHandlerInternalErrorHidesDetail(t *testing.T) {
	h := ErrorHandler(func(w http.ResponseWriter, r *http.Request) error {
		return apierr.NewKubernetesError("secret creation failed: quota exceeded", nil)
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	b := decodeBody(t, rec)
	require.Len(t, b.Detail, 1)
	assert.Equal(t, "internal_error", b.Detail[0].Type)
	assert.NotContains(t, b.Detail[0].Msg, "quota exceeded", "5xx responses must not leak internal error detail")
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apierr.NewInvalidGrantError("code expired", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	b := decodeBody(t, rec)
	require.Len(t, b.Detail, 1)
	assert.Equal(t, "invalid_grant", b.Detail[0].Type)
}
