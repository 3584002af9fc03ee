package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/dispatch/auth"
	"go.fieldcore.build/dispatch/schema"
)

func okHandler(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRequestIDMiddleware_SetsHeaderAndContext(t *testing.T) {
	var seenID string
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = requestIDFrom(r)
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, rec.Header().Get("X-Request-Id"), seenID)
}

func TestRecoverMiddleware_ConvertsPanicTo500(t *testing.T) {
	h := requestIDMiddleware(recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthMiddleware_MissingBearer_Rejects(t *testing.T) {
	issuer := auth.NewTokenIssuer([]byte("k"), time.Hour)
	h := authMiddleware(issuer)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_ValidBearer_SetsAuthUserOnContext(t *testing.T) {
	issuer := auth.NewTokenIssuer([]byte("k"), time.Hour)
	u := auth.AuthUser{UserID: "u1", Role: schema.RoleDispatcher, CompanyID: "c1"}
	tok, err := issuer.Issue(u)
	require.NoError(t, err)

	var got auth.AuthUser
	var ok bool
	h := authMiddleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = authUserFrom(r)
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	assert.Equal(t, u, got)
}

func TestAuthMiddleware_InvalidToken_Rejects(t *testing.T) {
	issuer := auth.NewTokenIssuer([]byte("k"), time.Hour)
	h := authMiddleware(issuer)(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitMiddleware_RejectsOverBurst(t *testing.T) {
	h := rateLimitMiddleware(0.0001, 1)(http.HandlerFunc(okHandler))
	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestHandleError_MapsAppErrToItsStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handleError(rec, req, apperr.NotFound("job %s", "j1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(apperr.CodeNotFound), body["code"])
}

func TestHandleError_UnrecognizedErrorFallsBackTo500(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handleError(rec, req, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
