package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asg67/finmanager/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func TestGetCSRFToken(t *testing.T) {
	rec := httptest.NewRecorder()
	GetCSRFToken(rec, httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))

	token := rec.Header().Get("X-CSRF-Token")
	require.NotEmpty(t, token)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "csrf cookie must be set")
	assert.Equal(t, token, cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestCSRFMiddleware(t *testing.T) {
	handler := CSRFMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(method, headerToken, cookieToken string) int {
		req := httptest.NewRequest(method, "/api/entities", nil)
		if headerToken != "" {
			req.Header.Set("X-CSRF-Token", headerToken)
		}
		if cookieToken != "" {
			req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: cookieToken})
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Safe methods pass without any token.
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "", ""))

	assert.Equal(t, http.StatusOK, send(http.MethodPost, "tok-1", "tok-1"))
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "", ""))
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "tok-1", ""))
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "", "tok-1"))
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "tok-1", "tok-2"))
	assert.Equal(t, http.StatusForbidden, send(http.MethodDelete, "", "tok-1"))
}
