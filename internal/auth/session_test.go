package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newSessions(now time.Time) *Sessions {
	s := NewSessions("test-secret", "hunter2", true)
	s.now = func() time.Time { return now }
	return s
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	now := time.Now()
	s := newSessions(now)

	token, err := s.Login("hunter2")
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user", claims.Subject)
	require.WithinDuration(t, now.Add(SessionTTL), claims.ExpiresAt.Time, time.Second)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	_, err := newSessions(time.Now()).Login("nope")
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-31 * 24 * time.Hour)
	token, err := newSessions(issuedAt).Issue()
	require.NoError(t, err)

	_, err = newSessions(time.Now()).Verify(token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRejectsOtherSecretAndAlg(t *testing.T) {
	token, err := NewSessions("other", "pw", true).Issue()
	require.NoError(t, err)
	_, err = newSessions(time.Now()).Verify(token)
	require.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newSessions(time.Now()).Verify(none)
	require.Error(t, err)
}

func TestCookieRoundTrip(t *testing.T) {
	s := newSessions(time.Now())
	token, err := s.Issue()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.SetCookie(rec, token)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, CookieName, c.Name)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteStrictMode, c.SameSite)
	require.Equal(t, 30*24*60*60, c.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	require.True(t, s.FromRequest(req))

	require.False(t, s.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil)))

	rec = httptest.NewRecorder()
	s.ClearCookie(rec)
	require.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestRequire(t *testing.T) {
	s := newSessions(time.Now())
	deny := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized","code":401}`))
	}
	h := s.Require(deny)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":"unauthorized","code":401}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Require(nil)(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := s.Issue()
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
