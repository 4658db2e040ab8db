package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName   = "token"
	SessionTTL   = 30 * 24 * time.Hour
	sessionOwner = "user"
)

var ErrInvalidPassword = errors.New("invalid password")

// Sessions issues and verifies HS256 session tokens carried in a cookie.
type Sessions struct {
	secret   []byte
	password string
	secure   bool
	now      func() time.Time
}

func NewSessions(secret, password string, secureCookie bool) *Sessions {
	return &Sessions{secret: []byte(secret), password: password, secure: secureCookie, now: time.Now}
}

// Login checks the shared password and returns a fresh token.
func (s *Sessions) Login(password string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) != 1 {
		return "", ErrInvalidPassword
	}
	return s.Issue()
}

// Issue signs a token valid for SessionTTL.
func (s *Sessions) Issue() (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sessionOwner,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and checks signature, algorithm, expiry and subject.
func (s *Sessions) Verify(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithSubject(sessionOwner),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// FromRequest reports whether r carries a valid session cookie.
func (s *Sessions) FromRequest(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return false
	}
	_, err = s.Verify(c.Value)
	return err == nil
}

// SetCookie stores token in the session cookie.
func (s *Sessions) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Require returns middleware that passes requests without a valid session to
// deny. A nil deny answers with a bare 401.
func (s *Sessions) Require(deny http.HandlerFunc) func(http.Handler) http.Handler {
	if deny == nil {
		deny = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.FromRequest(r) {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
