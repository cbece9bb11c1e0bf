package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestValidateToken(t *testing.T) {
	v := NewValidator("secret")
	tok, err := v.Issue("user_1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.ValidateToken(tok)
	if err != nil || got != "user_1" {
		t.Fatalf("ValidateToken = %q, %v", got, err)
	}

	expired, _ := v.Issue("user_1", -time.Hour)
	other, _ := NewValidator("other").Issue("user_1", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user_1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iat": time.Now().Unix()}).SignedString([]byte("secret"))

	for name, tok := range map[string]string{
		"expired":     expired,
		"wrong key":   other,
		"alg none":    none,
		"no subject":  noSub,
		"not a token": "garbage",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := v.ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := NewValidator("secret")
	tok, _ := v.Issue("user_42", time.Hour)

	var seen string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	tests := []struct {
		method string
		target string
		header string
		status int
	}{
		{http.MethodGet, "/api/x", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/x", "Token " + tok, http.StatusUnauthorized},
		{http.MethodGet, "/api/x", "Bearer nope", http.StatusUnauthorized},
		{http.MethodGet, "/api/x", "Bearer " + tok, http.StatusOK},
		{http.MethodGet, "/api/x?token=" + tok, "", http.StatusOK},
		{http.MethodPut, "/api/x?token=" + tok, "", http.StatusUnauthorized},
		{http.MethodGet, "/api/x?token=" + tok, "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		seen = ""
		req := httptest.NewRequest(tt.method, tt.target, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Errorf("%s %s %q: status = %d, want %d", tt.method, tt.target, tt.header, rec.Code, tt.status)
		}
		if tt.status == http.StatusOK && seen != "user_42" {
			t.Errorf("user id in context = %q", seen)
		}
	}
}
