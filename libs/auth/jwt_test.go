package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"

	token, err := SignHS256(42, secret, time.Hour)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseHS256 failed: %v", err)
	}
	if parsed.UserID != 42 {
		t.Fatalf("expected user id 42, got %d", parsed.UserID)
	}
	if _, err := ParseHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestParseRejectsExpiredAndUnsignedTokens(t *testing.T) {
	secret := "test-secret"

	expired, err := SignHS256(7, secret, -time.Minute)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseHS256(expired, secret); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token failed: %v", err)
	}
	if _, err := ParseHS256(raw, secret); err == nil {
		t.Fatal("expected alg=none token to be rejected")
	}
}

func TestMiddleware(t *testing.T) {
	secret := "test-secret"
	var caller int64
	h := Middleware(secret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ = CallerID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, _ := SignHS256(9, secret, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || caller != 9 {
		t.Fatalf("expected 200 with caller 9, got %d caller=%d", rec.Code, caller)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for basic scheme, got %d", rec.Code)
	}
}
