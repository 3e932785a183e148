package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "session-test-secret"

func TestTokenRoundTrip(t *testing.T) {
	token, err := NewToken(testSecret, "alice", time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}

	validator := NewTokenValidator(testSecret)
	claims, err := validator.Validate(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("expected subject 'alice', got %q", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("expected a token ID")
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	token, err := NewToken(testSecret, "alice", -time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}

	if _, err := NewTokenValidator(testSecret).Validate(token); err == nil {
		t.Error("expected validation failure for expired token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	token, err := NewToken(testSecret, "alice", time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}

	if _, err := NewTokenValidator("other-secret").Validate(token); err == nil {
		t.Error("expected validation failure for wrong secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	if _, err := NewTokenValidator(testSecret).Validate("not.a.jwt"); err == nil {
		t.Error("expected validation failure for garbage token")
	}
}

func TestNewTokenValidator_EmptySecretDisablesAuth(t *testing.T) {
	if v := NewTokenValidator(""); v != nil {
		t.Error("expected nil validator for empty secret")
	}
}

func TestIsPublicPath(t *testing.T) {
	cases := map[string]bool{
		"/health":           true,
		"/api/kinds":        true,
		"/api/kinds/vault":  true,
		"/api/key":          true,
		"/api/sessions":     false,
		"/api/sessions/abc": false,
		"/api/records/abc":  false,
		"/healthz":          false,
		"/api/kindsandmore": false,
	}
	for path, want := range cases {
		if got := isPublicPath(path); got != want {
			t.Errorf("isPublicPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	middleware := NewAuthMiddleware(NewTokenValidator(testSecret))

	var subject string
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = GetSubject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := NewToken(testSecret, "alice", time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if subject != "alice" {
		t.Errorf("expected subject 'alice' in context, got %q", subject)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	middleware := NewAuthMiddleware(NewTokenValidator(testSecret))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called without auth header")
	}))

	req := httptest.NewRequest("POST", "/api/sessions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem+json response, got %q", ct)
	}
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	middleware := NewAuthMiddleware(NewTokenValidator(testSecret))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for malformed auth header")
	}))

	req := httptest.NewRequest("POST", "/api/sessions", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_PublicPathsBypass(t *testing.T) {
	middleware := NewAuthMiddleware(NewTokenValidator(testSecret))

	called := false
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called for public paths without auth")
	}
}

func TestAuthMiddleware_NilValidatorDisablesAuth(t *testing.T) {
	middleware := NewAuthMiddleware(nil)

	called := false
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/sessions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called when auth is disabled")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRequestIDMiddleware_Generates(t *testing.T) {
	var got string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got == "" {
		t.Fatal("expected non-empty request id from context")
	}
	if w.Header().Get("X-Request-ID") != got {
		t.Error("expected X-Request-ID header to match context value")
	}
}

func TestRequestIDMiddleware_ReusesClientID(t *testing.T) {
	var got string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got != "client-supplied-id" {
		t.Errorf("expected client-supplied request id, got %q", got)
	}
}

func TestRateLimiter_OverLimit(t *testing.T) {
	// Very strict: 1 rps, burst of 1.
	limiter := NewGlobalRateLimiter(1, 1)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req1 := httptest.NewRequest("GET", "/api/kinds", nil)
	req1.RemoteAddr = "10.1.2.3:5555"
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Errorf("first request: expected 200, got %d", w1.Code)
	}

	req2 := httptest.NewRequest("GET", "/api/kinds", nil)
	req2.RemoteAddr = "10.1.2.3:5556"
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", w2.Code)
	}
	if ra := w2.Header().Get("Retry-After"); ra == "" {
		t.Error("expected Retry-After header on 429 response")
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	limiter := NewGlobalRateLimiter(1, 1)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000"} {
		req := httptest.NewRequest("GET", "/api/kinds", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("request %d from %s: expected 200, got %d", i, addr, w.Code)
		}
	}
}
